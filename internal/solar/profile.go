package solar

import (
	"fmt"
	"math"
	"time"

	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/model"
)

// Profile is an hourly generation shape normalized to a peak of 1.
type Profile struct {
	HourlyFactor [24]float64
	PeakHour     int
}

// BuildProfile derives an hourly shape from measured PV power. Readings
// from May to August are preferred; other months are used only when the
// summer has no positive readings.
func BuildProfile(readings []model.Reading) Profile {
	var sum [24]float64
	var count [24]int
	add := func(summerOnly bool) bool {
		found := false
		for _, r := range readings {
			m := r.Timestamp.Month()
			if r.Value <= 0 || (summerOnly && (m < time.May || m > time.August)) {
				continue
			}
			sum[r.Timestamp.Hour()] += r.Value
			count[r.Timestamp.Hour()]++
			found = true
		}
		return found
	}
	if !add(true) && !add(false) {
		return DefaultProfile()
	}

	var p Profile
	var peak float64
	for h := range sum {
		if count[h] == 0 {
			continue
		}
		p.HourlyFactor[h] = sum[h] / float64(count[h])
		if p.HourlyFactor[h] > peak {
			peak, p.PeakHour = p.HourlyFactor[h], h
		}
	}
	for h := range p.HourlyFactor {
		p.HourlyFactor[h] /= peak
	}
	return p
}

// DefaultProfile is a south-facing bell curve peaking at noon.
func DefaultProfile() Profile {
	p := Profile{PeakHour: 12}
	for h := range p.HourlyFactor {
		d := float64(h) - 12
		if f := math.Exp(-d * d / 18); f >= 0.01 {
			p.HourlyFactor[h] = f
		}
	}
	return p
}

// Orient shifts a profile measured at baseAzimuth to another orientation:
// one hour per 45° of azimuth, with steeper tilts narrowing the curve.
func (p Profile) Orient(azimuth, tilt, baseAzimuth float64) Profile {
	shift := (azimuth - baseAzimuth) / 45
	width := min(1.5, max(0.5, 1-(tilt-40)/200))
	gain := max(0.5, math.Cos((tilt-35)*deg))

	var out Profile
	var peak float64
	center := float64(p.PeakHour)
	for h := range out.HourlyFactor {
		src := center + (float64(h)-shift-center)/width
		f := max(0, p.At(src)*gain)
		out.HourlyFactor[h] = f
		if f > peak {
			peak, out.PeakHour = f, h
		}
	}
	if peak > 0 {
		for h := range out.HourlyFactor {
			out.HourlyFactor[h] /= peak
		}
	}
	return out
}

// At interpolates the factor at a fractional hour, wrapping around midnight.
func (p Profile) At(hour float64) float64 {
	hour = math.Mod(hour, 24)
	if hour < 0 {
		hour += 24
	}
	lo := int(hour) % 24
	frac := hour - math.Floor(hour)
	return p.HourlyFactor[lo]*(1-frac) + p.HourlyFactor[(lo+1)%24]*frac
}

// ProfileChain scales an hourly shape to the peak power of a system. It
// needs no weather.
type ProfileChain struct {
	Profile   Profile
	PeakPower float64 // kW
}

func (c *ProfileChain) Run(env *environment.Environment) ([]float64, error) {
	if c.PeakPower < 0 {
		return nil, fmt.Errorf("profile chain: peak power %v must not be negative", c.PeakPower)
	}
	half := env.Step() / 2
	out := make([]float64, env.Len())
	for i, t := range env.Index() {
		m := t.Add(half)
		hour := float64(m.Hour()) + float64(m.Minute())/60
		out[i] = c.Profile.At(hour) * c.PeakPower
	}
	return out, nil
}
