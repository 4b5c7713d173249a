// Package wind turns a multi-height weather frame into wind turbine output.
package wind

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/model"
)

var (
	ErrMissingWeather = errors.New("missing wind weather column")
	ErrUnknownModel   = errors.New("unknown wind model")
	ErrInvalidCurve   = errors.New("invalid power curve")
)

const (
	standardDensity   = 1.225   // kg/m³
	gasConstantAir    = 287.058 // J/(kg·K)
	temperatureLapse  = 0.0065  // K/m
	pressureLapse     = 12.5    // Pa/m, 1 hPa per 8 m
	defaultRoughness  = 0.15    // m
	defaultHellmanExp = 1.0 / 7
)

// ModelChain computes turbine output (kW, positive) for every step.
type ModelChain interface {
	Run(env *environment.Environment) ([]float64, error)
}

// CurvePoint is one point of a power curve.
type CurvePoint struct {
	WindSpeed float64 `json:"wind_speed" yaml:"wind_speed"` // m/s
	Power     float64 `json:"power" yaml:"power"`           // kW
}

// Turbine describes one wind turbine.
type Turbine struct {
	Type          string       `json:"turbine_type" yaml:"turbine_type"`
	NominalPower  float64      `json:"nominal_power" yaml:"nominal_power"` // kW
	HubHeight     float64      `json:"hub_height" yaml:"hub_height"`       // m
	RotorDiameter float64      `json:"rotor_diameter" yaml:"rotor_diameter"`
	PowerCurve    []CurvePoint `json:"power_curve" yaml:"power_curve"`
}

// GenericPowerCurve is a cubic curve between a 3 m/s cut-in and rated
// power at 12 m/s, cut out at 25 m/s.
func GenericPowerCurve(nominal float64) []CurvePoint {
	const cutIn, rated, cutOut = 3.0, 12.0, 25.0
	curve := []CurvePoint{{0, 0}}
	for v := cutIn; v < rated; v += 0.5 {
		curve = append(curve, CurvePoint{v, nominal * (v*v*v - cutIn*cutIn*cutIn) / (rated*rated*rated - cutIn*cutIn*cutIn)})
	}
	return append(curve, CurvePoint{rated, nominal}, CurvePoint{cutOut, nominal})
}

// Models selects the sub-models of a Chain.
type Models struct {
	WindSpeed         string  `json:"wind_speed_model" yaml:"wind_speed_model"` // logarithmic | hellman
	Density           string  `json:"density_model" yaml:"density_model"`       // barometric | ideal_gas
	Temperature       string  `json:"temperature_model" yaml:"temperature_model"`
	DensityCorrection bool    `json:"density_correction" yaml:"density_correction"`
	HellmanExponent   float64 `json:"hellman_exponent" yaml:"hellman_exponent"`
}

func (m Models) withDefaults() Models {
	if m.WindSpeed == "" {
		m.WindSpeed = "logarithmic"
	}
	if m.Density == "" {
		m.Density = "barometric"
	}
	if m.Temperature == "" {
		m.Temperature = "linear_gradient"
	}
	if m.HellmanExponent == 0 {
		m.HellmanExponent = defaultHellmanExp
	}
	return m
}

// Chain is the wind model chain: hub-height wind speed, temperature and
// density followed by the power curve.
type Chain struct {
	Turbine Turbine
	Models  Models
	curve   interp.PiecewiseLinear
	cutIn   float64
	cutOut  float64
}

// NewChain validates the turbine and fits its power curve. Without a
// curve, a generic one is derived from the nominal power.
func NewChain(t Turbine, m Models) (*Chain, error) {
	m = m.withDefaults()
	switch {
	case m.WindSpeed != "logarithmic" && m.WindSpeed != "hellman":
		return nil, fmt.Errorf("wind speed model %q: %w", m.WindSpeed, ErrUnknownModel)
	case m.Density != "barometric" && m.Density != "ideal_gas":
		return nil, fmt.Errorf("density model %q: %w", m.Density, ErrUnknownModel)
	case m.Temperature != "linear_gradient":
		return nil, fmt.Errorf("temperature model %q: %w", m.Temperature, ErrUnknownModel)
	case t.HubHeight <= 0:
		return nil, fmt.Errorf("hub height %v must be positive: %w", t.HubHeight, ErrInvalidCurve)
	}
	if len(t.PowerCurve) == 0 {
		if t.NominalPower <= 0 {
			return nil, fmt.Errorf("turbine needs a power curve or a nominal power: %w", ErrInvalidCurve)
		}
		t.PowerCurve = GenericPowerCurve(t.NominalPower)
	}
	pts := append([]CurvePoint(nil), t.PowerCurve...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].WindSpeed < pts[j].WindSpeed })
	xs, ys := make([]float64, len(pts)), make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.WindSpeed, p.Power
		if p.Power > t.NominalPower {
			t.NominalPower = p.Power
		}
	}
	c := &Chain{Turbine: t, Models: m, cutIn: xs[0], cutOut: xs[len(xs)-1]}
	if err := c.curve.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCurve, err)
	}
	return c, nil
}

// nearest returns the column measured closest to height h.
func nearest(cols []environment.WindColumn, h float64) environment.WindColumn {
	best := cols[0]
	for _, c := range cols[1:] {
		if math.Abs(c.Height-h) < math.Abs(best.Height-h) {
			best = c
		}
	}
	return best
}

// HubWindSpeed extrapolates a speed v measured at height h to hub height.
func (c *Chain) HubWindSpeed(v, h, roughness float64) float64 {
	hub := c.Turbine.HubHeight
	if h == hub {
		return v
	}
	if c.Models.WindSpeed == "hellman" {
		return v * math.Pow(hub/h, c.Models.HellmanExponent)
	}
	return v * math.Log(hub/roughness) / math.Log(h/roughness)
}

// HubTemperature in kelvin from tC °C measured at height h.
func (c *Chain) HubTemperature(tC, h float64) float64 {
	return tC + 273.15 - temperatureLapse*(c.Turbine.HubHeight-h)
}

// HubDensity from pressure p (Pa) measured at height h and the hub
// temperature tK.
func (c *Chain) HubDensity(p, h, tK float64) float64 {
	hubP := p - pressureLapse*(c.Turbine.HubHeight-h)
	if c.Models.Density == "ideal_gas" {
		return hubP / (gasConstantAir * tK)
	}
	return hubP / 101325 * standardDensity * 288.15 / tK
}

// densityExponent follows the IEC 61400-12 correction: 1/3 below 7.5 m/s,
// 2/3 above 12.5 m/s, linear in between.
func densityExponent(v float64) float64 {
	switch {
	case v <= 7.5:
		return 1.0 / 3
	case v >= 12.5:
		return 2.0 / 3
	}
	return 1.0/3 + (v-7.5)/15
}

// Power returns the output (kW) at hub wind speed v and air density rho.
func (c *Chain) Power(v, rho float64) float64 {
	if c.Models.DensityCorrection && rho > 0 {
		v *= math.Pow(rho/standardDensity, densityExponent(v))
	}
	if v < c.cutIn || v > c.cutOut {
		return 0
	}
	return max(0, c.curve.Predict(v))
}

func (c *Chain) Run(env *environment.Environment) ([]float64, error) {
	speeds := env.Wind(string(model.SeriesWindSpeed))
	if len(speeds) == 0 {
		return nil, fmt.Errorf("%s: %w", model.SeriesWindSpeed, ErrMissingWeather)
	}
	speed := nearest(speeds, c.Turbine.HubHeight)

	var roughness []float64
	if cols := env.Wind(string(model.SeriesRoughness)); len(cols) > 0 {
		roughness = cols[0].Values
	}
	var temp, pressure *environment.WindColumn
	if cols := env.Wind(string(model.SeriesAirTemperature)); len(cols) > 0 {
		col := nearest(cols, c.Turbine.HubHeight)
		temp = &col
	}
	if cols := env.Wind(string(model.SeriesPressure)); len(cols) > 0 {
		col := nearest(cols, c.Turbine.HubHeight)
		pressure = &col
	}
	if c.Models.DensityCorrection && (temp == nil || pressure == nil) {
		return nil, fmt.Errorf("density correction needs %s and %s: %w", model.SeriesAirTemperature, model.SeriesPressure, ErrMissingWeather)
	}

	out := make([]float64, env.Len())
	for i := range out {
		z0 := defaultRoughness
		if roughness != nil && roughness[i] > 0 {
			z0 = roughness[i]
		}
		v := c.HubWindSpeed(speed.Values[i], speed.Height, z0)
		rho := standardDensity
		if temp != nil && pressure != nil {
			tK := c.HubTemperature(temp.Values[i], temp.Height)
			rho = c.HubDensity(pressure.Values[i], pressure.Height, tK)
		}
		out[i] = c.Power(v, rho)
	}
	return out, nil
}
