// Package profile derives the household demand inputs of a simulation:
// the quarter-hourly thermal demand from a SigLinDe building signature, the
// baseline electrical load and the vehicle usage.
package profile

import (
	"errors"
	"fmt"
	"time"

	"vpp_simulator/internal/environment"
)

var (
	ErrInvalidConfig = errors.New("invalid user profile configuration")
	ErrNoTemperature = errors.New("no temperature data for heat demand")
)

// Config describes one household.
type Config struct {
	Identifier          string  `json:"identifier" yaml:"identifier"`
	Latitude            float64 `json:"latitude" yaml:"latitude"`
	Longitude           float64 `json:"longitude" yaml:"longitude"`
	ThermalEnergyDemand float64 `json:"thermal_energy_demand" yaml:"thermal_energy_demand"` // kWh per year
	BuildingType        string  `json:"building_type" yaml:"building_type"`
	Baseload            float64 `json:"baseload" yaml:"baseload"`                       // kW, constant fallback
	DailyVehicleUsage   float64 `json:"daily_vehicle_usage" yaml:"daily_vehicle_usage"` // kWh per day
	ComfortFactor       float64 `json:"comfort_factor" yaml:"comfort_factor"`
}

// UserProfile is shared read-only by the components of one household.
type UserProfile struct {
	cfg          Config
	env          *environment.Environment
	signature    SigLinDe
	distribution DailyDistribution
	heatDemand   []float64
}

type Option func(*options)

type options struct {
	table        []SigLinDe
	distribution *DailyDistribution
}

// WithSigLinDe replaces the built-in SigLinDe table.
func WithSigLinDe(rows []SigLinDe) Option {
	return func(o *options) { o.table = rows }
}

// WithDailyDistribution replaces the built-in daily distribution.
func WithDailyDistribution(d DailyDistribution) Option {
	return func(o *options) { o.distribution = &d }
}

func New(cfg Config, env *environment.Environment, opts ...Option) (*UserProfile, error) {
	o := options{table: DefaultSigLinDe()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.ComfortFactor == 0 {
		cfg.ComfortFactor = 1
	}
	if cfg.ThermalEnergyDemand < 0 {
		return nil, fmt.Errorf("%w: thermal energy demand %v is negative", ErrInvalidConfig, cfg.ThermalEnergyDemand)
	}
	if cfg.ComfortFactor < 0 {
		return nil, fmt.Errorf("%w: comfort factor %v is negative", ErrInvalidConfig, cfg.ComfortFactor)
	}
	if cfg.Latitude < -90 || cfg.Latitude > 90 || cfg.Longitude < -180 || cfg.Longitude > 180 {
		return nil, fmt.Errorf("%w: location (%v, %v)", ErrInvalidConfig, cfg.Latitude, cfg.Longitude)
	}

	table, err := NewTable(o.table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	p := &UserProfile{cfg: cfg, env: env}
	if cfg.BuildingType != "" {
		if p.signature, err = table.Lookup(cfg.BuildingType); err != nil {
			return nil, err
		}
	}

	if o.distribution != nil {
		p.distribution = *o.distribution
		if err := p.distribution.Validate(); err != nil {
			return nil, err
		}
	} else {
		p.distribution = DefaultDailyDistribution()
	}
	return p, nil
}

func (p *UserProfile) Identifier() string                    { return p.cfg.Identifier }
func (p *UserProfile) Config() Config                        { return p.cfg }
func (p *UserProfile) Latitude() float64                     { return p.cfg.Latitude }
func (p *UserProfile) Longitude() float64                    { return p.cfg.Longitude }
func (p *UserProfile) Baseload() float64                     { return p.cfg.Baseload }
func (p *UserProfile) DailyVehicleUsage() float64            { return p.cfg.DailyVehicleUsage }
func (p *UserProfile) Environment() *environment.Environment { return p.env }

// SetHeatDemand overrides the derived heat demand with a measured series (kW).
func (p *UserProfile) SetHeatDemand(vals []float64) error {
	if len(vals) != p.env.Len() {
		return fmt.Errorf("heat demand: got %d values, want %d: %w", len(vals), p.env.Len(), environment.ErrLengthMismatch)
	}
	for i, v := range vals {
		if v < 0 {
			return fmt.Errorf("%w: heat demand at position %d is negative", ErrInvalidConfig, i)
		}
	}
	p.heatDemand = vals
	return nil
}

// HeatDemand returns the thermal demand in kW at index resolution. The
// series is derived once and memoized.
func (p *UserProfile) HeatDemand() ([]float64, error) {
	if p.heatDemand != nil {
		return p.heatDemand, nil
	}
	demand, err := p.deriveHeatDemand()
	if err != nil {
		return nil, err
	}
	p.heatDemand = demand
	return demand, nil
}

// ThermalDemandAt returns the thermal demand in kW at t.
func (p *UserProfile) ThermalDemandAt(t time.Time) (float64, error) {
	i, err := p.env.Position(t)
	if err != nil {
		return 0, err
	}
	demand, err := p.HeatDemand()
	if err != nil {
		return 0, err
	}
	return demand[i], nil
}

func (p *UserProfile) deriveHeatDemand() ([]float64, error) {
	if p.cfg.BuildingType == "" {
		return nil, fmt.Errorf("%w: no building type", ErrInvalidConfig)
	}
	daily := p.env.DailyMeanTemperatures()
	if len(daily) == 0 {
		return nil, ErrNoTemperature
	}

	alloc := AllocationTemperatures(daily)
	hValues := make([]float64, len(alloc))
	var hSum float64
	for d, t := range alloc {
		hValues[d] = p.signature.HValue(t)
		hSum += hValues[d]
	}

	demand := make([]float64, p.env.Len())
	if hSum <= 0 || p.cfg.ThermalEnergyDemand == 0 {
		return demand, nil
	}

	year := p.env.Year()
	daysInYear := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC).Sub(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)).Hours() / 24
	customerValue := p.cfg.ThermalEnergyDemand * float64(len(daily)) / daysInYear / hSum

	timebase := p.env.Timebase()
	stepHours := p.env.StepHours()
	for i, t := range p.env.Index() {
		d := p.env.DayOf(i)
		dayEnergy := customerValue * hValues[d]
		minute := t.Hour()*60 + t.Minute()
		share := p.distribution.ShareOf(Bin(daily[d]), minute, timebase)
		demand[i] = dayEnergy * share / stepHours * p.cfg.ComfortFactor
	}
	return demand, nil
}

// AllocationTemperatures weights each day's mean with the three previous
// days (1, 0.5, 0.25, 0.125). Days before the first reuse the first value.
func AllocationTemperatures(daily []float64) []float64 {
	weights := [4]float64{1, 0.5, 0.25, 0.125}
	out := make([]float64, len(daily))
	for d := range daily {
		var sum, wsum float64
		for k, w := range weights {
			j := max(d-k, 0)
			sum += w * daily[j]
			wsum += w
		}
		out[d] = sum / wsum
	}
	return out
}
