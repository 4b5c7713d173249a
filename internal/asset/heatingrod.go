package asset

import (
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

type HeatingRodConfig struct {
	ElPower    float64 `json:"el_power" yaml:"el_power"`
	Efficiency float64 `json:"efficiency" yaml:"efficiency"` // defaults to 1
}

func (c *HeatingRodConfig) Validate(id string) error {
	if c.Efficiency == 0 {
		c.Efficiency = 1
	}
	switch {
	case c.ElPower <= 0:
		return invalid(id, "el power %v must be positive", c.ElPower)
	case !inUnitInterval(c.Efficiency):
		return invalid(id, "efficiency %v not in (0, 1]", c.Efficiency)
	}
	return nil
}

// HeatingRod is a resistive heater. It has no minimum runtime or stop time.
type HeatingRod struct {
	producer
	cfg HeatingRodConfig
}

// NewHeatingRod builds a heating rod. demand may be nil when the rod is
// driven by a thermal energy storage.
func NewHeatingRod(id string, env *environment.Environment, demand ThermalDemand, cfg HeatingRodConfig) (*HeatingRod, error) {
	if err := cfg.Validate(id); err != nil {
		return nil, err
	}
	r := &HeatingRod{
		producer: newProducer(id, component.ClassHeatingRod, env, demand, RampConfig{}, 1),
		cfg:      cfg,
	}
	r.output = func(int) (float64, float64, error) { return cfg.ElPower, cfg.ElPower * cfg.Efficiency, nil }
	return r, nil
}

func (r *HeatingRod) Config() HeatingRodConfig { return r.cfg }

// PrepareTimeSeries covers the heat demand up to el_power.
func (r *HeatingRod) PrepareTimeSeries() error {
	return r.followDemand(func(_ int, demand float64) (float64, float64, error) {
		el := min(demand/r.cfg.Efficiency, r.cfg.ElPower)
		return el, el * r.cfg.Efficiency, nil
	})
}
