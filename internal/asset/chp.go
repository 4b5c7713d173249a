package asset

import (
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

type CHPConfig struct {
	ElPower    float64 `json:"el_power" yaml:"el_power"`
	ThPower    float64 `json:"th_power" yaml:"th_power"`
	RampConfig `yaml:",inline"`
}

func (c *CHPConfig) Validate(id string) error {
	if c.ElPower <= 0 || c.ThPower <= 0 {
		return invalid(id, "el power %v and th power %v must be positive", c.ElPower, c.ThPower)
	}
	return c.RampConfig.validate(id)
}

// CHP is a combined heat and power unit. It generates electricity, so its
// component value is negative while running.
type CHP struct {
	producer
	cfg CHPConfig
}

// NewCHP builds a CHP unit. demand may be nil when the unit is driven by a
// thermal energy storage.
func NewCHP(id string, env *environment.Environment, demand ThermalDemand, cfg CHPConfig) (*CHP, error) {
	if err := cfg.Validate(id); err != nil {
		return nil, err
	}
	c := &CHP{
		producer: newProducer(id, component.ClassCHP, env, demand, cfg.RampConfig, -1),
		cfg:      cfg,
	}
	c.output = func(int) (float64, float64, error) { return cfg.ElPower, cfg.ThPower, nil }
	return c, nil
}

func (c *CHP) Config() CHPConfig { return c.cfg }

// PowerToHeatRatio is el_power / th_power.
func (c *CHP) PowerToHeatRatio() float64 { return c.cfg.ElPower / c.cfg.ThPower }

// PrepareTimeSeries runs the unit heat-led: it modulates to the heat
// demand up to th_power and generates electricity at the fixed ratio.
func (c *CHP) PrepareTimeSeries() error {
	return c.followDemand(func(_ int, demand float64) (float64, float64, error) {
		th := min(demand, c.cfg.ThPower)
		return th * c.PowerToHeatRatio(), th, nil
	})
}
