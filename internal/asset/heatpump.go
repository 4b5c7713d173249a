package asset

import (
	"fmt"
	"time"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

type HeatPumpType string

const (
	HeatPumpAir    HeatPumpType = "Air"
	HeatPumpGround HeatPumpType = "Ground"
)

// DefaultHeatSysTemp is the supply temperature of the heating system in °C.
const DefaultHeatSysTemp = 40.0

type HeatPumpConfig struct {
	Type        HeatPumpType `json:"heat_pump_type" yaml:"heat_pump_type"`
	ElPower     float64      `json:"el_power" yaml:"el_power"`
	ThPower     float64      `json:"th_power" yaml:"th_power"` // 0: el_power times COP
	HeatSysTemp float64      `json:"heat_sys_temp" yaml:"heat_sys_temp"`
	RampConfig  `yaml:",inline"`
}

func (c *HeatPumpConfig) Validate(id string) error {
	if c.Type == "" {
		c.Type = HeatPumpAir
	}
	if c.HeatSysTemp == 0 {
		c.HeatSysTemp = DefaultHeatSysTemp
	}
	switch {
	case c.Type != HeatPumpAir && c.Type != HeatPumpGround:
		return invalid(id, "heat pump type %q must be %s or %s", c.Type, HeatPumpAir, HeatPumpGround)
	case c.ElPower <= 0:
		return invalid(id, "el power %v must be positive", c.ElPower)
	case c.ThPower < 0:
		return invalid(id, "th power %v must not be negative", c.ThPower)
	}
	return c.RampConfig.validate(id)
}

// HeatPump converts electricity into heat with a COP that depends on the
// lift between ambient and heating system temperature.
type HeatPump struct {
	producer
	cfg HeatPumpConfig
}

// NewHeatPump builds a heat pump. demand may be nil when the heat pump is
// driven by a thermal energy storage.
func NewHeatPump(id string, env *environment.Environment, demand ThermalDemand, cfg HeatPumpConfig) (*HeatPump, error) {
	if err := cfg.Validate(id); err != nil {
		return nil, err
	}
	hp := &HeatPump{
		producer: newProducer(id, component.ClassHeatPump, env, demand, cfg.RampConfig, 1),
		cfg:      cfg,
	}
	hp.output = hp.fullLoad
	hp.extra = func(i int, obs component.Observations) error {
		cop, err := hp.copAt(i)
		obs["cop"] = cop
		return err
	}
	return hp, nil
}

func (hp *HeatPump) Config() HeatPumpConfig { return hp.cfg }

// COP returns the coefficient of performance at ambient temperature ta (°C).
func (hp *HeatPump) COP(ta float64) float64 {
	dt := hp.cfg.HeatSysTemp - ta
	if hp.cfg.Type == HeatPumpGround {
		return 8.77 - 0.15*dt + 0.000734*dt*dt
	}
	return 6.81 - 0.121*dt + 0.000630*dt*dt
}

// COPAt returns the COP at the ambient temperature of step t.
func (hp *HeatPump) COPAt(t time.Time) (float64, error) {
	i, err := hp.Position(t)
	if err != nil {
		return 0, err
	}
	return hp.copAt(i)
}

// copAt is the COP at the air temperature of position i. The heat pump
// needs a temperature series; there is no fallback.
func (hp *HeatPump) copAt(i int) (float64, error) {
	ta, err := hp.Environment().TemperatureAt(i)
	if err != nil {
		return 0, fmt.Errorf("cop: %w", err)
	}
	return hp.COP(ta), nil
}

func (hp *HeatPump) fullLoad(i int) (el, th float64, err error) {
	if hp.cfg.ThPower > 0 {
		return hp.cfg.ElPower, hp.cfg.ThPower, nil
	}
	cop, err := hp.copAt(i)
	if err != nil {
		return 0, 0, err
	}
	return hp.cfg.ElPower, hp.cfg.ElPower * cop, nil
}

// PrepareTimeSeries covers the heat demand directly: el = demand / COP.
func (hp *HeatPump) PrepareTimeSeries() error {
	return hp.followDemand(func(i int, demand float64) (float64, float64, error) {
		cop, err := hp.copAt(i)
		if err != nil {
			return 0, 0, err
		}
		return demand / cop, demand, nil
	})
}
