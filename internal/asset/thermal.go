package asset

import (
	"errors"
	"fmt"
	"time"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

// ErrBelowMinTemperature means the producer could not keep the buffer
// above its minimum temperature.
var ErrBelowMinTemperature = errors.New("thermal storage below minimum temperature")

const kelvinOffset = 273.15

type ThermalStorageConfig struct {
	TargetTemperature  float64  `json:"target_temperature" yaml:"target_temperature"` // °C
	MinTemperature     float64  `json:"min_temperature" yaml:"min_temperature"`
	Hysteresis         float64  `json:"hysteresis" yaml:"hysteresis"`
	Mass               float64  `json:"mass" yaml:"mass"` // kg
	CP                 float64  `json:"cp" yaml:"cp"`     // kJ/(kg·K)
	DailyLossFraction  float64  `json:"daily_loss_fraction" yaml:"daily_loss_fraction"`
	InitialTemperature *float64 `json:"initial_temperature,omitempty" yaml:"initial_temperature,omitempty"` // defaults to target
}

func (c *ThermalStorageConfig) Validate(id string) error {
	switch {
	case c.Mass <= 0 || c.CP <= 0:
		return invalid(id, "mass %v and cp %v must be positive", c.Mass, c.CP)
	case c.Hysteresis < 0:
		return invalid(id, "hysteresis %v must not be negative", c.Hysteresis)
	case c.MinTemperature >= c.TargetTemperature-c.Hysteresis:
		return invalid(id, "min temperature %v must be below the hysteresis band around %v", c.MinTemperature, c.TargetTemperature)
	case c.DailyLossFraction < 0 || c.DailyLossFraction >= 1:
		return invalid(id, "daily loss fraction %v not in [0, 1)", c.DailyLossFraction)
	case c.InitialTemperature != nil && *c.InitialTemperature < c.MinTemperature:
		return invalid(id, "initial temperature %v below min temperature %v", *c.InitialTemperature, c.MinTemperature)
	}
	return nil
}

// ThermalEnergyStorage is a hot-water buffer charged by a ramp-constrained
// producer under hysteresis control. It is the component registered with
// the plant; its value is the electrical power of the producer.
type ThermalEnergyStorage struct {
	component.Base
	cfg          ThermalStorageConfig
	demand       ThermalDemand
	producer     ThermalProducer
	temperature  float64
	soc          float64
	needsLoading bool
	lastPos      int
}

func NewThermalEnergyStorage(id string, env *environment.Environment, demand ThermalDemand, producer ThermalProducer, cfg ThermalStorageConfig) (*ThermalEnergyStorage, error) {
	if err := cfg.Validate(id); err != nil {
		return nil, err
	}
	if demand == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNoThermalDemand)
	}
	if producer == nil {
		return nil, invalid(id, "a thermal producer is required")
	}
	s := &ThermalEnergyStorage{
		Base:     component.NewBase(id, component.ClassThermalEnergyStorage, "kW", env),
		cfg:      cfg,
		demand:   demand,
		producer: producer,
	}
	s.restore()
	return s, nil
}

func (s *ThermalEnergyStorage) restore() {
	t := s.cfg.TargetTemperature
	if s.cfg.InitialTemperature != nil {
		t = *s.cfg.InitialTemperature
	}
	s.temperature = t
	s.soc = s.energyAt(t)
	s.needsLoading = false
	s.lastPos = -1
}

func (s *ThermalEnergyStorage) Config() ThermalStorageConfig { return s.cfg }
func (s *ThermalEnergyStorage) Producer() ThermalProducer    { return s.producer }
func (s *ThermalEnergyStorage) Temperature() float64         { return s.temperature }

// StateOfCharge is the stored energy m·cp·T with T in kelvin.
func (s *ThermalEnergyStorage) StateOfCharge() float64 { return s.soc }

func (s *ThermalEnergyStorage) energyAt(celsius float64) float64 {
	return s.cfg.Mass * s.cfg.CP * (celsius + kelvinOffset)
}

// LossFactor is the share of energy kept over one step.
func (s *ThermalEnergyStorage) LossFactor() float64 {
	return 1 - s.cfg.DailyLossFraction/(24*s.Environment().StepsPerHour())
}

// NeedsLoading applies the hysteresis band to the current temperature.
func (s *ThermalEnergyStorage) NeedsLoading() (bool, error) {
	switch {
	case s.temperature < s.cfg.MinTemperature:
		return false, fmt.Errorf("%s: %.2f °C < %.2f °C: %w", s.ID(), s.temperature, s.cfg.MinTemperature, ErrBelowMinTemperature)
	case s.temperature <= s.cfg.TargetTemperature-s.cfg.Hysteresis:
		s.needsLoading = true
	case s.temperature >= s.cfg.TargetTemperature+s.cfg.Hysteresis:
		s.needsLoading = false
	}
	return s.needsLoading, nil
}

// Operate advances the buffer by the step starting at t: it switches the
// producer, balances demand against production and applies the standing
// loss. It returns the new temperature and the producer's electrical power.
func (s *ThermalEnergyStorage) Operate(t time.Time, producer ThermalProducer) (temperature, electrical float64, err error) {
	i, err := s.Position(t)
	if err != nil {
		return 0, 0, err
	}
	if i != s.lastPos+1 {
		return 0, 0, fmt.Errorf("%s at %s: %w", s.ID(), t.Format(time.RFC3339), ErrStepOrder)
	}

	needs, err := s.NeedsLoading()
	if err != nil {
		return 0, 0, err
	}
	if needs {
		producer.RampUp(t)
	} else {
		producer.RampDown(t)
	}

	demand, err := s.demand.ThermalDemandAt(t)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: thermal demand at %s: %w", s.ID(), t.Format(time.RFC3339), err)
	}
	obs, err := producer.ObservationsAt(t)
	if err != nil {
		return 0, 0, err
	}
	production := obs["thermal_energy_output"]

	s.soc = (s.soc - (demand-production)*1000/s.Environment().StepsPerHour()) * s.LossFactor()
	s.temperature = s.soc/(s.cfg.Mass*s.cfg.CP) - kelvinOffset
	s.lastPos = i

	if err := producer.RecordStep(t); err != nil {
		return 0, 0, err
	}
	electrical, err = producer.ValueAt(t)
	if err != nil {
		return 0, 0, err
	}

	ts := s.Timeseries()
	ts.Set("temperature", i, s.temperature)
	ts.Set("state_of_charge", i, s.soc)
	ts.Set("needs_loading", i, boolValue(needs))
	ts.Set("thermal_demand", i, demand)
	ts.Set("thermal_production", i, production)
	ts.Set("el_power", i, electrical)
	return s.temperature, electrical, nil
}

// ValueAt advances the buffer up to t, once per step, and returns the
// producer's electrical power at t.
func (s *ThermalEnergyStorage) ValueAt(t time.Time) (float64, error) {
	i, err := s.Position(t)
	if err != nil {
		return 0, err
	}
	env := s.Environment()
	for pos := s.lastPos + 1; pos <= i; pos++ {
		if _, _, err := s.Operate(env.At(pos), s.producer); err != nil {
			return 0, err
		}
	}
	v, _ := s.Timeseries().At("el_power", i)
	return v, nil
}

func (s *ThermalEnergyStorage) ObservationsAt(t time.Time) (component.Observations, error) {
	i, err := s.Position(t)
	if err != nil {
		return nil, err
	}
	obs := component.Observations{
		"temperature":     s.temperature,
		"state_of_charge": s.soc,
		"needs_loading":   boolValue(s.needsLoading),
	}
	ts := s.Timeseries()
	for _, col := range ts.Columns() {
		if v, ok := ts.At(col, i); ok {
			obs[col] = v
		}
	}
	return obs, nil
}

// PrepareTimeSeries only checks that the producer can deliver at the first
// step; the buffer itself advances step by step.
func (s *ThermalEnergyStorage) PrepareTimeSeries() error {
	if s.Environment().Len() == 0 {
		return nil
	}
	_, err := s.producer.ObservationsAt(s.Environment().At(0))
	return err
}

func (s *ThermalEnergyStorage) ResetTimeSeries() {
	s.Base.ResetTimeSeries()
	s.producer.ResetTimeSeries()
	s.restore()
}

// LimitPowerTo limits the producer.
func (s *ThermalEnergyStorage) LimitPowerTo(limit float64) {
	s.Base.LimitPowerTo(limit)
	s.producer.LimitPowerTo(limit)
}
