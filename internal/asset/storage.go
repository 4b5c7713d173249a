package asset

import (
	"fmt"
	"time"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

// StorageConfig holds the parameters of a stationary battery.
type StorageConfig struct {
	Capacity            float64 `json:"capacity" yaml:"capacity"` // kWh
	ChargeEfficiency    float64 `json:"charge_efficiency" yaml:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency" yaml:"discharge_efficiency"`
	MaxPower            float64 `json:"max_power" yaml:"max_power"` // kW
	MaxC                float64 `json:"max_c" yaml:"max_c"`
	InitialSOC          float64 `json:"initial_soc" yaml:"initial_soc"` // kWh
}

func (c *StorageConfig) Validate(id string) error {
	if c.MaxC == 0 {
		c.MaxC = 1
	}
	switch {
	case c.Capacity <= 0:
		return invalid(id, "capacity %v must be positive", c.Capacity)
	case !inUnitInterval(c.ChargeEfficiency):
		return invalid(id, "charge efficiency %v not in (0, 1]", c.ChargeEfficiency)
	case !inUnitInterval(c.DischargeEfficiency):
		return invalid(id, "discharge efficiency %v not in (0, 1]", c.DischargeEfficiency)
	case c.MaxPower < 0 || c.MaxC < 0:
		return invalid(id, "max power %v and max c %v must not be negative", c.MaxPower, c.MaxC)
	case c.InitialSOC < 0 || c.InitialSOC > c.Capacity:
		return invalid(id, "initial state of charge %v not in [0, %v]", c.InitialSOC, c.Capacity)
	}
	return nil
}

// ElectricalStorage is a battery driven by the residual load of its bus.
type ElectricalStorage struct {
	component.Base
	cfg     StorageConfig
	soc     float64
	lastPos int
}

func NewElectricalStorage(id string, env *environment.Environment, cfg StorageConfig) (*ElectricalStorage, error) {
	if err := cfg.Validate(id); err != nil {
		return nil, err
	}
	return &ElectricalStorage{
		Base:    component.NewBase(id, component.ClassStorage, "kW", env),
		cfg:     cfg,
		soc:     cfg.InitialSOC,
		lastPos: -1,
	}, nil
}

func (s *ElectricalStorage) Config() StorageConfig  { return s.cfg }
func (s *ElectricalStorage) StateOfCharge() float64 { return s.soc }

// PowerCap bounds the residual a single step may feed into the storage.
// Zero means unbounded.
func (s *ElectricalStorage) PowerCap() float64 {
	return s.cfg.MaxPower * s.cfg.MaxC * s.Limit()
}

// Operate charges from a negative residual or discharges into a positive
// one and returns the new state of charge and the residual the storage
// could not absorb or serve. At a full or empty boundary the residual
// passes through unchanged.
func (s *ElectricalStorage) Operate(t time.Time, residual float64) (soc, remaining float64, err error) {
	i, err := s.Position(t)
	if err != nil {
		return 0, 0, err
	}
	if i <= s.lastPos {
		return 0, 0, fmt.Errorf("%s at %s: %w", s.ID(), t.Format(time.RFC3339), ErrStepOrder)
	}
	s.lastPos = i

	dt := s.Environment().StepHours()
	remaining = residual
	switch {
	case residual > 0 && s.soc > 0:
		withdraw := residual * dt / s.cfg.DischargeEfficiency
		if withdraw > s.soc {
			served := s.soc * s.cfg.DischargeEfficiency / dt
			remaining = residual - served
			s.soc = 0
		} else {
			s.soc -= withdraw
			remaining = 0
		}
	case residual < 0 && s.soc < s.cfg.Capacity:
		add := -residual * s.cfg.ChargeEfficiency * dt
		if s.soc+add > s.cfg.Capacity {
			absorbed := (s.cfg.Capacity - s.soc) / (s.cfg.ChargeEfficiency * dt)
			remaining = residual + absorbed
			s.soc = s.cfg.Capacity
		} else {
			s.soc += add
			remaining = 0
		}
	}

	ts := s.Timeseries()
	ts.Set("state_of_charge", i, s.soc)
	ts.Set("residual_load", i, remaining)
	ts.Set("power", i, remaining-residual)
	return s.soc, remaining, nil
}

// ValueAt returns the storage power at t: positive while charging. Steps not
// yet operated contribute nothing.
func (s *ElectricalStorage) ValueAt(t time.Time) (float64, error) {
	i, err := s.Position(t)
	if err != nil {
		return 0, err
	}
	v, _ := s.Timeseries().At("power", i)
	return v, nil
}

func (s *ElectricalStorage) ObservationsAt(t time.Time) (component.Observations, error) {
	i, err := s.Position(t)
	if err != nil {
		return nil, err
	}
	obs := component.Observations{"state_of_charge": s.soc}
	ts := s.Timeseries()
	if v, ok := ts.At("state_of_charge", i); ok {
		obs["state_of_charge"] = v
		obs["residual_load"], _ = ts.At("residual_load", i)
		obs["power"], _ = ts.At("power", i)
	}
	return obs, nil
}

// PrepareTimeSeries is a no-op: the storage advances step by step.
func (s *ElectricalStorage) PrepareTimeSeries() error { return nil }

func (s *ElectricalStorage) ResetTimeSeries() {
	s.Base.ResetTimeSeries()
	s.soc = s.cfg.InitialSOC
	s.lastPos = -1
}
