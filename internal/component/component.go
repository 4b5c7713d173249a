// Package component defines the contract every asset of a virtual power
// plant implements, and the state shared by all of them.
package component

import (
	"errors"
	"time"

	"vpp_simulator/internal/environment"
)

var (
	ErrInvalidConfig = errors.New("invalid component configuration")
	ErrNotPrepared   = errors.New("time series not prepared")
)

// Class is the asset class of a component. It decides which grid table a
// component is written to and which bus list it is assigned from.
type Class string

const (
	ClassPV                   Class = "pv"
	ClassWind                 Class = "wind"
	ClassBEV                  Class = "bev"
	ClassHeatPump             Class = "heat_pump"
	ClassHeatingRod           Class = "heating_rod"
	ClassCHP                  Class = "chp"
	ClassStorage              Class = "storage"
	ClassThermalEnergyStorage Class = "thermal_energy_storage"
	ClassElectrolyzer         Class = "electrolyzer"
)

// Generates reports whether components of the class feed in (sgen table).
func (c Class) Generates() bool {
	return c == ClassPV || c == ClassWind || c == ClassCHP
}

// Observations holds asset-specific diagnostics for one timestamp.
type Observations map[string]float64

// Component is implemented by every asset. Values are in kW, positive for
// load and negative for generation.
type Component interface {
	ID() string
	Class() Class
	Unit() string
	Limit() float64
	ValueAt(t time.Time) (float64, error)
	ObservationsAt(t time.Time) (Observations, error)
	PrepareTimeSeries() error
	ResetTimeSeries()
	LimitPowerTo(limit float64)
	Timeseries() *Frame
}

// Base carries the identifier, unit, power limit and time series that all
// assets share. Embed it and call NewBase.
type Base struct {
	id     string
	unit   string
	class  Class
	env    *environment.Environment
	limit  float64
	series *Frame
}

func NewBase(id string, class Class, unit string, env *environment.Environment) Base {
	return Base{
		id:     id,
		unit:   unit,
		class:  class,
		env:    env,
		limit:  1,
		series: NewFrame(env.Index()),
	}
}

func (b *Base) ID() string                            { return b.id }
func (b *Base) Class() Class                          { return b.class }
func (b *Base) Unit() string                          { return b.unit }
func (b *Base) Environment() *environment.Environment { return b.env }
func (b *Base) Limit() float64                        { return b.limit }
func (b *Base) Timeseries() *Frame                    { return b.series }

// LimitPowerTo sets the output limit. Values outside [0, 1] are ignored.
func (b *Base) LimitPowerTo(limit float64) {
	if limit < 0 || limit > 1 {
		return
	}
	b.limit = limit
}

// ResetTimeSeries drops every stored column.
func (b *Base) ResetTimeSeries() {
	b.series = NewFrame(b.env.Index())
}

// Position resolves t against the environment index.
func (b *Base) Position(t time.Time) (int, error) {
	return b.env.Position(t)
}

// Column returns the value of a prepared column at t.
func (b *Base) Column(name string, t time.Time) (float64, error) {
	i, err := b.env.Position(t)
	if err != nil {
		return 0, err
	}
	v, ok := b.series.At(name, i)
	if !ok {
		return 0, ErrNotPrepared
	}
	return v, nil
}
