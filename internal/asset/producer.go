package asset

import (
	"errors"
	"fmt"
	"time"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

// ErrNoThermalDemand is returned when a device has to follow a heat demand
// but was built without one.
var ErrNoThermalDemand = errors.New("no thermal demand source")

// ThermalDemand supplies the heat demand (kW) to be covered at t.
type ThermalDemand interface {
	ThermalDemandAt(t time.Time) (float64, error)
}

// ThermalProducer is a ramp-constrained heat source a thermal buffer can
// switch and account for.
type ThermalProducer interface {
	component.Component
	IsRunning() bool
	RampUp(t time.Time) RampOutcome
	RampDown(t time.Time) RampOutcome
	// RecordStep writes the output at t into the time series.
	RecordStep(t time.Time) error
}

// producer is the state shared by heat pumps, CHP units and heating rods.
// Columns written: is_running, el_power, thermal_energy_output.
type producer struct {
	component.Base
	*rampState
	demand ThermalDemand
	// sign turns el_power into the component value: +1 load, -1 generation.
	sign float64
	// output is the full-load electrical and thermal power at step i.
	output func(i int) (el, th float64, err error)
	// extra adds device-specific observations.
	extra func(i int, obs component.Observations) error
	// standalone is set once followDemand has filled the series.
	standalone bool
}

func newProducer(id string, class component.Class, env *environment.Environment, demand ThermalDemand, ramp RampConfig, sign float64) producer {
	return producer{
		Base:      component.NewBase(id, class, "kW", env),
		rampState: newRampState(ramp),
		demand:    demand,
		sign:      sign,
	}
}

// live is the output in the current ramp state. The power limit scales
// electrical and thermal output alike.
func (p *producer) live(t time.Time, i int) (component.Observations, error) {
	frac := p.fraction(t, p.Environment().Step()) * p.Limit()
	el, th, err := p.output(i)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.ID(), err)
	}
	obs := component.Observations{
		"is_running":            boolValue(p.IsRunning()),
		"el_power":              el * frac,
		"thermal_energy_output": th * frac,
	}
	if p.extra != nil {
		if err := p.extra(i, obs); err != nil {
			return nil, fmt.Errorf("%s: %w", p.ID(), err)
		}
	}
	return obs, nil
}

// ObservationsAt returns the recorded output at t, or the output the
// device would deliver at t in its current state.
func (p *producer) ObservationsAt(t time.Time) (component.Observations, error) {
	i, err := p.Position(t)
	if err != nil {
		return nil, err
	}
	ts := p.Timeseries()
	if _, ok := ts.At("el_power", i); !ok {
		return p.live(t, i)
	}
	obs := component.Observations{}
	for _, col := range ts.Columns() {
		if v, ok := ts.At(col, i); ok {
			obs[col] = v
		}
	}
	return obs, nil
}

func (p *producer) RecordStep(t time.Time) error {
	i, err := p.Position(t)
	if err != nil {
		return err
	}
	obs, err := p.live(t, i)
	if err != nil {
		return err
	}
	ts := p.Timeseries()
	for col, v := range obs {
		ts.Set(col, i, v)
	}
	return nil
}

// ValueAt returns the recorded electrical power at t, signed. A standalone
// series is scaled by the power limit here; steps recorded under a thermal
// buffer already carry it.
func (p *producer) ValueAt(t time.Time) (float64, error) {
	v, err := p.Column("el_power", t)
	if err != nil {
		return 0, err
	}
	if p.standalone {
		v *= p.Limit()
	}
	return p.sign * v, nil
}

func (p *producer) ResetTimeSeries() {
	p.Base.ResetTimeSeries()
	p.restart()
	p.standalone = false
}

// followDemand runs the device standalone: at every step serve(demand)
// returns the electrical and thermal power needed to cover the demand.
func (p *producer) followDemand(serve func(i int, demand float64) (el, th float64, err error)) error {
	if p.demand == nil {
		return fmt.Errorf("%s: %w", p.ID(), ErrNoThermalDemand)
	}
	ts := p.Timeseries()
	for i, t := range p.Environment().Index() {
		demand, err := p.demand.ThermalDemandAt(t)
		if err != nil {
			return fmt.Errorf("%s: thermal demand at %s: %w", p.ID(), t.Format(time.RFC3339), err)
		}
		el, th, err := serve(i, demand)
		if err != nil {
			return fmt.Errorf("%s: %w", p.ID(), err)
		}
		ts.Set("el_power", i, el)
		ts.Set("thermal_energy_output", i, th)
		ts.Set("is_running", i, boolValue(el > 0))
		if p.extra != nil {
			obs := component.Observations{}
			if err := p.extra(i, obs); err != nil {
				return fmt.Errorf("%s: %w", p.ID(), err)
			}
			for col, v := range obs {
				ts.Set(col, i, v)
			}
		}
	}
	p.standalone = true
	return nil
}
