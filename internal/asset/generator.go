package asset

import (
	"fmt"
	"time"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/solar"
	"vpp_simulator/internal/wind"
)

// chainRunner is satisfied by both the solar and the wind model chains.
type chainRunner interface {
	Run(env *environment.Environment) ([]float64, error)
}

// generator is a weather-driven asset whose output is precomputed by a
// model chain. Its value is the negative output.
type generator struct {
	component.Base
	chain  chainRunner
	column string
}

func (g *generator) PrepareTimeSeries() error {
	out, err := g.chain.Run(g.Environment())
	if err != nil {
		return fmt.Errorf("%s: %w", g.ID(), err)
	}
	return g.Timeseries().SetColumn(g.column, out)
}

// ValueAt returns the generation at t as a negative load.
func (g *generator) ValueAt(t time.Time) (float64, error) {
	v, err := g.Column(g.column, t)
	if err != nil {
		return 0, err
	}
	return -v * g.Limit(), nil
}

func (g *generator) ObservationsAt(t time.Time) (component.Observations, error) {
	v, err := g.Column(g.column, t)
	if err != nil {
		return nil, err
	}
	return component.Observations{g.column: v, "limit": g.Limit()}, nil
}

// PV is a photovoltaic system.
type PV struct {
	generator
}

func NewPV(id string, env *environment.Environment, chain solar.ModelChain) *PV {
	return &PV{generator{
		Base:   component.NewBase(id, component.ClassPV, "kW", env),
		chain:  chain,
		column: "ac_power",
	}}
}

// Wind is a wind turbine.
type Wind struct {
	generator
}

func NewWind(id string, env *environment.Environment, chain wind.ModelChain) *Wind {
	return &Wind{generator{
		Base:   component.NewBase(id, component.ClassWind, "kW", env),
		chain:  chain,
		column: "power_output",
	}}
}
