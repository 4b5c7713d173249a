package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/asset"
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/grid"
	"vpp_simulator/internal/simulator"
)

const scenarioYAML = `
name: street
seed: 7
environment:
  start: "2015-06-01 00:00"
  end: "2015-06-01 23:00"
  timebase: 60
  timezone: UTC
profile:
  identifier: house
  latitude: 50.94
  longitude: 6.96
  thermal_energy_demand: 12500
  building_type: DE_HEF33
  baseload: 0.5
inputs:
  - path: weather.csv
grid:
  houses: 3
  length_km: 0.03
components:
  - id: pv
    type: pv
    pv:
      peak_power: 8
  - id: bat
    type: storage
    storage:
      capacity: 5
      charge_efficiency: 0.95
      discharge_efficiency: 0.95
  - id: ev
    type: bev
    bus: 4
    bev:
      battery_max: 50
      battery_min: 5
      battery_usage: 5
      charging_power: 11
      charge_efficiency: 0.98
      load_degradation_begin: 0.8
      work_departures: ["07:00"]
      work_arrivals: ["17:00"]
  - id: tes
    type: thermal_energy_storage
    thermal_storage:
      target_temperature: 60
      min_temperature: 40
      hysteresis: 5
      mass: 500
      cp: 4.2
      daily_loss_fraction: 0.13
      producer:
        type: chp
        chp:
          el_power: 2
          th_power: 6
          ramp_up_time: 15m
`

func writeWeather(t *testing.T, dir string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,temp_air,bus_2\n")
	for h := 0; h < 24; h++ {
		fmt.Fprintf(&b, "2015-06-01 %02d:00:00,%d,1.5\n", h, 15+h/3)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.csv"), []byte(b.String()), 0o644))
}

func loadScenario(t *testing.T) (*Scenario, string) {
	t.Helper()
	dir := t.TempDir()
	writeWeather(t, dir)
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))

	sc, base, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, dir, base)
	return sc, base
}

func TestParse(t *testing.T) {
	sc, _ := loadScenario(t)
	assert.Equal(t, "street", sc.Name)
	assert.Equal(t, 60, sc.Environment.Timebase)
	require.Len(t, sc.Components, 4)

	ev := sc.Components[2]
	require.NotNil(t, ev.Bus)
	assert.Equal(t, 4, *ev.Bus)
	assert.Equal(t, 50.0, ev.BEV.BatteryMax)
	assert.Equal(t, []string{"07:00"}, ev.BEV.WorkDepartures)

	producer := sc.Components[3].ThermalStorage.Producer
	require.NotNil(t, producer)
	assert.Equal(t, component.ClassCHP, producer.Type)
	assert.Equal(t, 15*time.Minute, producer.CHP.RampUpTime)

	_, err := Parse(strings.NewReader("name: x\nunknown_key: 1\n"))
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	sc, dir := loadScenario(t)
	sim, err := sc.Build(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, "street", sim.Name)
	assert.Equal(t, 24, sim.Env.Len())
	assert.Equal(t, 4, sim.VPP.Len())
	assert.Len(t, sim.Net.Buses, 5)
	assert.IsType(t, &grid.RadialSolver{}, sim.Solver)

	// bus 2 comes from the input file, the others from the profile baseload.
	require.Len(t, sim.Baseload, 3)
	assert.Equal(t, 1.5, sim.Baseload[2][0])
	assert.Equal(t, 0.5, sim.Baseload[3][23])
	assert.Equal(t, 0.5, sim.Baseload[4][0])

	assert.Equal(t, []int{2, 3, 4}, sim.VPP.Buses()[component.ClassPV])

	c, err := sim.VPP.Component("tes")
	require.NoError(t, err)
	tes, ok := c.(*asset.ThermalEnergyStorage)
	require.True(t, ok)
	assert.Equal(t, "tes_producer", tes.Producer().ID())
	assert.Equal(t, component.ClassCHP, tes.Producer().Class())

	c, err = sim.VPP.Component("ev")
	require.NoError(t, err)
	bev := c.(*asset.BEV)
	assert.Equal(t, 50.0, bev.Config().BatteryMax)
}

func TestSimulation_Operator(t *testing.T) {
	sc, dir := loadScenario(t)
	sc.Components = sc.Components[:3]
	sim, err := sc.Build(dir, nil)
	require.NoError(t, err)
	require.NoError(t, sim.Prepare())

	op, err := sim.Operator(simulator.WithSolver(grid.CopperPlate{}))
	require.NoError(t, err)
	run, err := op.RunBaseScenario(sim.Baseload)
	require.NoError(t, err)
	assert.Equal(t, "street", run.Name)
	assert.Len(t, run.Steps, 24)

	p, ok := sim.VPP.Placement("ev")
	require.True(t, ok)
	assert.Equal(t, 4, p.Bus)
}

func TestSimulation_RerunIsRepeatable(t *testing.T) {
	sc, dir := loadScenario(t)
	sc.Components = sc.Components[:3]
	sim, err := sc.Build(dir, nil)
	require.NoError(t, err)

	run := func() []float64 {
		require.NoError(t, sim.Prepare())
		op, err := sim.Operator(simulator.WithSolver(grid.CopperPlate{}))
		require.NoError(t, err)
		res, err := op.RunBaseScenario(sim.Baseload)
		require.NoError(t, err)
		ev := make([]float64, len(res.Steps))
		for i, s := range res.Steps {
			ev[i] = s.Values["ev"]
		}
		return ev
	}

	first := run()
	c, err := sim.VPP.Component("ev")
	require.NoError(t, err)
	trips := append([]asset.Trip(nil), c.(*asset.BEV).Trips()...)

	assert.Equal(t, first, run())
	assert.Equal(t, trips, c.(*asset.BEV).Trips())
}

func TestBuild_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"unknown solver", func(sc *Scenario) { sc.Solver = "newton" }},
		{"no grid", func(sc *Scenario) { sc.Grid = Grid{} }},
		{"unknown type", func(sc *Scenario) { sc.Components[0].Type = "fusion" }},
		{"missing block", func(sc *Scenario) { sc.Components[1].Storage = nil }},
		{"missing id", func(sc *Scenario) { sc.Components[0].ID = "" }},
		{"bad schedule", func(sc *Scenario) { sc.Components[2].BEV.WorkArrivals = []string{"25:00"} }},
		{"bad input format", func(sc *Scenario) { sc.Inputs[0].Format = "xml" }},
		{"pv without peak", func(sc *Scenario) { sc.Components[0].PV.PeakPower = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, dir := loadScenario(t)
			tc.mutate(sc)
			_, err := sc.Build(dir, nil)
			assert.ErrorIs(t, err, ErrInvalidScenario)
		})
	}
}

func TestBEVSchedule(t *testing.T) {
	b := BEV{TripDepartures: []string{"11:00", "09:30"}}
	s, err := b.schedule()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{9*time.Hour + 30*time.Minute, 11 * time.Hour}, s.TripDepartures)
	assert.Equal(t, asset.DefaultSchedule().WorkDepartures, s.WorkDepartures)
}
