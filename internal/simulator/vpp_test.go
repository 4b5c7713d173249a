package simulator

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/asset"
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/grid"
)

type constantDemand float64

func (c constantDemand) ThermalDemandAt(time.Time) (float64, error) { return float64(c), nil }

func TestVPP_AddRemove(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)

	require.NoError(t, v.AddComponent(newFixed("pv", component.ClassPV, env, -3)))
	require.NoError(t, v.AddComponent(newFixed("bev", component.ClassBEV, env, 5)))
	assert.ErrorIs(t, v.AddComponent(newFixed("pv", component.ClassPV, env, -1)), ErrDuplicateComponent)
	assert.Equal(t, 2, v.Len())

	assert.ErrorIs(t, v.RemoveComponent("nope"), ErrUnknownComponent)
	require.NoError(t, v.RemoveComponent("pv"))
	_, err := v.Component("pv")
	assert.ErrorIs(t, err, ErrUnknownComponent)

	ids := []string{}
	for _, c := range v.Components() {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"bev"}, ids)
}

func TestVPP_BalanceAt(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)
	require.NoError(t, v.AddComponent(newFixed("pv", component.ClassPV, env, -3)))
	require.NoError(t, v.AddComponent(newFixed("bev", component.ClassBEV, env, 5)))
	require.NoError(t, v.AddComponent(newFixed("hp", component.ClassHeatPump, env, 2)))

	b, err := v.BalanceAt(t0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, b, 1e-12)

	require.NoError(t, v.LimitPowerTo("bev", 0.5))
	b, err = v.BalanceAt(t0.Add(quarter))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, b, 1e-12)

	_, err = v.BalanceAt(t0.Add(-quarter))
	assert.Error(t, err)
	assert.ErrorIs(t, v.LimitPowerTo("nope", 1), ErrUnknownComponent)
}

func TestVPP_AssignBuses(t *testing.T) {
	net := grid.NewRadialFeeder("feeder", 10, 0.03)
	v := NewVirtualPowerPlant("test", nil)
	pct := map[component.Class]float64{
		component.ClassPV:      0.5,
		component.ClassBEV:     0.3,
		component.ClassStorage: 0.4,
	}

	got, err := v.AssignBuses(net, AssignRandomLoadBus, pct, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Len(t, got[component.ClassPV], 5)
	assert.Len(t, got[component.ClassBEV], 3)
	assert.Len(t, got[component.ClassStorage], 2)

	loadBuses := net.LoadBuses()
	for _, b := range got[component.ClassPV] {
		assert.Contains(t, loadBuses, b)
	}
	for _, b := range got[component.ClassStorage] {
		assert.Contains(t, got[component.ClassPV], b)
	}

	again, err := NewVirtualPowerPlant("other", nil).AssignBuses(net, AssignRandomLoadBus, pct, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, got, v.Buses())

	all, err := v.AssignBuses(net, AssignRandom, map[component.Class]float64{component.ClassWind: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, net.BusIndices(), all[component.ClassWind])
}

func TestVPP_AssignBuses_Errors(t *testing.T) {
	net := grid.NewRadialFeeder("feeder", 3, 0.03)
	v := NewVirtualPowerPlant("test", nil)

	_, err := v.AssignBuses(net, "nearest", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = v.AssignBuses(net, AssignRandom, map[component.Class]float64{component.ClassPV: 1.5}, nil)
	assert.ErrorIs(t, err, ErrInvalidPercentage)

	// Storage without PV has no buses to draw from.
	got, err := v.AssignBuses(net, AssignRandom, map[component.Class]float64{component.ClassStorage: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, got[component.ClassStorage])
}

func TestVPP_PlaceComponents(t *testing.T) {
	env := newEnv(t, 4)
	net := grid.NewRadialFeeder("feeder", 3, 0.03)
	v := NewVirtualPowerPlant("test", nil)
	for _, id := range []string{"pv1", "pv2", "pv3"} {
		require.NoError(t, v.AddComponent(newFixed(id, component.ClassPV, env, -1)))
	}
	st, err := asset.NewElectricalStorage("bat", env, asset.StorageConfig{Capacity: 5, ChargeEfficiency: 1, DischargeEfficiency: 1})
	require.NoError(t, err)
	require.NoError(t, v.AddComponent(st))
	require.NoError(t, v.AddComponent(newFixed("hp", component.ClassHeatPump, env, 2)))

	v.SetBuses(component.ClassPV, []int{2, 3})
	v.SetBuses(component.ClassStorage, []int{3})
	require.NoError(t, v.PinBus("hp", 4))
	assert.ErrorIs(t, v.PinBus("nope", 4), ErrUnknownComponent)

	require.NoError(t, v.PlaceComponents(net))

	buses := []int{}
	for _, id := range []string{"pv1", "pv2", "pv3"} {
		p, ok := v.Placement(id)
		require.True(t, ok)
		assert.Equal(t, TableSgen, p.Table)
		buses = append(buses, p.Bus)
	}
	assert.Equal(t, []int{2, 3, 2}, buses)

	p, _ := v.Placement("bat")
	assert.Equal(t, Placement{Bus: 3, Table: TableStorage, Row: 0}, p)
	p, _ = v.Placement("hp")
	assert.Equal(t, TableLoad, p.Table)
	assert.Equal(t, 4, p.Bus)
	assert.Equal(t, "hp", net.Loads[p.Row].Name)
	assert.Len(t, net.Sgens, 3)

	v.SetBuses(component.ClassPV, nil)
	assert.ErrorIs(t, v.PlaceComponents(grid.NewRadialFeeder("feeder", 3, 0.03)), ErrNoBus)
}

func TestTableFor_ThermalStorage(t *testing.T) {
	env := newEnv(t, 4)
	chp, err := asset.NewCHP("chp", env, nil, asset.CHPConfig{ElPower: 2, ThPower: 6})
	require.NoError(t, err)
	rod, err := asset.NewHeatingRod("rod", env, nil, asset.HeatingRodConfig{ElPower: 6})
	require.NoError(t, err)

	initial := 55.0
	cfg := asset.ThermalStorageConfig{
		TargetTemperature: 60, MinTemperature: 40, Hysteresis: 5,
		Mass: 500, CP: 4.2, DailyLossFraction: 0.13, InitialTemperature: &initial,
	}
	withCHP, err := asset.NewThermalEnergyStorage("tes_chp", env, constantDemand(2), chp, cfg)
	require.NoError(t, err)
	withRod, err := asset.NewThermalEnergyStorage("tes_rod", env, constantDemand(2), rod, cfg)
	require.NoError(t, err)

	assert.Equal(t, TableSgen, tableFor(withCHP))
	assert.Equal(t, TableLoad, tableFor(withRod))
}
