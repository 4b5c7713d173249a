package simulator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/asset"
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/grid"
)

// singleBus is an external grid feeding one low-voltage bus without loads.
func singleBus() *grid.Net {
	return &grid.Net{
		Name:     "single",
		Buses:    []grid.Bus{{Name: "mv", VnKV: 20}, {Name: "lv", VnKV: 0.4}},
		Trafos:   []grid.Trafo{{Name: "trafo", HVBus: 0, LVBus: 1, SnMVA: 0.4, VkPercent: 6, VkrPercent: 1.425}},
		ExtGrids: []grid.ExtGrid{{Name: "grid", Bus: 0, VmPU: 1}},
	}
}

func rowsKW(n *grid.Net) float64 { return n.TotalP() * 1000 }

func TestOperator_Balance(t *testing.T) {
	env := newEnv(t, 4)
	net := grid.NewRadialFeeder("feeder", 2, 0.03)
	v := NewVirtualPowerPlant("test", nil)
	require.NoError(t, v.AddComponent(newFixed("pv", component.ClassPV, env, -4)))
	require.NoError(t, v.AddComponent(newFixed("bev", component.ClassBEV, env, 3)))
	require.NoError(t, v.PinBus("pv", 2))
	require.NoError(t, v.PinBus("bev", 3))

	cb := &mockCallback{}
	op, err := NewOperator(v, net, env, WithSolver(grid.CopperPlate{}), WithCallback(cb))
	require.NoError(t, err)
	assert.Empty(t, net.Sgens, "caller's net is untouched")

	run, err := op.RunBaseScenario(Baseload{2: constant(4, 1), 3: constant(4, 2)})
	require.NoError(t, err)
	require.NoError(t, run.Err)

	assert.Equal(t, env.Index(), run.Snapshots.Timestamps())
	require.Len(t, run.Steps, 4)
	for _, s := range run.Steps {
		var sum float64
		for _, val := range s.Values {
			sum += val
		}
		assert.InDelta(t, s.BaseloadKW+sum, s.GridKW, 1e-9)
		assert.InDelta(t, 2.0, s.GridKW, 1e-9)
	}
	assert.InDelta(t, 2.0, rowsKW(op.Net()), 1e-9)
	assert.InDelta(t, -0.004, op.Net().Sgens[0].P, 1e-12)

	sum := run.Summary
	assert.Equal(t, 4, sum.Steps)
	assert.InDelta(t, 3.0, sum.LoadKWh, 1e-9)
	assert.InDelta(t, 4.0, sum.GenerationKWh, 1e-9)
	assert.InDelta(t, 3.0, sum.BaseloadKWh, 1e-9)
	assert.InDelta(t, 2.0, sum.GridImportKWh, 1e-9)
	assert.InDelta(t, 2.0, sum.PeakImportKW, 1e-9)
	assert.InDelta(t, -4.0, sum.ComponentKWh["pv"], 1e-9)
	assert.InDelta(t, 100*4/6.0, sum.SelfSufficiency(), 1e-9)

	assert.Equal(t, 4, cb.stepCount())
	assert.True(t, cb.states[0].Running)
	assert.False(t, cb.lastState().Running)
	assert.Equal(t, run.ID.String(), cb.lastSummary().RunID)
}

func TestOperator_StorageAbsorbsSurplus(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)
	require.NoError(t, v.AddComponent(newFixed("pv", component.ClassPV, env, -5)))
	st, err := asset.NewElectricalStorage("bat", env, asset.StorageConfig{Capacity: 2, ChargeEfficiency: 1, DischargeEfficiency: 1})
	require.NoError(t, err)
	require.NoError(t, v.AddComponent(st))
	require.NoError(t, v.PinBus("pv", 2))
	require.NoError(t, v.PinBus("bat", 2))

	op, err := NewOperator(v, grid.NewRadialFeeder("feeder", 2, 0.03), env, WithSolver(grid.CopperPlate{}))
	require.NoError(t, err)
	run, err := op.RunBaseScenario(Baseload{2: constant(4, 1)})
	require.NoError(t, err)

	// 4 kW surplus fills 2 kWh in two quarter hours, then passes through.
	wantStorage := []float64{4, 4, 0, 0}
	wantGrid := []float64{0, 0, -4, -4}
	for i, s := range run.Steps {
		assert.InDelta(t, wantStorage[i], s.Values["bat"], 1e-9, "step %d", i)
		assert.InDelta(t, wantGrid[i], s.GridKW, 1e-9, "step %d", i)
		assert.InDelta(t, s.BaseloadKW+s.Values["pv"]+s.Values["bat"], s.GridKW, 1e-9)
	}
	assert.InDelta(t, 2.0, st.StateOfCharge(), 1e-9)
	assert.InDelta(t, -0.004, op.Net().Sgens[0].P, 1e-12)
	assert.Zero(t, op.Net().Storages[0].P)
	assert.InDelta(t, 2.0, run.Summary.StorageChargeKWh, 1e-9)
	assert.InDelta(t, 2.0, run.Summary.GridExportKWh, 1e-9)
}

func TestOperator_StoragePowerCap(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)
	require.NoError(t, v.AddComponent(newFixed("pv", component.ClassPV, env, -5)))
	st, err := asset.NewElectricalStorage("bat", env, asset.StorageConfig{
		Capacity: 10, ChargeEfficiency: 1, DischargeEfficiency: 1, MaxPower: 2, MaxC: 1,
	})
	require.NoError(t, err)
	require.NoError(t, v.AddComponent(st))
	v.SetBuses(component.ClassPV, []int{2})
	v.SetBuses(component.ClassStorage, []int{2})

	op, err := NewOperator(v, grid.NewRadialFeeder("feeder", 2, 0.03), env, WithSolver(grid.CopperPlate{}))
	require.NoError(t, err)
	run, err := op.RunBaseScenario(Baseload{2: constant(4, 1)})
	require.NoError(t, err)

	s := run.Steps[0]
	assert.InDelta(t, 2.0, s.Values["bat"], 1e-9)
	assert.InDelta(t, -2.0, s.GridKW, 1e-9)
	assert.InDelta(t, 2.0, st.StateOfCharge(), 1e-9)
}

func TestOperator_StorageRowFallback(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)
	// A generator drawing standby power leaves a positive residual on a bus
	// without load rows.
	require.NoError(t, v.AddComponent(newFixed("pv", component.ClassPV, env, 2)))
	st, err := asset.NewElectricalStorage("bat", env, asset.StorageConfig{Capacity: 2, ChargeEfficiency: 1, DischargeEfficiency: 1})
	require.NoError(t, err)
	require.NoError(t, v.AddComponent(st))
	require.NoError(t, v.PinBus("pv", 1))
	require.NoError(t, v.PinBus("bat", 1))

	op, err := NewOperator(v, singleBus(), env, WithSolver(grid.CopperPlate{}))
	require.NoError(t, err)
	run, err := op.RunBaseScenario(nil)
	require.NoError(t, err)

	assert.Zero(t, op.Net().Sgens[0].P)
	assert.InDelta(t, 0.002, op.Net().Storages[0].P, 1e-12)
	assert.InDelta(t, 2.0, run.Steps[3].GridKW, 1e-9)
}

func TestOperator_StorageDischarges(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)
	st, err := asset.NewElectricalStorage("bat", env, asset.StorageConfig{
		Capacity: 2, ChargeEfficiency: 1, DischargeEfficiency: 1, InitialSOC: 1,
	})
	require.NoError(t, err)
	require.NoError(t, v.AddComponent(st))
	require.NoError(t, v.PinBus("bat", 2))

	op, err := NewOperator(v, grid.NewRadialFeeder("feeder", 2, 0.03), env, WithSolver(grid.CopperPlate{}))
	require.NoError(t, err)
	run, err := op.RunBaseScenario(Baseload{2: constant(4, 2)})
	require.NoError(t, err)

	// 1 kWh serves 2 kW for two quarter hours.
	want := []float64{0, 0, 2, 2}
	for i, s := range run.Steps {
		assert.InDelta(t, want[i], s.GridKW, 1e-9, "step %d", i)
	}
	assert.InDelta(t, 1.0, run.Summary.StorageDischargeKWh, 1e-9)
	assert.InDelta(t, 1.0, run.Summary.GridImportKWh, 1e-9)
}

func TestOperator_RadialSolver(t *testing.T) {
	env := newEnv(t, 2)
	v := NewVirtualPowerPlant("test", nil)
	require.NoError(t, v.AddComponent(newFixed("hp", component.ClassHeatPump, env, 10)))
	require.NoError(t, v.PinBus("hp", 4))

	op, err := NewOperator(v, grid.NewRadialFeeder("feeder", 3, 0.05), env)
	require.NoError(t, err)
	run, err := op.RunBaseScenario(Baseload{2: constant(2, 10), 3: constant(2, 10)})
	require.NoError(t, err)

	s := run.Steps[0]
	assert.Less(t, s.MinVoltagePU, 1.0)
	assert.Greater(t, s.LossesKW, 0.0)
	assert.Greater(t, s.GridKW, 30.0)
	assert.Greater(t, s.MaxLineLoadingPercent, 0.0)
	assert.Greater(t, s.MaxTrafoLoadingPercent, 0.0)
	assert.Greater(t, run.Summary.LossesKWh, 0.0)
}

func TestOperator_NonFiniteAborts(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)
	require.NoError(t, v.AddComponent(newFixed("pv", component.ClassPV, env, -1)))
	require.NoError(t, v.PinBus("pv", 2))

	cb := &mockCallback{}
	op, err := NewOperator(v, grid.NewRadialFeeder("feeder", 2, 0.03), env, WithSolver(grid.CopperPlate{}), WithCallback(cb))
	require.NoError(t, err)

	baseload := constant(4, 1)
	baseload[2] = math.NaN()
	run, err := op.RunBaseScenario(Baseload{3: baseload})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonFinite)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, env.At(2), stepErr.Timestamp)
	assert.Equal(t, "baseload_bus_3", stepErr.ComponentID)

	require.NotNil(t, run)
	assert.Equal(t, 2, run.Snapshots.Len())
	assert.NotEmpty(t, cb.lastState().Error)
}

func TestOperator_ComponentFailure(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)
	require.NoError(t, v.AddComponent(newFixed("bev", component.ClassBEV, env, math.Inf(1))))
	require.NoError(t, v.PinBus("bev", 2))

	op, err := NewOperator(v, grid.NewRadialFeeder("feeder", 2, 0.03), env, WithSolver(grid.CopperPlate{}))
	require.NoError(t, err)
	run, err := op.RunBaseScenario(nil)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "bev", stepErr.ComponentID)
	assert.Equal(t, t0, stepErr.Timestamp)
	assert.Zero(t, run.Snapshots.Len())
}

func TestOperator_InvalidBaseload(t *testing.T) {
	env := newEnv(t, 4)
	v := NewVirtualPowerPlant("test", nil)
	op, err := NewOperator(v, grid.NewRadialFeeder("feeder", 2, 0.03), env)
	require.NoError(t, err)

	_, err = op.RunBaseScenario(Baseload{2: constant(3, 1)})
	assert.ErrorIs(t, err, ErrInvalidBaseload)
	_, err = op.RunBaseScenario(Baseload{42: constant(4, 1)})
	assert.ErrorIs(t, err, ErrInvalidBaseload)
}

func TestOperator_BaseloadRowAdded(t *testing.T) {
	env := newEnv(t, 2)
	v := NewVirtualPowerPlant("test", nil)
	op, err := NewOperator(v, singleBus(), env, WithSolver(grid.CopperPlate{}))
	require.NoError(t, err)

	run, err := op.RunBaseScenario(Baseload{1: constant(2, 3)})
	require.NoError(t, err)
	require.Len(t, op.Net().Loads, 1)
	assert.Equal(t, "baseload_bus_1", op.Net().Loads[0].Name)
	assert.Equal(t, grid.TypeBaseload, op.Net().Loads[0].Type)
	assert.InDelta(t, 3.0, run.Steps[1].GridKW, 1e-9)
}
