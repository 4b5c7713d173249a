package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/grid"
)

func finishedRun(t *testing.T, steps int) *Run {
	t.Helper()
	env := newEnv(t, steps)
	v := NewVirtualPowerPlant("test", nil)
	require.NoError(t, v.AddComponent(newFixed("pv", component.ClassPV, env, -4)))
	require.NoError(t, v.AddComponent(newFixed("bev", component.ClassBEV, env, 11)))
	require.NoError(t, v.PinBus("pv", 2))
	require.NoError(t, v.PinBus("bev", 3))

	op, err := NewOperator(v, grid.NewRadialFeeder("feeder", 2, 0.03), env)
	require.NoError(t, err)
	run, err := op.RunBaseScenario(Baseload{2: constant(steps, 1), 3: constant(steps, 1)})
	require.NoError(t, err)
	return run
}

func TestExtractResults(t *testing.T) {
	run := finishedRun(t, 3)

	frames, err := ExtractResults(run.Snapshots)
	require.NoError(t, err)
	keys := make([]string, 0, len(frames))
	for k := range frames {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, ResultKeys(), keys)

	vm := frames["bus_vm_pu"]
	assert.Equal(t, 3, vm.Nrow())
	assert.Equal(t, []string{"timestamp", "mv", "lv_busbar", "house_0", "house_1"}, vm.Names())
	assert.Equal(t, t0.Add(quarter).Format(time.RFC3339), vm.Col("timestamp").Records()[1])
	for _, v := range vm.Col("house_1").Float() {
		assert.Less(t, v, 1.0)
	}

	loading := frames["line_loading_percent"]
	assert.Equal(t, []string{"timestamp", "line_0", "line_1"}, loading.Names())
}

func TestExtractSingleResult(t *testing.T) {
	run := finishedRun(t, 2)

	sgen, err := ExtractSingleResult(run.Snapshots, "sgen", "p_mw")
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.004, -0.004}, sgen.Col("pv").Float())

	load, err := ExtractSingleResult(run.Snapshots, "load", "p_mw")
	require.NoError(t, err)
	assert.Equal(t, []string{"timestamp", "baseload_0", "baseload_1", "bev"}, load.Names())
	assert.InDelta(t, 0.011, load.Col("bev").Float()[0], 1e-12)

	_, err = ExtractSingleResult(run.Snapshots, "switch", "p_mw")
	assert.ErrorIs(t, err, ErrUnknownResult)
	_, err = ExtractSingleResult(run.Snapshots, "bus", "loading_percent")
	assert.ErrorIs(t, err, ErrUnknownResult)

	_, err = ExtractSingleResult(grid.NewSnapshots(), "bus", "vm_pu")
	assert.ErrorIs(t, err, ErrNoSnapshots)
	_, err = ExtractResults(nil)
	assert.ErrorIs(t, err, ErrNoSnapshots)
}

func TestUniqueNames(t *testing.T) {
	assert.Equal(t, []string{"a", "1", "a_1", "a_2"}, uniqueNames([]string{"a", "", "a", "a"}))
}
