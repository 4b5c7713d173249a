package grid

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedFeeder(p float64) *Net {
	n := NewRadialFeeder("test", 3, 0.05)
	for i := range n.Loads {
		n.Loads[i].P = p
	}
	return n
}

func TestNewRadialFeeder(t *testing.T) {
	n := NewRadialFeeder("test", 3, 0.05)
	require.NoError(t, n.Validate())
	assert.Len(t, n.Buses, 5)
	assert.Len(t, n.Lines, 3)
	assert.Equal(t, []int{2, 3, 4}, n.LoadBuses())
	idx, ok := n.BusIndex("house_1")
	require.True(t, ok)
	assert.Equal(t, 3, idx)
}

func TestRadialSolver_NoLoad(t *testing.T) {
	n := loadedFeeder(0)
	require.NoError(t, NewRadialSolver().RunPowerFlow(n))
	for _, b := range n.Results.Bus {
		assert.InDelta(t, 1, b.VmPU, 1e-12)
	}
	assert.InDelta(t, 0, n.Results.ExtGrid[0].PMW, 1e-12)
}

func TestRadialSolver_LoadedFeeder(t *testing.T) {
	n := loadedFeeder(0.01)
	require.NoError(t, NewRadialSolver().RunPowerFlow(n))
	res := n.Results

	imported := res.ExtGrid[0].PMW
	assert.Greater(t, imported, 0.03)
	var losses float64
	for _, l := range res.Line {
		losses += l.PlMW
	}
	losses += res.Trafo[0].PlMW
	assert.InDelta(t, 0.03+losses, imported, 1e-9)

	for k := 1; k < len(res.Bus); k++ {
		assert.Less(t, res.Bus[k].VmPU, res.Bus[k-1].VmPU, "voltage drops along the feeder")
	}
	assert.InDelta(t, 0.995, res.Bus[4].VmPU, 0.003)
	assert.Greater(t, res.Line[0].LoadingPercent, res.Line[2].LoadingPercent)
	assert.InDelta(t, 0.03+losses, res.Trafo[0].PHVMW, 1e-9)
	assert.Greater(t, res.Trafo[0].LoadingPercent, 7.0)
	assert.Equal(t, 0.01, res.Load[1].PMW)
}

func TestRadialSolver_GenerationRaisesVoltage(t *testing.T) {
	n := loadedFeeder(0)
	n.AddSgen(Element{Name: "pv", Bus: 4, P: -0.03})
	require.NoError(t, NewRadialSolver().RunPowerFlow(n))
	assert.Greater(t, n.Results.Bus[4].VmPU, 1.0)
	assert.Less(t, n.Results.ExtGrid[0].PMW, 0.0)
	assert.Equal(t, -0.03, n.Results.Sgen[0].PMW)
}

func TestRadialSolver_Topology(t *testing.T) {
	loop := loadedFeeder(0.01)
	loop.Lines = append(loop.Lines, Line{Name: "ring", FromBus: 4, ToBus: 1, LengthKM: 0.1, ROhmPerKM: 0.2})
	assert.ErrorIs(t, NewRadialSolver().RunPowerFlow(loop), ErrNotRadial)

	island := loadedFeeder(0.01)
	island.Buses = append(island.Buses, Bus{Name: "island", VnKV: 0.4})
	assert.ErrorIs(t, NewRadialSolver().RunPowerFlow(island), ErrDisconnected)
}

func TestRadialSolver_VoltageCollapse(t *testing.T) {
	n := loadedFeeder(50)
	assert.ErrorIs(t, NewRadialSolver().RunPowerFlow(n), ErrNotConverged)
}

func TestValidate(t *testing.T) {
	n := loadedFeeder(0)
	n.AddLoad(Element{Name: "baseload_0", Bus: 2})
	assert.ErrorIs(t, n.Validate(), ErrInvalidNet)

	n = loadedFeeder(0)
	n.AddStorage(Element{Name: "ees", Bus: 42})
	assert.ErrorIs(t, n.Validate(), ErrInvalidNet)

	n = loadedFeeder(0)
	n.ExtGrids = nil
	assert.ErrorIs(t, n.Validate(), ErrInvalidNet)
}

func TestLoad(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, loadedFeeder(0.002)))
	n, err := Load(&buf)
	require.NoError(t, err)
	assert.Len(t, n.Loads, 3)
	assert.Equal(t, TypeBaseload, n.Loads[0].Type)

	_, err = Load(strings.NewReader(`{"bus": [{"name": "a", "vn_kv": 0.4}]}`))
	assert.ErrorIs(t, err, ErrInvalidNet)
}

func TestSnapshots(t *testing.T) {
	n := loadedFeeder(0.01)
	require.NoError(t, NewRadialSolver().RunPowerFlow(n))

	t0 := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps := NewSnapshots()
	snaps.Put(Capture(t0, n))
	snaps.Put(Capture(t0.Add(15*time.Minute), n))
	snaps.Put(Capture(t0, n))
	assert.Equal(t, 2, snaps.Len())
	assert.Equal(t, []time.Time{t0, t0.Add(15 * time.Minute)}, snaps.Timestamps())

	snap, ok := snaps.Get(t0)
	require.True(t, ok)
	n.Results.Bus[4].VmPU = 0
	assert.NotZero(t, snap.Results.Bus[4].VmPU)
	assert.Equal(t, "house_2", snap.Names["bus"][4])
	assert.Equal(t, "baseload_0", snap.Names["load"][0])
}

func TestCopperPlate(t *testing.T) {
	n := loadedFeeder(0.01)
	n.AddSgen(Element{Name: "pv", Bus: 3, P: -0.004})
	require.NoError(t, CopperPlate{}.RunPowerFlow(n))

	assert.InDelta(t, 0.026, n.Results.ExtGrid[0].PMW, 1e-12)
	assert.InDelta(t, 0.006, n.Results.Bus[3].PMW, 1e-12)
	for _, b := range n.Results.Bus {
		assert.Equal(t, 1.0, b.VmPU)
	}
	assert.Len(t, n.Results.Sgen, 1)
}
