package asset

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAirHeatPump(t *testing.T, ramp RampConfig) *HeatPump {
	t.Helper()
	hp, err := NewHeatPump("hp", newEnv(t, 1), constantDemand(3), HeatPumpConfig{
		ElPower:    2,
		RampConfig: ramp,
	})
	require.NoError(t, err)
	return hp
}

func TestRamp_MinTimes(t *testing.T) {
	hp := newAirHeatPump(t, RampConfig{MinRuntime: 4 * quarter, MinStopTime: 8 * quarter})

	assert.Equal(t, Accepted, hp.RampUp(at(0)))
	assert.Equal(t, NoChange, hp.RampUp(at(1)))
	assert.Equal(t, Rejected, hp.RampDown(at(2)))
	assert.True(t, hp.IsRunning())
	assert.Equal(t, Accepted, hp.RampDown(at(4)))
	assert.Equal(t, NoChange, hp.RampDown(at(5)))
	assert.Equal(t, Rejected, hp.RampUp(at(11)))
	assert.Equal(t, Accepted, hp.RampUp(at(12)))

	assert.Equal(t, at(12), hp.LastRampUp())
	assert.Equal(t, at(4), hp.LastRampDown())
	assert.Len(t, hp.RampHistory(), 3)
}

func TestRamp_NeverSwitchedIsLegit(t *testing.T) {
	hp := newAirHeatPump(t, RampConfig{MinRuntime: time.Hour, MinStopTime: time.Hour})
	assert.True(t, hp.IsLegitRampUp(at(0)))
	assert.True(t, hp.IsLegitRampDown(at(0)))
	assert.Equal(t, NoChange, hp.RampDown(at(0)))
}

func TestRamp_HistoryRespectsMinTimes(t *testing.T) {
	cfg := RampConfig{MinRuntime: 3 * quarter, MinStopTime: 5 * quarter}
	hp := newAirHeatPump(t, cfg)
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 96; i++ {
		if rng.IntN(2) == 0 {
			hp.RampUp(at(i))
		} else {
			hp.RampDown(at(i))
		}
	}

	history := hp.RampHistory()
	require.NotEmpty(t, history)
	for k := 1; k < len(history); k++ {
		prev, cur := history[k-1], history[k]
		assert.NotEqual(t, prev.Event, cur.Event)
		gap := cur.Time.Sub(prev.Time)
		if cur.Event == eventRampUp {
			assert.GreaterOrEqual(t, gap, cfg.MinStopTime)
		} else {
			assert.GreaterOrEqual(t, gap, cfg.MinRuntime)
		}
	}
}

func TestRamp_OutputRisesOverRampUpTime(t *testing.T) {
	hp, err := NewHeatPump("hp", withTemperature(t, newEnv(t, 1), 5), nil, HeatPumpConfig{
		ElPower:    2,
		ThPower:    6,
		RampConfig: RampConfig{RampUpTime: 2 * quarter, RampDownTime: 2 * quarter},
	})
	require.NoError(t, err)

	require.Equal(t, Accepted, hp.RampUp(at(0)))
	obs, err := hp.ObservationsAt(at(0))
	require.NoError(t, err)
	assert.InDelta(t, 3, obs["thermal_energy_output"], 1e-9)
	assert.InDelta(t, 1, obs["el_power"], 1e-9)

	obs, err = hp.ObservationsAt(at(1))
	require.NoError(t, err)
	assert.InDelta(t, 6, obs["thermal_energy_output"], 1e-9)

	require.Equal(t, Accepted, hp.RampDown(at(4)))
	obs, err = hp.ObservationsAt(at(4))
	require.NoError(t, err)
	assert.InDelta(t, 3, obs["thermal_energy_output"], 1e-9)
	obs, err = hp.ObservationsAt(at(5))
	require.NoError(t, err)
	assert.Equal(t, 0.0, obs["thermal_energy_output"])
}

func TestRampOutcome_String(t *testing.T) {
	assert.Equal(t, "no_change", NoChange.String())
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "rejected", Rejected.String())
}
