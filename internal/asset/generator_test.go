package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/model"
	"vpp_simulator/internal/solar"
	"vpp_simulator/internal/wind"
)

func TestPV_ProfileChain(t *testing.T) {
	env := newEnv(t, 1)
	pv := NewPV("pv", env, &solar.ProfileChain{Profile: solar.DefaultProfile(), PeakPower: 5})
	require.NoError(t, pv.PrepareTimeSeries())

	var peak float64
	for _, ts := range env.Index() {
		v, err := pv.ValueAt(ts)
		require.NoError(t, err)
		assert.LessOrEqual(t, v, 0.0)
		peak = min(peak, v)
	}
	assert.InDelta(t, -5, peak, 0.1)

	pv.LimitPowerTo(0.5)
	v, err := pv.ValueAt(at(47))
	require.NoError(t, err)
	obs, err := pv.ObservationsAt(at(47))
	require.NoError(t, err)
	assert.InDelta(t, -obs["ac_power"]/2, v, 1e-9)
	assert.Equal(t, 0.5, obs["limit"])
}

func TestWind_GenericTurbine(t *testing.T) {
	env := newEnv(t, 1)
	speeds := make([]float64, env.Len())
	for i := range speeds {
		speeds[i] = 15
	}
	require.NoError(t, env.SetWind(string(model.SeriesWindSpeed), 100, speeds))

	chain, err := wind.NewChain(wind.Turbine{NominalPower: 2000, HubHeight: 100}, wind.Models{})
	require.NoError(t, err)
	w := NewWind("wt", env, chain)
	assert.Equal(t, component.ClassWind, w.Class())
	require.NoError(t, w.PrepareTimeSeries())

	v, err := w.ValueAt(at(3))
	require.NoError(t, err)
	assert.InDelta(t, -2000, v, 1e-9)
}

func TestGenerator_PrepareFailsWithoutWeather(t *testing.T) {
	env := newEnv(t, 1)
	pv := NewPV("pv", env, solar.NewIrradianceChain(52.5, 13.4, solar.System{}))
	assert.ErrorIs(t, pv.PrepareTimeSeries(), solar.ErrMissingWeather)

	_, err := pv.ValueAt(at(0))
	assert.ErrorIs(t, err, component.ErrNotPrepared)
	_, err = pv.ValueAt(at(0).Add(-quarter))
	assert.ErrorIs(t, err, environment.ErrOutOfHorizon)
}
