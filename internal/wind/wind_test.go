package wind

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/model"
)

func newEnv(t *testing.T) *environment.Environment {
	t.Helper()
	env, err := environment.New(environment.Config{
		Start:    "2015-01-01 00:00",
		End:      "2015-01-01 01:45",
		Timezone: "UTC",
	})
	require.NoError(t, err)
	return env
}

func constant(env *environment.Environment, v float64) []float64 {
	out := make([]float64, env.Len())
	for i := range out {
		out[i] = v
	}
	return out
}

func TestGenericPowerCurve(t *testing.T) {
	c, err := NewChain(Turbine{NominalPower: 2000, HubHeight: 100}, Models{})
	require.NoError(t, err)

	assert.Equal(t, 0.0, c.Power(2, standardDensity))
	assert.InDelta(t, 2000, c.Power(15, standardDensity), 1e-9)
	assert.Equal(t, 0.0, c.Power(26, standardDensity))
	assert.Greater(t, c.Power(10, standardDensity), c.Power(8, standardDensity))
}

func TestNewChain_Errors(t *testing.T) {
	_, err := NewChain(Turbine{HubHeight: 100}, Models{})
	assert.ErrorIs(t, err, ErrInvalidCurve)

	_, err = NewChain(Turbine{NominalPower: 1, HubHeight: 100}, Models{WindSpeed: "cubic"})
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = NewChain(Turbine{NominalPower: 1}, Models{})
	assert.ErrorIs(t, err, ErrInvalidCurve)
}

func TestHubWindSpeed(t *testing.T) {
	log, err := NewChain(Turbine{NominalPower: 1, HubHeight: 100}, Models{})
	require.NoError(t, err)
	assert.InDelta(t, 5*math.Log(100/0.15)/math.Log(10/0.15), log.HubWindSpeed(5, 10, 0.15), 1e-9)
	assert.Equal(t, 5.0, log.HubWindSpeed(5, 100, 0.15))

	hellman, err := NewChain(Turbine{NominalPower: 1, HubHeight: 100}, Models{WindSpeed: "hellman"})
	require.NoError(t, err)
	assert.InDelta(t, 5*math.Pow(10, 1.0/7), hellman.HubWindSpeed(5, 10, 0.15), 1e-9)
}

func TestHubDensity(t *testing.T) {
	c, err := NewChain(Turbine{NominalPower: 1, HubHeight: 0.0001}, Models{})
	require.NoError(t, err)
	// Standard atmosphere at sea level.
	assert.InDelta(t, standardDensity, c.HubDensity(101325, 0, 288.15), 1e-3)

	ideal, err := NewChain(Turbine{NominalPower: 1, HubHeight: 0.0001}, Models{Density: "ideal_gas"})
	require.NoError(t, err)
	assert.InDelta(t, 1.225, ideal.HubDensity(101325, 0, 288.15), 1e-3)
}

func TestDensityCorrection_ThinAirLowersOutput(t *testing.T) {
	c, err := NewChain(Turbine{NominalPower: 2000, HubHeight: 100}, Models{DensityCorrection: true})
	require.NoError(t, err)
	assert.Less(t, c.Power(8, 1.0), c.Power(8, standardDensity))
}

func TestChain_Run(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.SetWind(string(model.SeriesWindSpeed), 10, constant(env, 6)))
	require.NoError(t, env.SetWind(string(model.SeriesWindSpeed), 80, constant(env, 9)))
	require.NoError(t, env.SetWind(string(model.SeriesRoughness), 0, constant(env, 0.15)))

	c, err := NewChain(Turbine{NominalPower: 2000, HubHeight: 80}, Models{})
	require.NoError(t, err)
	out, err := c.Run(env)
	require.NoError(t, err)
	require.Len(t, out, env.Len())
	for _, v := range out {
		assert.InDelta(t, c.Power(9, standardDensity), v, 1e-9)
	}
}

func TestChain_RunMissingWeather(t *testing.T) {
	c, err := NewChain(Turbine{NominalPower: 2000, HubHeight: 80}, Models{})
	require.NoError(t, err)
	_, err = c.Run(newEnv(t))
	assert.ErrorIs(t, err, ErrMissingWeather)

	env := newEnv(t)
	require.NoError(t, env.SetWind(string(model.SeriesWindSpeed), 10, constant(env, 6)))
	corrected, err := NewChain(Turbine{NominalPower: 2000, HubHeight: 80}, Models{DensityCorrection: true})
	require.NoError(t, err)
	_, err = corrected.Run(env)
	assert.ErrorIs(t, err, ErrMissingWeather)
}
