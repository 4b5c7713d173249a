package asset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/environment"
)

var (
	t0      = time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	quarter = 15 * time.Minute
)

// at returns the timestamp of step i of a quarter-hourly index starting at t0.
func at(i int) time.Time { return t0.Add(time.Duration(i) * quarter) }

func newEnv(t *testing.T, days int) *environment.Environment {
	t.Helper()
	env, err := environment.New(environment.Config{
		Start:    t0.Format(time.RFC3339),
		End:      t0.Add(time.Duration(days)*24*time.Hour - quarter).Format(time.RFC3339),
		Timezone: "UTC",
	})
	require.NoError(t, err)
	return env
}

// constantDemand is a ThermalDemand returning the same kW at every step.
type constantDemand float64

func (c constantDemand) ThermalDemandAt(time.Time) (float64, error) { return float64(c), nil }

// withTemperature loads a constant air temperature into env.
func withTemperature(t *testing.T, env *environment.Environment, celsius float64) *environment.Environment {
	t.Helper()
	temps := make([]float64, env.Len())
	for i := range temps {
		temps[i] = celsius
	}
	require.NoError(t, env.SetTemperature(temps))
	return env
}
