package simulator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

var (
	t0      = time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	quarter = 15 * time.Minute
)

func newEnv(t *testing.T, steps int) *environment.Environment {
	t.Helper()
	env, err := environment.New(environment.Config{
		Start:    t0.Format(time.RFC3339),
		End:      t0.Add(time.Duration(steps-1) * quarter).Format(time.RFC3339),
		Timezone: "UTC",
	})
	require.NoError(t, err)
	require.Equal(t, steps, env.Len())
	return env
}

// fixed is a component drawing the same power at every step.
type fixed struct {
	component.Base
	value float64
}

func newFixed(id string, class component.Class, env *environment.Environment, value float64) *fixed {
	return &fixed{Base: component.NewBase(id, class, "kW", env), value: value}
}

func (f *fixed) ValueAt(t time.Time) (float64, error) {
	if _, err := f.Position(t); err != nil {
		return 0, err
	}
	return f.value * f.Limit(), nil
}

func (f *fixed) ObservationsAt(t time.Time) (component.Observations, error) {
	v, err := f.ValueAt(t)
	if err != nil {
		return nil, err
	}
	return component.Observations{"value": v}, nil
}

func (f *fixed) PrepareTimeSeries() error { return nil }

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type mockCallback struct {
	mu        sync.Mutex
	states    []State
	steps     []StepResult
	summaries []Summary
}

func (m *mockCallback) OnState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *mockCallback) OnStep(s StepResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, s)
}

func (m *mockCallback) OnSummary(s Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
}

func (m *mockCallback) stepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

func (m *mockCallback) lastState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return State{}
	}
	return m.states[len(m.states)-1]
}

func (m *mockCallback) lastSummary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.summaries) == 0 {
		return Summary{}
	}
	return m.summaries[len(m.summaries)-1]
}
