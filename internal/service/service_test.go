package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/repository"
	"vpp_simulator/internal/scenario"
	"vpp_simulator/internal/simulator"
)

const scenarioYAML = `
name: street
seed: 3
solver: copperplate
environment:
  start: "2015-06-01 00:00"
  end: "2015-06-01 23:00"
  timebase: 60
  timezone: UTC
profile:
  identifier: house
  latitude: 50.94
  longitude: 6.96
  building_type: DE_HEF33
  baseload: 0.5
inputs:
  - path: weather.csv
grid:
  houses: 2
components:
  - id: pv
    type: pv
    pv:
      peak_power: 6
  - id: bat
    type: storage
    storage:
      capacity: 5
      charge_efficiency: 0.95
      discharge_efficiency: 0.95
`

func newSimulation(t *testing.T) *scenario.Simulation {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("timestamp,temp_air\n")
	for h := 0; h < 24; h++ {
		fmt.Fprintf(&b, "2015-06-01 %02d:00:00,%d\n", h, 14+h/4)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.csv"), []byte(b.String()), 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))

	sc, base, err := scenario.LoadFile(path)
	require.NoError(t, err)
	sim, err := sc.Build(base, nil)
	require.NoError(t, err)
	return sim
}

type memRepo struct {
	mu    sync.Mutex
	saved []*simulator.Run
}

func (r *memRepo) SaveRun(_ context.Context, run *simulator.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, run)
	return nil
}

func (r *memRepo) GetRun(context.Context, uuid.UUID) (*repository.RunRecord, error) {
	return nil, repository.ErrNotFound
}

func (r *memRepo) ListRuns(context.Context, int) ([]repository.RunRecord, error) { return nil, nil }

func (r *memRepo) GetSteps(context.Context, uuid.UUID) ([]simulator.StepResult, error) {
	return nil, repository.ErrNotFound
}

func (r *memRepo) DeleteRun(context.Context, uuid.UUID) error { return nil }
func (r *memRepo) Close() error                               { return nil }

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

type countingCallback struct {
	mu      sync.Mutex
	steps   int
	summary simulator.Summary
}

func (c *countingCallback) OnState(simulator.State) {}

func (c *countingCallback) OnStep(simulator.StepResult) {
	c.mu.Lock()
	c.steps++
	c.mu.Unlock()
}

func (c *countingCallback) OnSummary(s simulator.Summary) {
	c.mu.Lock()
	c.summary = s
	c.mu.Unlock()
}

func TestService_Info(t *testing.T) {
	svc := New(newSimulation(t))
	info := svc.Info()
	assert.Equal(t, "street", info.Name)
	assert.Equal(t, 24, info.Steps)
	assert.Equal(t, 60, info.Timebase)
	assert.Equal(t, 4, info.Buses)
	require.Len(t, info.Components, 2)
	assert.Equal(t, "pv", info.Components[0].ID)
	assert.Nil(t, info.Components[0].Bus)
	assert.Empty(t, info.LastRunID)
}

func TestService_Run(t *testing.T) {
	repo := &memRepo{}
	cb := &countingCallback{}
	svc := New(newSimulation(t), WithRepository(repo), WithRunCallback(cb))

	_, err := svc.LastRun()
	assert.ErrorIs(t, err, ErrNoRun)

	run, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, run.Steps, 24)
	assert.Equal(t, 24, cb.steps)
	assert.Equal(t, 24, cb.summary.Steps)
	assert.Equal(t, 1, repo.count())

	last, err := svc.LastRun()
	require.NoError(t, err)
	assert.Equal(t, run.ID, last.ID)

	info := svc.Info()
	assert.Equal(t, run.ID.String(), info.LastRunID)
	require.NotNil(t, info.Components[0].Bus)
	assert.Equal(t, simulator.TableSgen, info.Components[0].Table)

	df, err := svc.Result("bus", "vm_pu")
	require.NoError(t, err)
	assert.Equal(t, 24, df.Nrow())

	_, err = svc.Result("bus", "nope")
	assert.ErrorIs(t, err, simulator.ErrUnknownResult)
}

func TestService_RunTwice(t *testing.T) {
	svc := New(newSimulation(t))
	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	second, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.InDelta(t, first.Summary.GridImportKWh, second.Summary.GridImportKWh, 1e-9)
}

func TestService_LimitComponent(t *testing.T) {
	svc := New(newSimulation(t))
	base, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.LimitComponent("pv", 0.5))
	limited, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, base.Summary.ComponentKWh["pv"]/2, limited.Summary.ComponentKWh["pv"], 1e-6)

	assert.Error(t, svc.LimitComponent("missing", 0.5))
}

func TestService_Busy(t *testing.T) {
	svc := New(newSimulation(t))
	svc.running = true
	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, svc.StartRun(), ErrBusy)
	assert.ErrorIs(t, svc.LimitComponent("pv", 0.5), ErrBusy)
}

func TestService_StartRun(t *testing.T) {
	svc := New(newSimulation(t))
	require.NoError(t, svc.StartRun())
	require.Eventually(t, func() bool {
		_, err := svc.LastRun()
		return err == nil && !svc.Running()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_Replay(t *testing.T) {
	cb := &countingCallback{}
	svc := New(newSimulation(t), WithReplayCallback(cb), WithReplaySpeed(60))

	_, err := svc.Replay()
	assert.ErrorIs(t, err, ErrNoRun)

	_, err = svc.Run(context.Background())
	require.NoError(t, err)
	p, err := svc.Replay()
	require.NoError(t, err)
	assert.Equal(t, 60.0, p.State().Speed)

	p.Step(2 * time.Hour)
	assert.Equal(t, 3, cb.steps)
	svc.Stop()
	assert.False(t, p.State().Running)
}

func TestService_ComponentIDs(t *testing.T) {
	svc := New(newSimulation(t))
	assert.Equal(t, []string{"bat", "pv"}, svc.ComponentIDs())
}
