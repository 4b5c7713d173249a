package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/simulator"
)

var t0 = time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)

func sampleRun(name string, started time.Time, steps int) *simulator.Run {
	run := &simulator.Run{
		ID:       uuid.New(),
		Name:     name,
		Started:  started,
		Finished: started.Add(time.Second),
		Summary: simulator.Summary{
			Steps:         steps,
			LoadKWh:       12.5,
			GridImportKWh: 4,
			ComponentKWh:  map[string]float64{"pv": -8.5},
		},
	}
	for i := 0; i < steps; i++ {
		run.Steps = append(run.Steps, simulator.StepResult{
			Index:        i,
			Timestamp:    t0.Add(time.Duration(i) * 15 * time.Minute),
			Values:       map[string]float64{"pv": -float64(i), "bev": 11},
			BaseloadKW:   0.5,
			GridKW:       11.5 - float64(i),
			MinVoltagePU: 0.98,
		})
	}
	run.Summary.RunID = run.ID.String()
	return run
}

// exercise runs the shared contract against any implementation.
func exercise(t *testing.T, repo Repository) {
	ctx := context.Background()

	first := sampleRun("first", t0, 4)
	second := sampleRun("second", t0.Add(time.Hour), 2)
	second.Err = errors.New("bev: non-finite value")
	require.NoError(t, repo.SaveRun(ctx, first))
	require.NoError(t, repo.SaveRun(ctx, second))

	got, err := repo.GetRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, 4, got.Steps)
	assert.True(t, t0.Equal(got.Started))
	assert.Equal(t, 12.5, got.Summary.LoadKWh)
	assert.Equal(t, -8.5, got.Summary.ComponentKWh["pv"])
	assert.Empty(t, got.Error)

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, "bev: non-finite value", runs[0].Error)

	runs, err = repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	steps, err := repo.GetSteps(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, 2, steps[2].Index)
	assert.True(t, first.Steps[2].Timestamp.Equal(steps[2].Timestamp))
	assert.Equal(t, -2.0, steps[2].Values["pv"])
	assert.Equal(t, 9.5, steps[2].GridKW)

	// Saving again replaces the steps.
	first.Steps = first.Steps[:1]
	require.NoError(t, repo.SaveRun(ctx, first))
	steps, err = repo.GetSteps(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, steps, 1)

	require.NoError(t, repo.DeleteRun(ctx, first.ID))
	_, err = repo.GetRun(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetSteps(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.DeleteRun(ctx, first.ID), ErrNotFound)
}

func TestSQLite(t *testing.T) {
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer repo.Close()

	exercise(t, repo)
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := NewPostgres(ctx, url)
	require.NoError(t, err)
	defer repo.Close()
	_, err = repo.Pool.Exec(ctx, `TRUNCATE runs CASCADE`)
	require.NoError(t, err)

	exercise(t, repo)
}

func TestOpen(t *testing.T) {
	repo, err := Open(context.Background(), "", "")
	require.NoError(t, err)
	assert.Nil(t, repo)

	repo, err = Open(context.Background(), "", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, repo)
	require.NoError(t, repo.Close())
}
