// Package repository persists finished runs: the summary and every step.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"vpp_simulator/internal/simulator"
)

var ErrNotFound = errors.New("run not found")

// RunRecord is a stored run without its steps.
type RunRecord struct {
	ID       uuid.UUID         `json:"id"`
	Name     string            `json:"name"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Steps    int               `json:"steps"`
	Error    string            `json:"error,omitempty"`
	Summary  simulator.Summary `json:"summary"`
}

// Repository is implemented by SQLite and Postgres.
type Repository interface {
	// SaveRun writes the run and replaces any steps stored under its ID.
	SaveRun(ctx context.Context, run *simulator.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	// ListRuns returns the newest runs first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetSteps(ctx context.Context, id uuid.UUID) ([]simulator.StepResult, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
	Close() error
}

func recordOf(run *simulator.Run) RunRecord {
	rec := RunRecord{
		ID:       run.ID,
		Name:     run.Name,
		Started:  run.Started,
		Finished: run.Finished,
		Steps:    len(run.Steps),
		Summary:  run.Summary,
	}
	if run.Err != nil {
		rec.Error = run.Err.Error()
	}
	return rec
}

// Open picks Postgres when databaseURL is set, SQLite when sqlitePath is
// set, and returns nil when neither is.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Repository, error) {
	switch {
	case databaseURL != "":
		db, err := NewPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	case sqlitePath != "":
		db, err := NewSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, nil
}
