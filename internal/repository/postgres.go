package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vpp_simulator/internal/simulator"
)

// Postgres stores runs in PostgreSQL through a connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &Postgres{Pool: pool}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (db *Postgres) Migrate(ctx context.Context) error {
	for _, m := range []string{migrationCreateRuns, migrationCreateSteps} {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

const migrationCreateRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    steps INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    summary JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

const migrationCreateSteps = `
CREATE TABLE IF NOT EXISTS run_steps (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    baseload_kw DOUBLE PRECISION NOT NULL,
    grid_kw DOUBLE PRECISION NOT NULL,
    losses_kw DOUBLE PRECISION NOT NULL,
    min_voltage_pu DOUBLE PRECISION NOT NULL,
    max_line_loading_percent DOUBLE PRECISION NOT NULL,
    max_trafo_loading_percent DOUBLE PRECISION NOT NULL,
    component_values JSONB NOT NULL,
    PRIMARY KEY (run_id, idx)
);
`

var stepColumns = []string{
	"run_id", "idx", "ts", "baseload_kw", "grid_kw", "losses_kw",
	"min_voltage_pu", "max_line_loading_percent", "max_trafo_loading_percent", "component_values",
}

func (db *Postgres) SaveRun(ctx context.Context, run *simulator.Run) error {
	rec := recordOf(run)
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	rows := make([][]any, len(run.Steps))
	for i, s := range run.Steps {
		values, err := json.Marshal(s.Values)
		if err != nil {
			return fmt.Errorf("marshal step %d: %w", i, err)
		}
		rows[i] = []any{
			rec.ID.String(), s.Index, s.Timestamp, s.BaseloadKW, s.GridKW, s.LossesKW,
			s.MinVoltagePU, s.MaxLineLoadingPercent, s.MaxTrafoLoadingPercent, string(values),
		}
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO runs (id, name, started_at, finished_at, steps, error, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			steps = EXCLUDED.steps,
			error = EXCLUDED.error,
			summary = EXCLUDED.summary
	`
	if _, err := tx.Exec(ctx, query,
		rec.ID.String(),
		rec.Name,
		rec.Started,
		rec.Finished,
		rec.Steps,
		rec.Error,
		string(summary),
	); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM run_steps WHERE run_id = $1`, rec.ID.String()); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"run_steps"}, stepColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy steps: %w", err)
	}
	return tx.Commit(ctx)
}

const selectRun = `SELECT id, name, started_at, finished_at, steps, error, summary FROM runs`

func scanRun(row pgx.Row) (RunRecord, error) {
	var (
		rec     RunRecord
		id      string
		summary []byte
	)
	if err := row.Scan(&id, &rec.Name, &rec.Started, &rec.Finished, &rec.Steps, &rec.Error, &summary); err != nil {
		return RunRecord{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("run id %q: %w", id, err)
	}
	rec.ID = parsed
	if err := json.Unmarshal(summary, &rec.Summary); err != nil {
		return RunRecord{}, fmt.Errorf("run %s summary: %w", id, err)
	}
	return rec, nil
}

func (db *Postgres) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	rec, err := scanRun(db.Pool.QueryRow(ctx, selectRun+` WHERE id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &rec, nil
}

func (db *Postgres) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Pool.Query(ctx, selectRun+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (db *Postgres) GetSteps(ctx context.Context, id uuid.UUID) ([]simulator.StepResult, error) {
	if _, err := db.GetRun(ctx, id); err != nil {
		return nil, err
	}
	query := `
		SELECT idx, ts, baseload_kw, grid_kw, losses_kw, min_voltage_pu,
			max_line_loading_percent, max_trafo_loading_percent, component_values
		FROM run_steps
		WHERE run_id = $1
		ORDER BY idx
	`
	rows, err := db.Pool.Query(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()

	var out []simulator.StepResult
	for rows.Next() {
		var (
			s      simulator.StepResult
			values []byte
		)
		if err := rows.Scan(&s.Index, &s.Timestamp, &s.BaseloadKW, &s.GridKW, &s.LossesKW, &s.MinVoltagePU,
			&s.MaxLineLoadingPercent, &s.MaxTrafoLoadingPercent, &values); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(values, &s.Values); err != nil {
			return nil, fmt.Errorf("step %d values: %w", s.Index, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *Postgres) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM runs WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (db *Postgres) Close() error {
	db.Pool.Close()
	return nil
}
