package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vpp_simulator/internal/simulator"
)

const stepBatchSize = 500

// StoredRun is the runs table. Summary holds the JSON summary.
type StoredRun struct {
	ID         string    `gorm:"primaryKey"`
	Name       string
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	Steps      int
	Error      string
	Summary    string
}

// StoredStep is one row of the steps table. ComponentValues holds the
// JSON map of component values.
type StoredStep struct {
	RunID                  string    `gorm:"primaryKey"`
	Idx                    int       `gorm:"primaryKey"`
	Time                   time.Time
	BaseloadKW             float64
	GridKW                 float64
	LossesKW               float64
	MinVoltagePU           float64
	MaxLineLoadingPercent  float64
	MaxTrafoLoadingPercent float64
	ComponentValues        string
}

// SQLite stores runs in a local database file.
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Migrate the schema
	if err := db.AutoMigrate(&StoredRun{}, &StoredStep{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (r *SQLite) SaveRun(ctx context.Context, run *simulator.Run) error {
	rec := recordOf(run)
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	steps := make([]StoredStep, len(run.Steps))
	for i, s := range run.Steps {
		values, err := json.Marshal(s.Values)
		if err != nil {
			return fmt.Errorf("marshal step %d: %w", i, err)
		}
		steps[i] = StoredStep{
			RunID:                  rec.ID.String(),
			Idx:                    s.Index,
			Time:                   s.Timestamp,
			BaseloadKW:             s.BaseloadKW,
			GridKW:                 s.GridKW,
			LossesKW:               s.LossesKW,
			MinVoltagePU:           s.MinVoltagePU,
			MaxLineLoadingPercent:  s.MaxLineLoadingPercent,
			MaxTrafoLoadingPercent: s.MaxTrafoLoadingPercent,
			ComponentValues:        string(values),
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored := StoredRun{
			ID:         rec.ID.String(),
			Name:       rec.Name,
			StartedAt:  rec.Started,
			FinishedAt: rec.Finished,
			Steps:      rec.Steps,
			Error:      rec.Error,
			Summary:    string(summary),
		}
		if err := tx.Save(&stored).Error; err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		if err := tx.Where("run_id = ?", stored.ID).Delete(&StoredStep{}).Error; err != nil {
			return fmt.Errorf("clear steps: %w", err)
		}
		if len(steps) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(steps, stepBatchSize).Error; err != nil {
			return fmt.Errorf("insert steps: %w", err)
		}
		return nil
	})
}

func (r *SQLite) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	var stored StoredRun
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec, err := stored.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLite) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	var stored []StoredRun
	query := r.db.WithContext(ctx).Order("started_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&stored).Error; err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(stored))
	for _, s := range stored {
		rec, err := s.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *SQLite) GetSteps(ctx context.Context, id uuid.UUID) ([]simulator.StepResult, error) {
	if _, err := r.GetRun(ctx, id); err != nil {
		return nil, err
	}
	var stored []StoredStep
	if err := r.db.WithContext(ctx).Where("run_id = ?", id.String()).Order("idx asc").Find(&stored).Error; err != nil {
		return nil, err
	}
	out := make([]simulator.StepResult, len(stored))
	for i, s := range stored {
		out[i] = simulator.StepResult{
			Index:                  s.Idx,
			Timestamp:              s.Time,
			BaseloadKW:             s.BaseloadKW,
			GridKW:                 s.GridKW,
			LossesKW:               s.LossesKW,
			MinVoltagePU:           s.MinVoltagePU,
			MaxLineLoadingPercent:  s.MaxLineLoadingPercent,
			MaxTrafoLoadingPercent: s.MaxTrafoLoadingPercent,
		}
		if err := json.Unmarshal([]byte(s.ComponentValues), &out[i].Values); err != nil {
			return nil, fmt.Errorf("step %d values: %w", s.Idx, err)
		}
	}
	return out, nil
}

func (r *SQLite) DeleteRun(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id.String()).Delete(&StoredStep{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id.String()).Delete(&StoredRun{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (r *SQLite) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (s StoredRun) record() (RunRecord, error) {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return RunRecord{}, fmt.Errorf("run id %q: %w", s.ID, err)
	}
	rec := RunRecord{
		ID:       id,
		Name:     s.Name,
		Started:  s.StartedAt,
		Finished: s.FinishedAt,
		Steps:    s.Steps,
		Error:    s.Error,
	}
	if err := json.Unmarshal([]byte(s.Summary), &rec.Summary); err != nil {
		return RunRecord{}, fmt.Errorf("run %s summary: %w", s.ID, err)
	}
	return rec, nil
}
