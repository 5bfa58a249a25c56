package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/bayslots/internal/constants"
	"github.com/julianstephens/bayslots/internal/models"
	"github.com/julianstephens/bayslots/internal/storage"
)

func (s *Store) RecordRun(ctx context.Context, run models.ReconcileRun) error {
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconcile_runs
			(id, started_at, finished_at, mode, start_from, target_end, inserted, deleted, failed_days, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(run.Mode),
		run.StartFrom,
		run.TargetEnd,
		run.Inserted,
		run.Deleted,
		run.FailedDays,
		string(run.Status),
		run.Error,
	)
	return err
}

// ListRuns returns the newest runs first; limit <= 0 returns all
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.ReconcileRun, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, mode, start_from, target_end, inserted, deleted, failed_days, status, error
		FROM reconcile_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ReconcileRun
	for rows.Next() {
		var r models.ReconcileRun
		var started, finished, mode, status string
		if err := rows.Scan(&r.ID, &started, &finished, &mode, &r.StartFrom, &r.TargetEnd,
			&r.Inserted, &r.Deleted, &r.FailedDays, &status, &r.Error); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: invalid started_at %q: %w", r.ID, started, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("run %s: invalid finished_at %q: %w", r.ID, finished, err)
		}
		r.Mode = constants.RunMode(mode)
		r.Status = constants.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordGap upserts: a date that fails again keeps one row with the latest error
func (s *Store) RecordGap(ctx context.Context, gap models.SlotGap) error {
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slot_gaps (slot_date, run_id, error, recorded_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (slot_date) DO UPDATE SET
			run_id = excluded.run_id,
			error = excluded.error,
			recorded_at = excluded.recorded_at`,
		gap.SlotDate, gap.RunID, gap.Error, gap.RecordedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) ListGaps(ctx context.Context) ([]models.SlotGap, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	rows, err := s.db.QueryContext(ctx, "SELECT slot_date, run_id, error, recorded_at FROM slot_gaps ORDER BY slot_date")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []models.SlotGap
	for rows.Next() {
		var g models.SlotGap
		var recorded string
		if err := rows.Scan(&g.SlotDate, &g.RunID, &g.Error, &recorded); err != nil {
			return nil, err
		}
		if g.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("gap %s: invalid recorded_at %q: %w", g.SlotDate, recorded, err)
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

func (s *Store) ClearGap(ctx context.Context, date string) error {
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM slot_gaps WHERE slot_date = ?", date)
	return err
}
