package postgres

import (
	"context"

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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		string(run.Mode),
		run.StartFrom,
		run.TargetEnd,
		run.Inserted,
		run.Deleted,
		run.FailedDays,
		string(run.Status),
		run.Error,
	)
	return describe(err)
}

// ListRuns returns the newest runs first; limit <= 0 returns all
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.ReconcileRun, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	query := `
		SELECT id, started_at, finished_at, mode, start_from, target_end, inserted, deleted, failed_days, status, error
		FROM reconcile_runs
		ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, describe(err)
	}
	defer rows.Close()

	var runs []models.ReconcileRun
	for rows.Next() {
		var r models.ReconcileRun
		var mode, status string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &mode, &r.StartFrom, &r.TargetEnd,
			&r.Inserted, &r.Deleted, &r.FailedDays, &status, &r.Error); err != nil {
			return nil, err
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
		INSERT INTO slot_gaps (slot_date, run_id, error, recorded_at) VALUES ($1::date, $2, $3, $4)
		ON CONFLICT (slot_date) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			error = EXCLUDED.error,
			recorded_at = EXCLUDED.recorded_at`,
		gap.SlotDate, gap.RunID, gap.Error, gap.RecordedAt.UTC())
	return describe(err)
}

func (s *Store) ListGaps(ctx context.Context) ([]models.SlotGap, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(slot_date, 'YYYY-MM-DD'), run_id, error, recorded_at
		FROM slot_gaps
		ORDER BY slot_date`)
	if err != nil {
		return nil, describe(err)
	}
	defer rows.Close()

	var gaps []models.SlotGap
	for rows.Next() {
		var g models.SlotGap
		if err := rows.Scan(&g.SlotDate, &g.RunID, &g.Error, &g.RecordedAt); err != nil {
			return nil, err
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

func (s *Store) ClearGap(ctx context.Context, date string) error {
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM slot_gaps WHERE slot_date = $1::date", date)
	return describe(err)
}
