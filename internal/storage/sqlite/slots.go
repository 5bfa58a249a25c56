package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julianstephens/bayslots/internal/models"
	"github.com/julianstephens/bayslots/internal/storage"
)

func (s *Store) ListActiveBays(ctx context.Context) ([]models.ServiceBay, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_active
		FROM service_bays
		WHERE is_active = 1
		ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bays []models.ServiceBay
	for rows.Next() {
		var b models.ServiceBay
		if err := rows.Scan(&b.ID, &b.Name, &b.IsActive); err != nil {
			return nil, err
		}
		bays = append(bays, b)
	}
	return bays, rows.Err()
}

// AddBay inserts or renames a bay. Bays are owned by admin tooling; this
// exists for local databases and fixtures.
func (s *Store) AddBay(ctx context.Context, bay models.ServiceBay) error {
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_bays (id, name, is_active) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, is_active = excluded.is_active`,
		bay.ID, bay.Name, bay.IsActive)
	return err
}

func (s *Store) MaxSlotDate(ctx context.Context) (string, bool, error) {
	if s.db == nil {
		return "", false, storage.ErrNotLoaded
	}
	var max sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(slot_date) FROM time_slots").Scan(&max); err != nil {
		return "", false, err
	}
	if !max.Valid || max.String == "" {
		return "", false, nil
	}
	return max.String, true, nil
}

// InsertSlotsIgnoreDuplicates writes the batch in one transaction. Rows whose
// (slot_date, start_time, bay_id) already exists are skipped untouched.
func (s *Store) InsertSlotsIgnoreDuplicates(ctx context.Context, slots []models.TimeSlot) (int, error) {
	if s.db == nil {
		return 0, storage.ErrNotLoaded
	}
	if len(slots) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO time_slots (bay_id, slot_date, start_time, end_time, is_available)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (slot_date, start_time, bay_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, slot := range slots {
		res, err := stmt.ExecContext(ctx, slot.BayID, slot.SlotDate, slot.StartTime, slot.EndTime, slot.IsAvailable)
		if err != nil {
			return 0, fmt.Errorf("failed to insert slot %s: %w", slot.Key(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit slots: %w", err)
	}
	return inserted, nil
}

func (s *Store) DeleteAvailableSlotsBefore(ctx context.Context, before string) (int, error) {
	if s.db == nil {
		return 0, storage.ErrNotLoaded
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM time_slots WHERE slot_date < ? AND is_available = 1", before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) SlotIntegrity(ctx context.Context) (storage.IntegrityReport, error) {
	var report storage.IntegrityReport
	if s.db == nil {
		return report, storage.ErrNotLoaded
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_available = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(MIN(slot_date), ''),
		       COALESCE(MAX(slot_date), '')
		FROM time_slots`).Scan(&report.TotalSlots, &report.BookedSlots, &report.MinDate, &report.MaxDate)
	if err != nil {
		return report, fmt.Errorf("failed to summarize slots: %w", err)
	}

	dupRows, err := s.db.QueryContext(ctx, `
		SELECT slot_date, start_time, bay_id
		FROM time_slots
		GROUP BY slot_date, start_time, bay_id
		HAVING COUNT(*) > 1
		ORDER BY slot_date, start_time, bay_id`)
	if err != nil {
		return report, fmt.Errorf("failed to look for duplicate slots: %w", err)
	}
	defer dupRows.Close()
	for dupRows.Next() {
		var k models.SlotKey
		if err := dupRows.Scan(&k.SlotDate, &k.StartTime, &k.BayID); err != nil {
			return report, err
		}
		report.DuplicateKeys = append(report.DuplicateKeys, k)
	}
	if err := dupRows.Err(); err != nil {
		return report, err
	}

	shapeRows, err := s.db.QueryContext(ctx, `
		SELECT start_time, end_time, COUNT(*)
		FROM time_slots
		GROUP BY start_time, end_time
		ORDER BY start_time, end_time`)
	if err != nil {
		return report, fmt.Errorf("failed to list slot shapes: %w", err)
	}
	defer shapeRows.Close()
	for shapeRows.Next() {
		var shape storage.SlotShape
		if err := shapeRows.Scan(&shape.StartTime, &shape.EndTime, &shape.Count); err != nil {
			return report, err
		}
		report.DistinctStarts = append(report.DistinctStarts, shape)
	}
	if err := shapeRows.Err(); err != nil {
		return report, err
	}

	dateRows, err := s.db.QueryContext(ctx, "SELECT DISTINCT slot_date FROM time_slots ORDER BY slot_date")
	if err != nil {
		return report, fmt.Errorf("failed to list slot dates: %w", err)
	}
	defer dateRows.Close()
	for dateRows.Next() {
		var d string
		if err := dateRows.Scan(&d); err != nil {
			return report, err
		}
		report.DistinctDates = append(report.DistinctDates, d)
	}
	return report, dateRows.Err()
}
