package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/julianstephens/bayslots/internal/constants"
	"github.com/julianstephens/bayslots/internal/models"
	"github.com/julianstephens/bayslots/internal/storage"
	"github.com/julianstephens/bayslots/internal/utils"
)

const slotColumns = 5

func (s *Store) ListActiveBays(ctx context.Context) ([]models.ServiceBay, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_active
		FROM service_bays
		WHERE is_active
		ORDER BY name, id`)
	if err != nil {
		return nil, describe(err)
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

// AddBay inserts or renames a bay. Used by fixtures; production bays come from admin tooling.
func (s *Store) AddBay(ctx context.Context, bay models.ServiceBay) error {
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_bays (id, name, is_active) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active`,
		bay.ID, bay.Name, bay.IsActive)
	return describe(err)
}

func (s *Store) MaxSlotDate(ctx context.Context) (string, bool, error) {
	if s.db == nil {
		return "", false, storage.ErrNotLoaded
	}
	var max sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT to_char(MAX(slot_date), 'YYYY-MM-DD') FROM time_slots").Scan(&max)
	if err != nil {
		return "", false, describe(err)
	}
	if !max.Valid {
		return "", false, nil
	}
	date, err := utils.NormalizeDate(max.String)
	if err != nil {
		return "", false, err
	}
	return date, true, nil
}

// insertStatement builds a multi-row insert-or-ignore for n rows
func insertStatement(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO time_slots (bay_id, slot_date, start_time, end_time, is_available) VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		p := i*slotColumns + 1
		fmt.Fprintf(&b, "($%d, $%d::date, $%d::time, $%d::time, $%d)", p, p+1, p+2, p+3, p+4)
	}
	b.WriteString(" ON CONFLICT (slot_date, start_time, bay_id) DO NOTHING")
	return b.String()
}

// InsertSlotsIgnoreDuplicates writes the batch in one transaction, in chunks
// that stay below the bind parameter limit. Existing rows, booked or not, are
// left untouched and not counted.
func (s *Store) InsertSlotsIgnoreDuplicates(ctx context.Context, slots []models.TimeSlot) (int, error) {
	if s.db == nil {
		return 0, storage.ErrNotLoaded
	}
	if len(slots) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", describe(err))
	}
	defer tx.Rollback()

	inserted := 0
	for start := 0; start < len(slots); start += constants.InsertChunkSize {
		end := start + constants.InsertChunkSize
		if end > len(slots) {
			end = len(slots)
		}
		chunk := slots[start:end]

		args := make([]interface{}, 0, len(chunk)*slotColumns)
		for _, slot := range chunk {
			args = append(args, slot.BayID, slot.SlotDate, slot.StartTime, slot.EndTime, slot.IsAvailable)
		}

		res, err := tx.ExecContext(ctx, insertStatement(len(chunk)), args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert slots: %w", describe(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit slots: %w", describe(err))
	}
	return inserted, nil
}

func (s *Store) DeleteAvailableSlotsBefore(ctx context.Context, before string) (int, error) {
	if s.db == nil {
		return 0, storage.ErrNotLoaded
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM time_slots WHERE slot_date < $1::date AND is_available", before)
	if err != nil {
		return 0, describe(err)
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
		       COUNT(*) FILTER (WHERE NOT is_available),
		       COALESCE(to_char(MIN(slot_date), 'YYYY-MM-DD'), ''),
		       COALESCE(to_char(MAX(slot_date), 'YYYY-MM-DD'), '')
		FROM time_slots`).Scan(&report.TotalSlots, &report.BookedSlots, &report.MinDate, &report.MaxDate)
	if err != nil {
		return report, fmt.Errorf("failed to summarize slots: %w", describe(err))
	}

	dupRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(slot_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI:SS'), bay_id
		FROM time_slots
		GROUP BY slot_date, start_time, bay_id
		HAVING COUNT(*) > 1
		ORDER BY slot_date, start_time, bay_id`)
	if err != nil {
		return report, fmt.Errorf("failed to look for duplicate slots: %w", describe(err))
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
		SELECT to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'), COUNT(*)
		FROM time_slots
		GROUP BY start_time, end_time
		ORDER BY start_time, end_time`)
	if err != nil {
		return report, fmt.Errorf("failed to list slot shapes: %w", describe(err))
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

	dateRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(d, 'YYYY-MM-DD')
		FROM (SELECT DISTINCT slot_date AS d FROM time_slots) dates
		ORDER BY d`)
	if err != nil {
		return report, fmt.Errorf("failed to list slot dates: %w", describe(err))
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
