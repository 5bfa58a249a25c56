package storage

import (
	"context"
	"errors"

	"github.com/julianstephens/bayslots/internal/models"
)

// ErrNotLoaded is returned when a store method runs before Init or Load
var ErrNotLoaded = errors.New("storage not loaded")

// Provider is the storage contract the reconciler and the CLI depend on.
// The slot table is shared with the booking subsystem, so the only write a
// Provider performs on an existing slot row is the available-only delete.
type Provider interface {
	// Lifecycle
	Init(ctx context.Context) error // open, create schema, apply migrations
	Load(ctx context.Context) error // open and validate schema version
	Close() error

	// Bays
	ListActiveBays(ctx context.Context) ([]models.ServiceBay, error)

	// Slots
	// MaxSlotDate returns the latest slot_date present (YYYY-MM-DD) and false when the table is empty.
	MaxSlotDate(ctx context.Context) (string, bool, error)
	// InsertSlotsIgnoreDuplicates writes rows atomically with insert-or-ignore
	// semantics keyed on (slot_date, start_time, bay_id) and returns how many were new.
	InsertSlotsIgnoreDuplicates(ctx context.Context, slots []models.TimeSlot) (int, error)
	// DeleteAvailableSlotsBefore removes never-booked rows with slot_date < before (YYYY-MM-DD).
	DeleteAvailableSlotsBefore(ctx context.Context, before string) (int, error)

	// Run log
	RecordRun(ctx context.Context, run models.ReconcileRun) error
	ListRuns(ctx context.Context, limit int) ([]models.ReconcileRun, error)

	// Gaps
	RecordGap(ctx context.Context, gap models.SlotGap) error
	ListGaps(ctx context.Context) ([]models.SlotGap, error)
	ClearGap(ctx context.Context, date string) error

	// Diagnostics
	SlotIntegrity(ctx context.Context) (IntegrityReport, error)
	SchemaStatus(ctx context.Context) (SchemaStatus, error)

	// Utils
	Describe() string
}

// Snapshotter is implemented by file-backed stores that can copy their
// database aside before a schema change. An empty path means there was
// nothing to copy yet.
type Snapshotter interface {
	Snapshot(ctx context.Context) (string, error)
}

// IntegrityReport summarizes stored slot data for health checks.
// Rows are returned raw; policy checks (weekday, grid) are applied by the caller.
type IntegrityReport struct {
	TotalSlots     int
	BookedSlots    int
	DuplicateKeys  []models.SlotKey
	MinDate        string
	MaxDate        string
	DistinctStarts []SlotShape // distinct (start_time, end_time) pairs
	DistinctDates  []string
}

// SlotShape is one distinct start/end pair found in storage
type SlotShape struct {
	StartTime string
	EndTime   string
	Count     int
}

// SchemaStatus reports migration state
type SchemaStatus struct {
	CurrentVersion int
	LatestVersion  int
}
