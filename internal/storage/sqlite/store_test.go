package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/bayslots/internal/constants"
	"github.com/julianstephens/bayslots/internal/models"
	"github.com/julianstephens/bayslots/internal/reconciler"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store := New(filepath.Join(t.TempDir(), "bayslots.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.AddBay(context.Background(), models.ServiceBay{ID: "bay-1", Name: "Bay 1", IsActive: true}); err != nil {
		t.Fatalf("failed to add bay: %v", err)
	}
	return store
}

func slot(date, start, end string) models.TimeSlot {
	return models.TimeSlot{BayID: "bay-1", SlotDate: date, StartTime: start, EndTime: end, IsAvailable: true}
}

func book(t *testing.T, s *Store, key models.SlotKey) {
	t.Helper()
	_, err := s.GetDB().Exec(
		"UPDATE time_slots SET is_available = 0 WHERE slot_date = ? AND start_time = ? AND bay_id = ?",
		key.SlotDate, key.StartTime, key.BayID)
	if err != nil {
		t.Fatalf("failed to book slot: %v", err)
	}
}

func isAvailable(t *testing.T, s *Store, key models.SlotKey) (bool, bool) {
	t.Helper()
	var avail bool
	err := s.GetDB().QueryRow(
		"SELECT is_available FROM time_slots WHERE slot_date = ? AND start_time = ? AND bay_id = ?",
		key.SlotDate, key.StartTime, key.BayID).Scan(&avail)
	if err != nil {
		return false, false
	}
	return avail, true
}

func TestLoadRequiresExistingDatabase(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "missing.db"))
	if err := store.Load(context.Background()); err == nil {
		t.Fatal("Load() on a missing file should fail")
	}
}

func TestLoadAfterInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bayslots.db")
	store := New(path)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	store.Close()

	store = New(path)
	defer store.Close()
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	status, err := store.SchemaStatus(context.Background())
	if err != nil {
		t.Fatalf("SchemaStatus() error = %v", err)
	}
	if status.CurrentVersion != status.LatestVersion || status.LatestVersion < 2 {
		t.Errorf("SchemaStatus() = %+v, want current == latest >= 2", status)
	}
}

func TestTableExists(t *testing.T) {
	store := setupTestStore(t)

	tests := []struct {
		table string
		want  bool
	}{
		{"time_slots", true},
		{"TIME_SLOTS", true},
		{"slot_gaps", true},
		{"nonexistent_table", false},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			got, err := store.tableExists(context.Background(), tt.table)
			if err != nil {
				t.Fatalf("tableExists() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("tableExists(%q) = %v, want %v", tt.table, got, tt.want)
			}
		})
	}
}

func TestListActiveBays(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	if err := store.AddBay(ctx, models.ServiceBay{ID: "bay-2", Name: "Bay 2", IsActive: false}); err != nil {
		t.Fatal(err)
	}

	bays, err := store.ListActiveBays(ctx)
	if err != nil {
		t.Fatalf("ListActiveBays() error = %v", err)
	}
	if len(bays) != 1 || bays[0].ID != "bay-1" || !bays[0].IsActive {
		t.Errorf("ListActiveBays() = %+v, want only bay-1", bays)
	}
}

func TestInsertSlotsIgnoreDuplicates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := []models.TimeSlot{
		slot("2026-10-19", "07:00:00", "07:30:00"),
		slot("2026-10-19", "07:30:00", "08:00:00"),
	}
	n, err := store.InsertSlotsIgnoreDuplicates(ctx, first)
	if err != nil {
		t.Fatalf("InsertSlotsIgnoreDuplicates() error = %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	book(t, store, first[0].Key())

	second := []models.TimeSlot{
		slot("2026-10-19", "07:00:00", "07:30:00"),
		slot("2026-10-19", "07:30:00", "08:00:00"),
		slot("2026-10-19", "08:00:00", "08:30:00"),
	}
	n, err = store.InsertSlotsIgnoreDuplicates(ctx, second)
	if err != nil {
		t.Fatalf("InsertSlotsIgnoreDuplicates() error = %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	avail, ok := isAvailable(t, store, first[0].Key())
	if !ok || avail {
		t.Errorf("booked slot was overwritten: available=%v found=%v", avail, ok)
	}

	report, err := store.SlotIntegrity(ctx)
	if err != nil {
		t.Fatalf("SlotIntegrity() error = %v", err)
	}
	if report.TotalSlots != 3 || report.BookedSlots != 1 || len(report.DuplicateKeys) != 0 {
		t.Errorf("SlotIntegrity() = %+v", report)
	}
}

func TestInsertBatchIsAtomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	batch := []models.TimeSlot{
		slot("2026-10-19", "07:00:00", "07:30:00"),
		// violates CHECK (end_time > start_time)
		slot("2026-10-19", "08:00:00", "07:30:00"),
	}
	if _, err := store.InsertSlotsIgnoreDuplicates(ctx, batch); err == nil {
		t.Fatal("expected constraint violation")
	}

	_, ok, err := store.MaxSlotDate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("failed batch left rows behind")
	}
}

func TestMaxSlotDate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.MaxSlotDate(ctx); err != nil || ok {
		t.Fatalf("MaxSlotDate() on empty table = ok:%v err:%v", ok, err)
	}

	_, err := store.InsertSlotsIgnoreDuplicates(ctx, []models.TimeSlot{
		slot("2026-12-18", "07:00:00", "07:30:00"),
		slot("2026-10-19", "07:00:00", "07:30:00"),
	})
	if err != nil {
		t.Fatal(err)
	}

	max, ok, err := store.MaxSlotDate(ctx)
	if err != nil || !ok || max != "2026-12-18" {
		t.Errorf("MaxSlotDate() = %q, %v, %v; want 2026-12-18", max, ok, err)
	}
}

func TestDeleteAvailableSlotsBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rows := []models.TimeSlot{
		slot("2026-07-01", "07:00:00", "07:30:00"),
		slot("2026-07-01", "07:30:00", "08:00:00"),
		slot("2026-07-21", "07:00:00", "07:30:00"),
	}
	if _, err := store.InsertSlotsIgnoreDuplicates(ctx, rows); err != nil {
		t.Fatal(err)
	}
	book(t, store, rows[1].Key())

	n, err := store.DeleteAvailableSlotsBefore(ctx, "2026-07-21")
	if err != nil {
		t.Fatalf("DeleteAvailableSlotsBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, ok := isAvailable(t, store, rows[0].Key()); ok {
		t.Error("expired available slot still present")
	}
	if avail, ok := isAvailable(t, store, rows[1].Key()); !ok || avail {
		t.Error("booked slot must survive cleanup")
	}
	if _, ok := isAvailable(t, store, rows[2].Key()); !ok {
		t.Error("slot on the cutoff date must survive cleanup")
	}
}

func TestRunsAndGaps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b"} {
		run := models.ReconcileRun{
			ID:         id,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Second),
			Mode:       constants.RunModeGenerate,
			StartFrom:  "2026-10-19",
			TargetEnd:  "2026-12-18",
			Inserted:   810,
			Status:     constants.RunStatusOK,
		}
		if err := store.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" {
		t.Fatalf("ListRuns() = %+v, want run-b first", runs)
	}
	if !runs[1].StartedAt.Equal(base) || runs[1].Inserted != 810 || runs[1].Status != constants.RunStatusOK {
		t.Errorf("run-a round trip = %+v", runs[1])
	}

	runs, err = store.ListRuns(ctx, 1)
	if err != nil || len(runs) != 1 {
		t.Errorf("ListRuns(1) = %d runs, err %v", len(runs), err)
	}

	gap := models.SlotGap{SlotDate: "2026-10-21", RunID: "run-a", Error: "write day 2026-10-21: boom", RecordedAt: base}
	if err := store.RecordGap(ctx, gap); err != nil {
		t.Fatalf("RecordGap() error = %v", err)
	}
	gap.RunID = "run-b"
	if err := store.RecordGap(ctx, gap); err != nil {
		t.Fatalf("RecordGap() again error = %v", err)
	}

	gaps, err := store.ListGaps(ctx)
	if err != nil {
		t.Fatalf("ListGaps() error = %v", err)
	}
	if len(gaps) != 1 || gaps[0].RunID != "run-b" {
		t.Fatalf("ListGaps() = %+v, want one gap from run-b", gaps)
	}

	if err := store.ClearGap(ctx, "2026-10-21"); err != nil {
		t.Fatalf("ClearGap() error = %v", err)
	}
	gaps, _ = store.ListGaps(ctx)
	if len(gaps) != 0 {
		t.Errorf("ListGaps() after clear = %+v", gaps)
	}
}

func TestReconcileAgainstSQLite(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, loc)
	r, err := reconciler.New(store, reconciler.DefaultPolicy(), reconciler.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Run(ctx, reconciler.Options{Cleanup: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Inserted != 810 {
		t.Errorf("first run inserted = %d, want 810", res.Inserted)
	}

	res, err = r.Run(ctx, reconciler.Options{Cleanup: true})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if res.Inserted != 0 {
		t.Errorf("second run inserted = %d, want 0", res.Inserted)
	}

	report, err := store.SlotIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalSlots != 810 || len(report.DistinctDates) != 45 || len(report.DistinctStarts) != 18 {
		t.Errorf("SlotIntegrity() = total %d, dates %d, shapes %d", report.TotalSlots, len(report.DistinctDates), len(report.DistinctStarts))
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil || len(runs) != 2 {
		t.Errorf("ListRuns() = %d runs, err %v", len(runs), err)
	}
}
