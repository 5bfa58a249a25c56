// Package memory provides an in-process Provider for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/julianstephens/bayslots/internal/models"
	"github.com/julianstephens/bayslots/internal/storage"
)

// Store keeps bays, slots, runs and gaps in maps guarded by one mutex, which
// gives InsertSlotsIgnoreDuplicates the same per-batch atomicity as a SQL transaction.
type Store struct {
	mu    sync.RWMutex
	bays  []models.ServiceBay
	slots map[models.SlotKey]models.TimeSlot
	runs  []models.ReconcileRun
	gaps  map[string]models.SlotGap

	// Failure injection for tests. InsertErrs is keyed by slot_date.
	ListBaysErr error
	MaxDateErr  error
	DeleteErr   error
	InsertErrs  map[string]error
	RecordErr   error
}

var _ storage.Provider = (*Store)(nil)

func New() *Store {
	return &Store{
		slots:      make(map[models.SlotKey]models.TimeSlot),
		gaps:       make(map[string]models.SlotGap),
		InsertErrs: make(map[string]error),
	}
}

func (s *Store) Init(context.Context) error { return nil }
func (s *Store) Load(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }
func (s *Store) Describe() string           { return "memory" }

// AddBay registers a bay, standing in for the admin tooling
func (s *Store) AddBay(bay models.ServiceBay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bays = append(s.bays, bay)
}

// Book flips a slot to unavailable the way the booking subsystem does
func (s *Store) Book(key models.SlotKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[key]
	if !ok {
		return fmt.Errorf("slot %s not found", key)
	}
	slot.IsAvailable = false
	s.slots[key] = slot
	return nil
}

// Put stores a row verbatim, bypassing insert-or-ignore. Test setup only.
func (s *Store) Put(slot models.TimeSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.Key()] = slot
}

// Get returns a single slot
func (s *Store) Get(key models.SlotKey) (models.TimeSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[key]
	return slot, ok
}

// Slots returns every row ordered by date, start time and bay
func (s *Store) Slots() []models.TimeSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TimeSlot, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SlotDate != b.SlotDate {
			return a.SlotDate < b.SlotDate
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.BayID < b.BayID
	})
	return out
}

func (s *Store) ListActiveBays(ctx context.Context) ([]models.ServiceBay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ListBaysErr != nil {
		return nil, s.ListBaysErr
	}
	var active []models.ServiceBay
	for _, bay := range s.bays {
		if bay.IsActive {
			active = append(active, bay)
		}
	}
	return active, nil
}

func (s *Store) MaxSlotDate(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.MaxDateErr != nil {
		return "", false, s.MaxDateErr
	}
	max := ""
	for key := range s.slots {
		if key.SlotDate > max {
			max = key.SlotDate
		}
	}
	return max, max != "", nil
}

func (s *Store) InsertSlotsIgnoreDuplicates(ctx context.Context, slots []models.TimeSlot) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// All-or-nothing: check injected failures before touching the map
	for _, slot := range slots {
		if err := s.InsertErrs[slot.SlotDate]; err != nil {
			return 0, err
		}
	}

	inserted := 0
	for _, slot := range slots {
		key := slot.Key()
		if _, exists := s.slots[key]; exists {
			continue
		}
		s.slots[key] = slot
		inserted++
	}
	return inserted, nil
}

func (s *Store) DeleteAvailableSlotsBefore(ctx context.Context, before string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return 0, s.DeleteErr
	}
	deleted := 0
	for key, slot := range s.slots {
		if key.SlotDate < before && slot.IsAvailable {
			delete(s.slots, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) RecordRun(_ context.Context, run models.ReconcileRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns the newest runs first
func (s *Store) ListRuns(_ context.Context, limit int) ([]models.ReconcileRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ReconcileRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.runs[i])
	}
	return out, nil
}

func (s *Store) RecordGap(_ context.Context, gap models.SlotGap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.gaps[gap.SlotDate] = gap
	return nil
}

func (s *Store) ListGaps(context.Context) ([]models.SlotGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SlotGap, 0, len(s.gaps))
	for _, gap := range s.gaps {
		out = append(out, gap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotDate < out[j].SlotDate })
	return out, nil
}

func (s *Store) ClearGap(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gaps, date)
	return nil
}

func (s *Store) SlotIntegrity(context.Context) (storage.IntegrityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := storage.IntegrityReport{TotalSlots: len(s.slots)}
	shapes := make(map[[2]string]int)
	dates := make(map[string]bool)
	for key, slot := range s.slots {
		if !slot.IsAvailable {
			report.BookedSlots++
		}
		if report.MinDate == "" || key.SlotDate < report.MinDate {
			report.MinDate = key.SlotDate
		}
		if key.SlotDate > report.MaxDate {
			report.MaxDate = key.SlotDate
		}
		shapes[[2]string{slot.StartTime, slot.EndTime}]++
		dates[key.SlotDate] = true
	}

	for shape, count := range shapes {
		report.DistinctStarts = append(report.DistinctStarts, storage.SlotShape{StartTime: shape[0], EndTime: shape[1], Count: count})
	}
	sort.Slice(report.DistinctStarts, func(i, j int) bool {
		return report.DistinctStarts[i].StartTime < report.DistinctStarts[j].StartTime
	})
	for d := range dates {
		report.DistinctDates = append(report.DistinctDates, d)
	}
	sort.Strings(report.DistinctDates)

	// Keys are unique by construction in a map
	return report, nil
}

func (s *Store) SchemaStatus(context.Context) (storage.SchemaStatus, error) {
	return storage.SchemaStatus{}, nil
}
