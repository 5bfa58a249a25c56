package system

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/bayslots/internal/cli"
	"github.com/julianstephens/bayslots/internal/config"
	"github.com/julianstephens/bayslots/internal/models"
	"github.com/julianstephens/bayslots/internal/reconciler"
	"github.com/julianstephens/bayslots/internal/storage"
	"github.com/julianstephens/bayslots/internal/storage/memory"
	"github.com/julianstephens/bayslots/internal/storage/sqlite"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	return time.Date(2026, 10, 19, 10, 0, 0, 0, loc)
}

func setupDoctorContext(t *testing.T, store storage.Provider) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	now := fixedNow(t)
	var out bytes.Buffer
	return &cli.Context{
		Ctx:            context.Background(),
		Store:          store,
		Config:         config.Default(),
		Out:            &out,
		ReconcilerOpts: []reconciler.Option{reconciler.WithClock(func() time.Time { return now })},
	}, &out
}

func reconcile(t *testing.T, ctx *cli.Context) {
	t.Helper()
	r, err := ctx.NewReconciler()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(context.Background(), reconciler.Options{}); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
}

func TestDoctorCmd_HealthySQLite(t *testing.T) {
	store := sqlite.New(filepath.Join(t.TempDir(), "bayslots.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()
	if err := store.AddBay(context.Background(), models.ServiceBay{ID: "bay-1", Name: "Bay 1", IsActive: true}); err != nil {
		t.Fatal(err)
	}

	ctx, out := setupDoctorContext(t, store)
	reconcile(t, ctx)

	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Fatalf("doctor failed on a healthy database: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "All diagnostics passed!") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestDoctorCmd_UnreachableDatabase(t *testing.T) {
	store := sqlite.New(filepath.Join(t.TempDir(), "missing.db"))
	ctx, out := setupDoctorContext(t, store)

	if err := (&DoctorCmd{}).Run(ctx); err == nil {
		t.Fatal("doctor should fail when the database cannot be loaded")
	}
	got := out.String()
	if !strings.Contains(got, "Database reachable: FAIL") {
		t.Errorf("missing reachability failure:\n%s", got)
	}
	if !strings.Contains(got, "Schema version: SKIPPED") {
		t.Errorf("dependent checks should be skipped:\n%s", got)
	}
}

func TestDoctorCmd_DetectsPolicyViolations(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *memory.Store)
		want  string
	}{
		{
			name: "weekend slot",
			setup: func(s *memory.Store) {
				s.Put(models.TimeSlot{BayID: "bay-1", SlotDate: "2026-10-24", StartTime: "07:00:00", EndTime: "07:30:00", IsAvailable: true})
			},
			want: "Business weekdays: FAIL",
		},
		{
			name: "off-grid start",
			setup: func(s *memory.Store) {
				s.Put(models.TimeSlot{BayID: "bay-1", SlotDate: "2026-10-20", StartTime: "07:15:00", EndTime: "07:45:00", IsAvailable: true})
			},
			want: "Slot grid: FAIL",
		},
		{
			name: "open gap",
			setup: func(s *memory.Store) {
				s.RecordGap(context.Background(), models.SlotGap{SlotDate: "2026-12-30", RunID: "r1", Error: "boom"})
			},
			want: "Open gaps: FAIL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			store.AddBay(models.ServiceBay{ID: "bay-1", Name: "Bay 1", IsActive: true})
			ctx, out := setupDoctorContext(t, store)
			reconcile(t, ctx)
			tt.setup(store)

			if err := (&DoctorCmd{}).Run(ctx); err == nil {
				t.Fatalf("doctor should fail:\n%s", out.String())
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestDoctorCmd_HorizonBehind(t *testing.T) {
	store := memory.New()
	store.AddBay(models.ServiceBay{ID: "bay-1", Name: "Bay 1", IsActive: true})
	ctx, out := setupDoctorContext(t, store)

	if err := (&DoctorCmd{}).Run(ctx); err == nil {
		t.Fatal("doctor should fail with an empty slot table")
	}
	if !strings.Contains(out.String(), "slots reach no slots, want 2026-12-18") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestDoctorCmd_NoActiveBays(t *testing.T) {
	ctx, out := setupDoctorContext(t, memory.New())

	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Fatalf("doctor should pass with no bays: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Forward horizon: SKIPPED (no active bays)") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestLastBusinessDay(t *testing.T) {
	tests := []struct {
		forward int
		want    string
	}{
		{60, "2026-12-18"},
		{5, "2026-10-23"},
		{6, "2026-10-23"},
		{0, "2026-10-19"},
	}
	for _, tt := range tests {
		ctx, _ := setupDoctorContext(t, memory.New())
		ctx.Config.ForwardDays = tt.forward
		rec, err := ctx.NewReconciler()
		if err != nil {
			t.Fatal(err)
		}
		if got := lastBusinessDay(&doctorState{cli: ctx, rec: rec}); got != tt.want {
			t.Errorf("lastBusinessDay(forward=%d) = %s, want %s", tt.forward, got, tt.want)
		}
	}
}

func TestMigrateCmd(t *testing.T) {
	store := sqlite.New(filepath.Join(t.TempDir(), "bayslots.db"))
	defer store.Close()
	ctx, out := setupDoctorContext(t, store)

	if err := (&MigrateCmd{}).Run(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "schema is at version 2") {
		t.Errorf("unexpected output: %s", out.String())
	}
	if strings.Contains(out.String(), "snapshot written") {
		t.Errorf("a new database should not be snapshotted: %s", out.String())
	}

	out.Reset()
	if err := (&MigrateCmd{}).Run(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "snapshot written to") {
		t.Errorf("existing database should be snapshotted first: %s", out.String())
	}

	out.Reset()
	if err := (&MigrateCmd{NoSnapshot: true}).Run(ctx); err != nil {
		t.Fatalf("third migrate failed: %v", err)
	}
	if strings.Contains(out.String(), "snapshot written") {
		t.Errorf("--no-snapshot was ignored: %s", out.String())
	}
}
