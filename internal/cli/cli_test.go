package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/bayslots/internal/config"
	"github.com/julianstephens/bayslots/internal/constants"
	apperrors "github.com/julianstephens/bayslots/internal/errors"
	"github.com/julianstephens/bayslots/internal/models"
	"github.com/julianstephens/bayslots/internal/reconciler"
	"github.com/julianstephens/bayslots/internal/storage/memory"
)

func newTestContext(t *testing.T, store *memory.Store) (*Context, *bytes.Buffer) {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, loc)

	var out bytes.Buffer
	return &Context{
		Ctx:            context.Background(),
		Store:          store,
		Config:         config.Default(),
		Out:            &out,
		ReconcilerOpts: []reconciler.Option{reconciler.WithClock(func() time.Time { return now })},
	}, &out
}

func storeWithBay() *memory.Store {
	s := memory.New()
	s.AddBay(models.ServiceBay{ID: "bay-1", Name: "Bay 1", IsActive: true})
	return s
}

func TestPolicyFromConfig(t *testing.T) {
	ctx, _ := newTestContext(t, memory.New())
	ctx.Config.ForwardDays = 14
	ctx.Config.Weekdays = "mon,wed"
	ctx.Config.RepairGaps = false

	p := ctx.Policy()
	assert.Equal(t, 14, p.ForwardDays)
	assert.Equal(t, 90, p.CleanupDays)
	assert.Equal(t, "America/New_York", p.Location.String())
	assert.True(t, p.Weekdays.Contains(time.Wednesday))
	assert.False(t, p.Weekdays.Contains(time.Tuesday))
	assert.False(t, p.RepairGaps)
}

func TestReconcileCmd(t *testing.T) {
	store := storeWithBay()
	ctx, out := newTestContext(t, store)

	cmd := &ReconcileCmd{Cleanup: true}
	require.NoError(t, cmd.Run(ctx))

	assert.Len(t, store.Slots(), 810)
	assert.Contains(t, out.String(), "inserted 810 slot(s) for 1 bay(s), 2026-10-19 through 2026-12-18")
	assert.Contains(t, out.String(), "deleted 0 expired slot(s)")

	out.Reset()
	require.NoError(t, cmd.Run(ctx))
	assert.Contains(t, out.String(), "inserted 0 slot(s)")
}

func TestReconcileCmdDryRun(t *testing.T) {
	store := storeWithBay()
	ctx, out := newTestContext(t, store)

	require.NoError(t, (&ReconcileCmd{DryRun: true}).Run(ctx))
	assert.Empty(t, store.Slots())
	assert.Contains(t, out.String(), "810 candidate slot(s)")
}

func TestReconcileCmdNoBays(t *testing.T) {
	ctx, out := newTestContext(t, memory.New())

	require.NoError(t, (&ReconcileCmd{}).Run(ctx))
	assert.Contains(t, out.String(), "No active bays")
}

func TestReconcileCmdFatalRead(t *testing.T) {
	store := storeWithBay()
	store.ListBaysErr = errors.New("connection refused")
	ctx, _ := newTestContext(t, store)

	err := (&ReconcileCmd{}).Run(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Contains(t, err.Error(), "load bays")
}

func TestReconcileCmdPartialRunSucceeds(t *testing.T) {
	store := storeWithBay()
	store.InsertErrs["2026-10-20"] = errors.New("lock timeout")
	store.DeleteErr = errors.New("statement timeout")
	ctx, out := newTestContext(t, store)

	require.NoError(t, (&ReconcileCmd{Cleanup: true}).Run(ctx))
	assert.Contains(t, out.String(), "1 day(s) failed and were recorded for repair: 2026-10-20")
	assert.Contains(t, out.String(), "cleanup failed")
}

func TestWatchCmdStopsOnCancel(t *testing.T) {
	store := storeWithBay()
	ctx, out := newTestContext(t, store)
	c, cancel := context.WithCancel(context.Background())
	ctx.Ctx = c

	done := make(chan error, 1)
	go func() { done <- (&WatchCmd{Interval: time.Hour}).Run(ctx) }()

	require.Eventually(t, func() bool { return len(store.Slots()) == 810 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop after cancel")
	}
	assert.Contains(t, out.String(), "inserted 810")
}

func TestWatchCmdSurvivesFailedRun(t *testing.T) {
	store := storeWithBay()
	store.MaxDateErr = errors.New("timeout")
	ctx, _ := newTestContext(t, store)
	c, cancel := context.WithCancel(context.Background())
	ctx.Ctx = c

	done := make(chan error, 1)
	go func() { done <- (&WatchCmd{Interval: 20 * time.Millisecond}).Run(ctx) }()

	require.Eventually(t, func() bool {
		runs, _ := store.ListRuns(context.Background(), 0)
		return len(runs) >= 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunsCmd(t *testing.T) {
	store := memory.New()
	ctx, out := newTestContext(t, store)

	require.NoError(t, (&RunsCmd{Limit: 5}).Run(ctx))
	assert.Contains(t, out.String(), "No reconcile runs recorded yet.")

	started := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRun(context.Background(), models.ReconcileRun{
		ID: "r1", StartedAt: started, FinishedAt: started, Mode: constants.RunModeGenerateCleanup,
		StartFrom: "2026-10-19", TargetEnd: "2026-12-18", Inserted: 810, Status: constants.RunStatusOK,
	}))
	require.NoError(t, store.RecordGap(context.Background(), models.SlotGap{SlotDate: "2026-10-21", RunID: "r1", Error: "boom"}))

	out.Reset()
	require.NoError(t, (&RunsCmd{Limit: 5, Gaps: true}).Run(ctx))
	got := out.String()
	assert.Contains(t, got, "2026-10-19 10:00")
	assert.Contains(t, got, "generate+cleanup")
	assert.Contains(t, got, "2026-10-19..2026-12-18")
	assert.Contains(t, got, "810")
	assert.Contains(t, got, "Open gaps (1)")
	assert.True(t, strings.Contains(got, "2026-10-21"))
}
