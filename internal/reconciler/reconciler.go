package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/bayslots/internal/constants"
	apperrors "github.com/julianstephens/bayslots/internal/errors"
	"github.com/julianstephens/bayslots/internal/logger"
	"github.com/julianstephens/bayslots/internal/models"
	"github.com/julianstephens/bayslots/internal/storage"
	"github.com/julianstephens/bayslots/internal/utils"
)

// Options selects the phases of a single run
type Options struct {
	Cleanup bool // prune expired never-booked slots after generation
	DryRun  bool // compute the range and candidate rows without writing
}

// Result describes what a run did
type Result struct {
	RunID        string
	Bays         int
	Today        string
	StartFrom    string
	TargetEnd    string
	DaysWritten  int
	Planned      int // candidate rows built, including ones that already existed
	Inserted     int
	Deleted      int
	FailedDays   []string
	RepairedGaps []string
	CleanupRan   bool
	CleanupErr   error
}

// Status maps the result onto the run-log status
func (r Result) Status() constants.RunStatus {
	if len(r.FailedDays) > 0 || r.CleanupErr != nil {
		return constants.RunStatusPartial
	}
	return constants.RunStatusOK
}

// Reconciler keeps the forward slot window populated for every active bay.
// It holds no state between runs: the resume point is derived from MAX(slot_date).
type Reconciler struct {
	store  storage.Provider
	policy Policy
	grid   []GridSlot
	now    func() time.Time
	newID  func() string
}

// Option customizes a Reconciler
type Option func(*Reconciler)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithIDGenerator replaces the run id generator
func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) { r.newID = newID }
}

// New validates the policy and builds the daily grid once
func New(store storage.Provider, policy Policy, opts ...Option) (*Reconciler, error) {
	if policy.Location == nil {
		return nil, fmt.Errorf("policy location is required")
	}
	if policy.ForwardDays < 0 {
		return nil, fmt.Errorf("forward days must be >= 0, got %d", policy.ForwardDays)
	}
	if policy.CleanupDays < 1 {
		return nil, fmt.Errorf("cleanup days must be >= 1, got %d", policy.CleanupDays)
	}
	if policy.Weekdays == (utils.WeekdaySet{}) {
		return nil, fmt.Errorf("policy has no business weekdays")
	}
	if policy.StorageTimeout <= 0 {
		policy.StorageTimeout = constants.DefaultStorageTimeout
	}

	grid, err := BuildGrid(policy)
	if err != nil {
		return nil, err
	}

	r := &Reconciler{
		store:  store,
		policy: policy,
		grid:   grid,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Grid returns the daily slot grid in use
func (r *Reconciler) Grid() []GridSlot {
	out := make([]GridSlot, len(r.grid))
	copy(out, r.grid)
	return out
}

// Today returns midnight of the current date in the reference zone
func (r *Reconciler) Today() time.Time {
	return utils.MidnightIn(r.now(), r.policy.Location)
}

// Run executes one reconcile pass. A non-nil error means the run aborted
// before any slot write (bay or max-date read failed, or ctx was cancelled).
// Per-day write failures and cleanup failures are reported in Result.
func (r *Reconciler) Run(ctx context.Context, opts Options) (Result, error) {
	started := r.now()
	res := Result{RunID: r.newID()}

	mode := constants.RunModeGenerate
	if opts.Cleanup {
		mode = constants.RunModeGenerateCleanup
	}

	logger.Info("Reconcile started", "run", res.RunID, "mode", mode, "dry_run", opts.DryRun)

	bays, err := r.listBays(ctx)
	if err != nil {
		err = apperrors.Wrap(apperrors.PhaseLoadBays, err)
		r.finish(ctx, opts, mode, started, res, err)
		return res, err
	}
	res.Bays = len(bays)
	if len(bays) == 0 {
		logger.Info("No active bays, nothing to generate", "run", res.RunID)
		r.finish(ctx, opts, mode, started, res, nil)
		return res, nil
	}

	today := r.Today()
	targetEnd := utils.AddDays(today, r.policy.ForwardDays)
	res.Today = utils.FormatDate(today)
	res.TargetEnd = utils.FormatDate(targetEnd)

	startFrom, err := r.resumePoint(ctx, today)
	if err != nil {
		err = apperrors.Wrap(apperrors.PhaseLoadMaxDate, err)
		r.finish(ctx, opts, mode, started, res, err)
		return res, err
	}
	res.StartFrom = utils.FormatDate(startFrom)

	logger.Info("Horizon computed",
		"run", res.RunID,
		"bays", len(bays),
		"today", res.Today,
		"start_from", res.StartFrom,
		"target_end", res.TargetEnd,
	)

	gaps := r.pendingGaps(ctx)

	if err := r.repairGaps(ctx, opts, &res, bays, gaps, today, startFrom, targetEnd); err != nil {
		r.finish(ctx, opts, mode, started, res, err)
		return res, err
	}

	for day := startFrom; !day.After(targetEnd); day = utils.AddDays(day, 1) {
		if err := ctx.Err(); err != nil {
			logger.Warn("Reconcile interrupted between days", "run", res.RunID, "next_date", utils.FormatDate(day))
			r.finish(ctx, opts, mode, started, res, err)
			return res, err
		}
		date := utils.FormatDate(day)
		if !r.policy.Weekdays.Contains(day.Weekday()) {
			if _, ok := gaps[date]; ok && !opts.DryRun {
				r.clearGap(ctx, date)
			}
			continue
		}

		inserted, err := r.writeDay(ctx, opts, &res, bays, day)
		if err != nil {
			r.dayFailed(ctx, opts, &res, date, err)
			continue
		}
		res.Inserted += inserted
		if _, ok := gaps[date]; ok && !opts.DryRun {
			r.clearGap(ctx, date)
			res.RepairedGaps = append(res.RepairedGaps, date)
		}
	}

	if opts.Cleanup {
		r.cleanup(ctx, opts, &res, today)
	}

	logger.Info("Reconcile finished",
		"run", res.RunID,
		"inserted", res.Inserted,
		"deleted", res.Deleted,
		"failed_days", len(res.FailedDays),
		"repaired_gaps", len(res.RepairedGaps),
	)
	r.finish(ctx, opts, mode, started, res, nil)
	return res, nil
}

// resumePoint is the day after the latest stored slot, or today for an empty table
func (r *Reconciler) resumePoint(ctx context.Context, today time.Time) (time.Time, error) {
	tctx, cancel := context.WithTimeout(ctx, r.policy.StorageTimeout)
	defer cancel()

	maxDate, ok, err := r.store.MaxSlotDate(tctx)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return today, nil
	}

	last, err := utils.ParseDateInLocation(maxDate, r.policy.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored max slot_date %q: %w", maxDate, err)
	}
	return utils.AddDays(last, 1), nil
}

func (r *Reconciler) listBays(ctx context.Context) ([]models.ServiceBay, error) {
	tctx, cancel := context.WithTimeout(ctx, r.policy.StorageTimeout)
	defer cancel()
	return r.store.ListActiveBays(tctx)
}

// BuildDay returns the candidate rows for every bay on one date
func (r *Reconciler) BuildDay(bays []models.ServiceBay, day time.Time) []models.TimeSlot {
	date := utils.FormatDate(day)
	rows := make([]models.TimeSlot, 0, len(bays)*len(r.grid))
	for _, bay := range bays {
		for _, g := range r.grid {
			rows = append(rows, models.TimeSlot{
				BayID:       bay.ID,
				SlotDate:    date,
				StartTime:   g.StartTime(),
				EndTime:     g.EndTime(),
				IsAvailable: true,
			})
		}
	}
	return rows
}

func (r *Reconciler) writeDay(ctx context.Context, opts Options, res *Result, bays []models.ServiceBay, day time.Time) (int, error) {
	rows := r.BuildDay(bays, day)
	res.Planned += len(rows)
	if opts.DryRun {
		return 0, nil
	}

	tctx, cancel := context.WithTimeout(ctx, r.policy.StorageTimeout)
	defer cancel()

	inserted, err := r.store.InsertSlotsIgnoreDuplicates(tctx, rows)
	if err != nil {
		return 0, err
	}
	res.DaysWritten++
	logger.Debug("Day written", "date", utils.FormatDate(day), "candidates", len(rows), "inserted", inserted)
	return inserted, nil
}

func (r *Reconciler) dayFailed(ctx context.Context, opts Options, res *Result, date string, err error) {
	werr := apperrors.WrapDay(date, err)
	logger.Error("Day write failed, continuing", "run", res.RunID, "date", date, "phase", apperrors.PhaseWriteDay, "error", err)
	res.FailedDays = append(res.FailedDays, date)
	if opts.DryRun {
		return
	}

	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.policy.StorageTimeout)
	defer cancel()
	gap := models.SlotGap{
		SlotDate:   date,
		RunID:      res.RunID,
		Error:      werr.Error(),
		RecordedAt: r.now().UTC(),
	}
	if gerr := r.store.RecordGap(gctx, gap); gerr != nil {
		logger.Warn("Failed to record slot gap", "date", date, "error", gerr)
	}
}

// pendingGaps loads recorded gaps keyed by date. Failures only disable repair.
func (r *Reconciler) pendingGaps(ctx context.Context) map[string]models.SlotGap {
	gaps := make(map[string]models.SlotGap)
	if !r.policy.RepairGaps {
		return gaps
	}

	tctx, cancel := context.WithTimeout(ctx, r.policy.StorageTimeout)
	defer cancel()
	list, err := r.store.ListGaps(tctx)
	if err != nil {
		logger.Warn("Failed to load slot gaps, skipping repair", "phase", apperrors.PhaseRepairGaps, "error", err)
		return gaps
	}
	for _, g := range list {
		gaps[g.SlotDate] = g
	}
	return gaps
}

// repairGaps regenerates recorded gap dates that fall before the resume point.
// Gaps at or after startFrom are handled by the main loop; gaps before today are dropped.
func (r *Reconciler) repairGaps(ctx context.Context, opts Options, res *Result, bays []models.ServiceBay, gaps map[string]models.SlotGap, today, startFrom, targetEnd time.Time) error {
	if len(gaps) == 0 {
		return nil
	}

	dates := make([]string, 0, len(gaps))
	for date := range gaps {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return err
		}
		day, err := utils.ParseDateInLocation(date, r.policy.Location)
		if err != nil {
			logger.Warn("Ignoring malformed gap date", "date", date, "error", err)
			continue
		}

		switch {
		case day.Before(today):
			logger.Info("Dropping gap behind today", "date", date)
			if !opts.DryRun {
				r.clearGap(ctx, date)
			}
			continue
		case !day.Before(startFrom) || day.After(targetEnd):
			continue
		}

		if !r.policy.Weekdays.Contains(day.Weekday()) {
			if !opts.DryRun {
				r.clearGap(ctx, date)
			}
			continue
		}

		inserted, err := r.writeDay(ctx, opts, res, bays, day)
		if err != nil {
			r.dayFailed(ctx, opts, res, date, err)
			continue
		}
		res.Inserted += inserted
		if !opts.DryRun {
			r.clearGap(ctx, date)
			res.RepairedGaps = append(res.RepairedGaps, date)
		}
		logger.Info("Repaired slot gap", "date", date, "inserted", inserted)
	}
	return nil
}

func (r *Reconciler) clearGap(ctx context.Context, date string) {
	tctx, cancel := context.WithTimeout(ctx, r.policy.StorageTimeout)
	defer cancel()
	if err := r.store.ClearGap(tctx, date); err != nil {
		logger.Warn("Failed to clear slot gap", "date", date, "error", err)
	}
}

// cleanup deletes never-booked slots older than the retention cutoff. Best effort.
func (r *Reconciler) cleanup(ctx context.Context, opts Options, res *Result, today time.Time) {
	cutoff := utils.FormatDate(utils.AddDays(today, -r.policy.CleanupDays))
	res.CleanupRan = true
	if opts.DryRun {
		logger.Info("Dry run: would delete available slots", "before", cutoff)
		return
	}

	tctx, cancel := context.WithTimeout(ctx, r.policy.StorageTimeout)
	defer cancel()

	deleted, err := r.store.DeleteAvailableSlotsBefore(tctx, cutoff)
	if err != nil {
		res.CleanupErr = apperrors.Wrap(apperrors.PhaseCleanup, err)
		logger.Error("Cleanup failed", "run", res.RunID, "phase", apperrors.PhaseCleanup, "before", cutoff, "error", err)
		return
	}
	res.Deleted = deleted
	logger.Info("Cleanup finished", "run", res.RunID, "before", cutoff, "deleted", deleted)
}

// finish appends the run-log entry. It never changes the run's outcome.
func (r *Reconciler) finish(ctx context.Context, opts Options, mode constants.RunMode, started time.Time, res Result, runErr error) {
	if opts.DryRun {
		return
	}

	run := models.ReconcileRun{
		ID:         res.RunID,
		StartedAt:  started.UTC(),
		FinishedAt: r.now().UTC(),
		Mode:       mode,
		StartFrom:  res.StartFrom,
		TargetEnd:  res.TargetEnd,
		Inserted:   res.Inserted,
		Deleted:    res.Deleted,
		FailedDays: len(res.FailedDays),
		Status:     res.Status(),
	}
	switch {
	case runErr != nil:
		run.Status = constants.RunStatusFailed
		run.Error = runErr.Error()
	case res.CleanupErr != nil:
		run.Error = res.CleanupErr.Error()
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.policy.StorageTimeout)
	defer cancel()
	if err := r.store.RecordRun(rctx, run); err != nil {
		logger.Warn("Failed to record reconcile run", "run", res.RunID, "error", err)
	}
}
