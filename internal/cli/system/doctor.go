package system

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/julianstephens/bayslots/internal/cli"
	"github.com/julianstephens/bayslots/internal/constants"
	"github.com/julianstephens/bayslots/internal/reconciler"
	"github.com/julianstephens/bayslots/internal/storage"
	"github.com/julianstephens/bayslots/internal/utils"
)

// maxListed caps how many offending rows a failed check prints
const maxListed = 5

var errSkipped = errors.New("skipped")

type DoctorCmd struct{}

type check struct {
	name    string
	needsDB bool
	run     func(context.Context, *doctorState) error
}

// doctorState is filled in as checks run so later checks can reuse reads
type doctorState struct {
	cli    *cli.Context
	rec    *reconciler.Reconciler
	report storage.IntegrityReport
}

var checks = []check{
	{name: "Database reachable", run: checkDBReachable},
	{name: "Schema version", needsDB: true, run: checkSchemaVersion},
	{name: "Reference timezone", run: checkTimezone},
	{name: "Duplicate slots", needsDB: true, run: checkDuplicates},
	{name: "Business weekdays", needsDB: true, run: checkWeekdays},
	{name: "Slot grid", needsDB: true, run: checkGrid},
	{name: "Open gaps", needsDB: true, run: checkGaps},
	{name: "Forward horizon", needsDB: true, run: checkHorizon},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	w := ctx.Stdout()
	fmt.Fprintln(w, "Running diagnostics...")
	fmt.Fprintln(w)

	rec, err := ctx.NewReconciler()
	if err != nil {
		return fmt.Errorf("invalid slot policy: %w", err)
	}
	state := &doctorState{cli: ctx, rec: rec}

	hasError := false
	dbReachable := false
	for i, c := range checks {
		if c.needsDB && !dbReachable {
			printSkipped(w, c.name, "database not reachable")
			continue
		}
		err := c.run(ctx.Context(), state)
		switch {
		case errors.Is(err, errSkipped):
			printSkipped(w, c.name, strings.TrimPrefix(err.Error(), errSkipped.Error()+": "))
		case err != nil:
			fmt.Fprintf(w, "%s %s: FAIL\n", cli.FailStyle.Render("❌"), c.name)
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(w, "   %s\n", line)
			}
			hasError = true
		default:
			fmt.Fprintf(w, "%s %s: OK\n", cli.OKStyle.Render("✓"), c.name)
			if i == 0 {
				dbReachable = true
			}
		}
	}

	fmt.Fprintln(w)
	if hasError {
		fmt.Fprintln(w, cli.FailStyle.Render("Diagnostics completed with errors."))
		return fmt.Errorf("one or more health checks failed")
	}
	fmt.Fprintln(w, cli.OKStyle.Render("All diagnostics passed!"))
	return nil
}

func printSkipped(w io.Writer, name, reason string) {
	fmt.Fprintln(w, cli.MutedStyle.Render(fmt.Sprintf("⊘ %s: SKIPPED (%s)", name, reason)))
}

func checkDBReachable(ctx context.Context, s *doctorState) error {
	if err := s.cli.Store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	report, err := s.cli.Store.SlotIntegrity(ctx)
	if err != nil {
		return fmt.Errorf("failed to read slots: %w", err)
	}
	s.report = report
	return nil
}

func checkSchemaVersion(ctx context.Context, s *doctorState) error {
	status, err := s.cli.Store.SchemaStatus(ctx)
	if err != nil {
		return err
	}
	if status.CurrentVersion < status.LatestVersion {
		return fmt.Errorf("schema version %d is behind %d, run 'bayslots migrate'", status.CurrentVersion, status.LatestVersion)
	}
	return nil
}

func checkTimezone(_ context.Context, s *doctorState) error {
	if _, err := utils.LoadLocation(s.cli.Config.Timezone); err != nil {
		return err
	}
	fmt.Fprintln(s.cli.Stdout(), cli.MutedStyle.Render(fmt.Sprintf("  today is %s in %s", utils.FormatDate(s.rec.Today()), s.cli.Config.Timezone)))
	return nil
}

func checkDuplicates(_ context.Context, s *doctorState) error {
	dups := s.report.DuplicateKeys
	if len(dups) == 0 {
		return nil
	}
	keys := make([]string, 0, len(dups))
	for _, k := range dups {
		keys = append(keys, k.String())
	}
	return listError(fmt.Sprintf("%d (slot_date, start_time, bay_id) key(s) appear more than once", len(dups)), keys)
}

func checkWeekdays(_ context.Context, s *doctorState) error {
	weekdays := s.cli.Config.BusinessWeekdays()
	var bad []string
	for _, d := range s.report.DistinctDates {
		day, err := time.Parse(constants.DateFormat, d)
		if err != nil {
			bad = append(bad, d+" (unparseable)")
			continue
		}
		if !weekdays.Contains(day.Weekday()) {
			bad = append(bad, fmt.Sprintf("%s (%s)", d, day.Weekday()))
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return listError(fmt.Sprintf("%d date(s) have slots outside %s", len(bad), weekdays), bad)
}

func checkGrid(_ context.Context, s *doctorState) error {
	grid := s.rec.Grid()
	var bad []string
	for _, shape := range s.report.DistinctStarts {
		if !reconciler.OnGrid(grid, shape.StartTime, shape.EndTime) {
			bad = append(bad, fmt.Sprintf("%s-%s (%d row(s))", shape.StartTime, shape.EndTime, shape.Count))
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return listError(fmt.Sprintf("%d start/end pair(s) are off the %s-%s grid",
		len(bad), grid[0].StartTime(), grid[len(grid)-1].EndTime()), bad)
}

func checkGaps(ctx context.Context, s *doctorState) error {
	gaps, err := s.cli.Store.ListGaps(ctx)
	if err != nil {
		return err
	}
	if len(gaps) == 0 {
		return nil
	}
	var dates []string
	for _, g := range gaps {
		dates = append(dates, fmt.Sprintf("%s: %s", g.SlotDate, g.Error))
	}
	return listError(fmt.Sprintf("%d date(s) failed to generate and are waiting for repair", len(gaps)), dates)
}

func checkHorizon(ctx context.Context, s *doctorState) error {
	bays, err := s.cli.Store.ListActiveBays(ctx)
	if err != nil {
		return err
	}
	if len(bays) == 0 {
		return fmt.Errorf("%w: no active bays", errSkipped)
	}

	want := lastBusinessDay(s)
	if want == "" {
		return nil
	}
	if s.report.MaxDate < want {
		have := s.report.MaxDate
		if have == "" {
			have = "no slots"
		}
		return fmt.Errorf("slots reach %s, want %s; run 'bayslots reconcile'", have, want)
	}
	return nil
}

// lastBusinessDay is the latest business date in [today, today+ForwardDays]
func lastBusinessDay(s *doctorState) string {
	cfg := s.cli.Config
	weekdays := cfg.BusinessWeekdays()
	today := s.rec.Today()
	for day := utils.AddDays(today, cfg.ForwardDays); !day.Before(today); day = utils.AddDays(day, -1) {
		if weekdays.Contains(day.Weekday()) {
			return utils.FormatDate(day)
		}
	}
	return ""
}

func listError(head string, items []string) error {
	lines := []string{head}
	for i, item := range items {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("... and %d more", len(items)-maxListed))
			break
		}
		lines = append(lines, "- "+item)
	}
	return errors.New(strings.Join(lines, "\n"))
}
