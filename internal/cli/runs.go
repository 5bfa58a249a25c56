package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/julianstephens/bayslots/internal/constants"
	"github.com/julianstephens/bayslots/internal/models"
)

// RunsCmd lists the reconcile run log and any outstanding gaps
type RunsCmd struct {
	Limit int  `help:"Number of runs to show (0 for all)." default:"20"`
	Gaps  bool `help:"Also list dates waiting for repair."`
}

func (cmd *RunsCmd) Run(ctx *Context) error {
	runs, err := ctx.Store.ListRuns(ctx.Context(), cmd.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	w := ctx.Stdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No reconcile runs recorded yet."))
	} else {
		fmt.Fprintln(w, RenderRuns(runs, ctx.Config.Location()))
	}

	if !cmd.Gaps {
		return nil
	}

	gaps, err := ctx.Store.ListGaps(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to list gaps: %w", err)
	}
	fmt.Fprintln(w)
	if len(gaps) == 0 {
		fmt.Fprintln(w, OKStyle.Render("No open gaps."))
		return nil
	}
	fmt.Fprintln(w, HeaderStyle.Render(fmt.Sprintf("Open gaps (%d)", len(gaps))))
	for _, g := range gaps {
		fmt.Fprintf(w, "  %s  %s  %s\n", g.SlotDate, MutedStyle.Render(g.RunID), g.Error)
	}
	return nil
}

// RenderRuns formats runs as a table with times shown in loc
func RenderRuns(runs []models.ReconcileRun, loc *time.Location) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.In(loc).Format(constants.DateFormat + " " + constants.DisplayTimeFormat),
			string(r.Mode),
			rangeLabel(r),
			strconv.Itoa(r.Inserted),
			strconv.Itoa(r.Deleted),
			strconv.Itoa(r.FailedDays),
			string(r.Status),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(MutedStyle).
		Headers("STARTED", "MODE", "RANGE", "INSERTED", "DELETED", "FAILED", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle.PaddingRight(1)
			}
			if col == 6 && row >= 0 && row < len(runs) {
				return StatusStyle(runs[row].Status).PaddingRight(1)
			}
			return CellStyle.PaddingRight(1)
		})
	return t.String()
}

func rangeLabel(r models.ReconcileRun) string {
	if r.StartFrom == "" {
		return "-"
	}
	return r.StartFrom + ".." + r.TargetEnd
}
