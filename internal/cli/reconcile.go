package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/julianstephens/bayslots/internal/reconciler"
)

type ReconcileCmd struct {
	Cleanup bool `help:"After generating, delete never-booked slots older than the retention window."`
	DryRun  bool `help:"Compute the date range and candidate rows without writing anything." name:"dry-run"`
}

func (cmd *ReconcileCmd) Run(ctx *Context) error {
	r, err := ctx.NewReconciler()
	if err != nil {
		return err
	}

	res, err := r.Run(ctx.Context(), reconciler.Options{Cleanup: cmd.Cleanup, DryRun: cmd.DryRun})
	if err != nil {
		return err
	}

	PrintResult(ctx.Stdout(), res, cmd.DryRun)
	return nil
}

// PrintResult writes a human summary of a run. Partial runs still exit 0.
func PrintResult(w io.Writer, res reconciler.Result, dryRun bool) {
	if res.Bays == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No active bays. Nothing to do."))
		return
	}

	if dryRun {
		fmt.Fprintf(w, "%s %d candidate slot(s) for %d bay(s), %s through %s\n",
			WarnStyle.Render("Dry run:"), res.Planned, res.Bays, res.StartFrom, res.TargetEnd)
		if res.CleanupRan {
			fmt.Fprintln(w, MutedStyle.Render("Cleanup would run after generation."))
		}
		return
	}

	fmt.Fprintf(w, "%s inserted %d slot(s) for %d bay(s), %s through %s\n",
		OKStyle.Render("✓"), res.Inserted, res.Bays, res.StartFrom, res.TargetEnd)
	if len(res.RepairedGaps) > 0 {
		fmt.Fprintf(w, "%s repaired %d gap(s): %s\n", OKStyle.Render("✓"), len(res.RepairedGaps), strings.Join(res.RepairedGaps, ", "))
	}
	if len(res.FailedDays) > 0 {
		fmt.Fprintf(w, "%s %d day(s) failed and were recorded for repair: %s\n",
			WarnStyle.Render("⚠"), len(res.FailedDays), strings.Join(res.FailedDays, ", "))
	}
	if res.CleanupRan {
		if res.CleanupErr != nil {
			fmt.Fprintf(w, "%s cleanup failed: %v\n", WarnStyle.Render("⚠"), res.CleanupErr)
		} else {
			fmt.Fprintf(w, "%s deleted %d expired slot(s)\n", OKStyle.Render("✓"), res.Deleted)
		}
	}
}
