package cli

import (
	"fmt"
	"time"

	"github.com/julianstephens/bayslots/internal/constants"
	apperrors "github.com/julianstephens/bayslots/internal/errors"
	"github.com/julianstephens/bayslots/internal/logger"
	"github.com/julianstephens/bayslots/internal/reconciler"
)

// WatchCmd keeps reconciling on an interval for hosts without cron
type WatchCmd struct {
	Interval time.Duration `help:"Time between runs." default:"24h"`
	Cleanup  bool          `help:"Run cleanup after each generation pass."`
}

func (cmd *WatchCmd) Run(ctx *Context) error {
	if cmd.Interval <= 0 {
		cmd.Interval = constants.DefaultWatchInterval
	}
	r, err := ctx.NewReconciler()
	if err != nil {
		return err
	}

	c := ctx.Context()
	logger.Info("Starting reconcile loop", "interval", cmd.Interval, "cleanup", cmd.Cleanup)
	ticker := time.NewTicker(cmd.Interval)
	defer ticker.Stop()

	cmd.runOnce(ctx, r)

	for {
		select {
		case <-c.Done():
			logger.Info("Reconcile loop stopped")
			return nil
		case <-ticker.C:
			cmd.runOnce(ctx, r)
		}
	}
}

// runOnce never stops the loop; a failed run is logged and retried next tick
func (cmd *WatchCmd) runOnce(ctx *Context, r *reconciler.Reconciler) {
	res, err := r.Run(ctx.Context(), reconciler.Options{Cleanup: cmd.Cleanup})
	if err != nil {
		if ctx.Context().Err() != nil {
			return
		}
		phase, _ := apperrors.PhaseOf(err)
		logger.Error("Reconcile run failed", "phase", phase, "error", err)
		fmt.Fprintln(ctx.Stdout(), apperrors.Format(err))
		return
	}
	PrintResult(ctx.Stdout(), res, false)
}
