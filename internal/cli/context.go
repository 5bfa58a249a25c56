package cli

import (
	"context"
	"io"
	"os"

	"github.com/julianstephens/bayslots/internal/config"
	"github.com/julianstephens/bayslots/internal/reconciler"
	"github.com/julianstephens/bayslots/internal/storage"
)

// Context is passed to every command's Run method
type Context struct {
	Ctx    context.Context // cancelled on SIGINT/SIGTERM
	Store  storage.Provider
	Config config.Config
	Out    io.Writer
	In     io.Reader

	// Reconciler options, replaced in tests
	ReconcilerOpts []reconciler.Option
}

// Stdout returns the command output writer
func (c *Context) Stdout() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// Stdin returns the command input reader
func (c *Context) Stdin() io.Reader {
	if c.In == nil {
		return os.Stdin
	}
	return c.In
}

// Context returns the command context, never nil
func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Policy maps the process configuration onto the reconciler policy
func (c *Context) Policy() reconciler.Policy {
	cfg := c.Config
	return reconciler.Policy{
		ForwardDays:     cfg.ForwardDays,
		CleanupDays:     cfg.CleanupDays,
		StartHour:       cfg.SlotStartHour,
		EndHour:         cfg.SlotEndHour,
		LastStartMinute: cfg.SlotLastStartMinute,
		IntervalMinutes: cfg.SlotIntervalMinutes,
		Location:        cfg.Location(),
		Weekdays:        cfg.BusinessWeekdays(),
		RepairGaps:      cfg.RepairGaps,
		StorageTimeout:  cfg.StorageTimeout,
	}
}

// NewReconciler builds a reconciler over the context's store
func (c *Context) NewReconciler() (*reconciler.Reconciler, error) {
	return reconciler.New(c.Store, c.Policy(), c.ReconcilerOpts...)
}
