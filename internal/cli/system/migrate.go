package system

import (
	"fmt"

	"github.com/julianstephens/bayslots/internal/cli"
	"github.com/julianstephens/bayslots/internal/storage"
)

// MigrateCmd creates or upgrades the schema. It is the only command that
// writes DDL; every other command refuses to start on an unmigrated database.
type MigrateCmd struct {
	NoSnapshot bool `help:"Skip the pre-migration snapshot of a SQLite database." name:"no-snapshot"`
}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	if snap, ok := ctx.Store.(storage.Snapshotter); ok && !c.NoSnapshot {
		path, err := snap.Snapshot(ctx.Context())
		if err != nil {
			return fmt.Errorf("pre-migration snapshot failed: %w", err)
		}
		if path != "" {
			fmt.Fprintf(ctx.Stdout(), "%s snapshot written to %s\n", cli.MutedStyle.Render("ℹ"), path)
		}
	}

	if err := ctx.Store.Init(ctx.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	status, err := ctx.Store.SchemaStatus(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if status.CurrentVersion != status.LatestVersion {
		return fmt.Errorf("schema is at version %d after migrating, expected %d", status.CurrentVersion, status.LatestVersion)
	}

	fmt.Fprintf(ctx.Stdout(), "%s %s schema is at version %d\n", cli.OKStyle.Render("✓"), ctx.Store.Describe(), status.CurrentVersion)
	return nil
}
