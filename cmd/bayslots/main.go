package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/bayslots/internal/cli"
	"github.com/julianstephens/bayslots/internal/cli/system"
	"github.com/julianstephens/bayslots/internal/config"
	"github.com/julianstephens/bayslots/internal/constants"
	apperrors "github.com/julianstephens/bayslots/internal/errors"
	"github.com/julianstephens/bayslots/internal/logger"
	"github.com/julianstephens/bayslots/internal/storage"
	"github.com/julianstephens/bayslots/internal/storage/postgres"
	"github.com/julianstephens/bayslots/internal/storage/sqlite"
)

var CLI struct {
	Version kong.VersionFlag
	EnvFile string `help:"Optional dotenv file read before the environment." default:".env" name:"env-file"`
	Debug   bool   `help:"Enable debug logging."`

	Reconcile cli.ReconcileCmd    `cmd:"" help:"Generate missing slots for the forward window." default:"withargs"`
	Watch     cli.WatchCmd        `cmd:"" help:"Reconcile on an interval until interrupted."`
	Runs      cli.RunsCmd         `cmd:"" help:"Show recent reconcile runs."`
	Migrate   system.MigrateCmd   `cmd:"" help:"Create or upgrade the database schema."`
	Doctor    system.DoctorCmd    `cmd:"" help:"Run health checks against stored slots."`
	Keyring   struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store the database password in the OS keyring."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored database password (masked)."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Remove the database password from the OS keyring."`
		Status system.KeyringStatusCmd `cmd:"" help:"Check OS keyring availability."`
	} `cmd:"" help:"Manage the database password in the OS keyring."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Keeps the forward calendar of bookable service-bay time slots populated."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	cfg, err := config.Load(CLI.EnvFile)
	if err != nil {
		apperrors.Fatal(apperrors.Wrap(apperrors.PhaseConfig, err))
	}
	if err := logger.Init(logger.Config{Debug: cfg.Debug || CLI.Debug, LogDir: cfg.LogDir}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCtx := &cli.Context{Ctx: ctx, Config: cfg}

	command := kctx.Command()
	if !strings.HasPrefix(command, "keyring") {
		if err := cfg.ResolveCredentials(); err != nil {
			apperrors.Fatal(apperrors.Wrap(apperrors.PhaseConfig, err))
		}
		appCtx.Config = cfg

		store, err := newStore(cfg)
		if err != nil {
			apperrors.Fatal(apperrors.Wrap(apperrors.PhaseConfig, err))
		}
		defer store.Close()
		appCtx.Store = store

		// migrate creates the schema and doctor reports load failures itself
		if !strings.HasPrefix(command, "migrate") && !strings.HasPrefix(command, "doctor") {
			if err := store.Load(ctx); err != nil {
				apperrors.Fatal(err)
			}
		}
	}

	if err := kctx.Run(appCtx); err != nil {
		if appCtx.Store != nil {
			appCtx.Store.Close()
		}
		apperrors.Fatal(err)
	}
}

func newStore(cfg config.Config) (storage.Provider, error) {
	switch cfg.DatabaseDriver {
	case constants.DriverSQLite:
		return sqlite.New(cfg.DatabaseURL), nil
	case constants.DriverPostgres:
		if err := postgres.ValidateConnString(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		return postgres.New(cfg.DatabaseURL, cfg.DatabasePassword, cfg.DatabaseSchema), nil
	default:
		return nil, config.ErrUnknownDriver
	}
}
