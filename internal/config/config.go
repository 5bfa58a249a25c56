package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/julianstephens/bayslots/internal/constants"
	"github.com/julianstephens/bayslots/internal/keyring"
	"github.com/julianstephens/bayslots/internal/utils"
)

// EnvPrefix is prepended to every variable name, e.g. BAYSLOTS_DATABASE_URL
const EnvPrefix = "BAYSLOTS"

var (
	ErrMissingDatabaseURL = errors.New("BAYSLOTS_DATABASE_URL is not set")
	ErrMissingCredential  = errors.New("database password not found: set BAYSLOTS_DATABASE_PASSWORD or store it with 'bayslots keyring set'")
	ErrUnknownDriver      = errors.New("BAYSLOTS_DATABASE_DRIVER must be 'postgres' or 'sqlite'")
)

// Config is the process configuration, read from the environment.
type Config struct {
	DatabaseDriver   string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabaseSchema   string `envconfig:"DATABASE_SCHEMA"` // PostgreSQL search_path; empty keeps the server default

	ForwardDays         int    `envconfig:"FORWARD_DAYS" default:"60"`
	CleanupDays         int    `envconfig:"CLEANUP_DAYS" default:"90"`
	SlotStartHour       int    `envconfig:"SLOT_START_HOUR" default:"7"`
	SlotEndHour         int    `envconfig:"SLOT_END_HOUR" default:"15"`
	SlotLastStartMinute int    `envconfig:"SLOT_LAST_START_MINUTE" default:"30"`
	SlotIntervalMinutes int    `envconfig:"SLOT_INTERVAL_MINUTES" default:"30"`
	Timezone            string `envconfig:"TIMEZONE" default:"America/New_York"`
	Weekdays            string `envconfig:"WEEKDAYS" default:"mon,tue,wed,thu,fri"`
	RepairGaps          bool   `envconfig:"REPAIR_GAPS" default:"true"`

	StorageTimeout time.Duration `envconfig:"STORAGE_TIMEOUT" default:"30s"`

	LogDir string `envconfig:"LOG_DIR"`
	Debug  bool   `envconfig:"DEBUG"`
}

// Default returns the configuration with every default applied and no credentials
func Default() Config {
	return Config{
		DatabaseDriver:      constants.DriverPostgres,
		ForwardDays:         constants.DefaultForwardDays,
		CleanupDays:         constants.DefaultCleanupDays,
		SlotStartHour:       constants.DefaultSlotStartHour,
		SlotEndHour:         constants.DefaultSlotEndHour,
		SlotLastStartMinute: constants.DefaultLastStartMinute,
		SlotIntervalMinutes: constants.DefaultIntervalMinutes,
		Timezone:            constants.DefaultTimezone,
		Weekdays:            constants.DefaultWeekdays,
		RepairGaps:          true,
		StorageTimeout:      constants.DefaultStorageTimeout,
	}
}

// Load reads an optional dotenv file, then the process environment.
// Variables already present in the environment win over the dotenv file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the static options. Credentials are checked separately by
// ResolveCredentials so that commands that never touch the database can skip it.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case constants.DriverPostgres, constants.DriverSQLite:
	default:
		return fmt.Errorf("%w (got %q)", ErrUnknownDriver, c.DatabaseDriver)
	}
	if c.ForwardDays < 0 {
		return fmt.Errorf("BAYSLOTS_FORWARD_DAYS must be >= 0, got %d", c.ForwardDays)
	}
	if c.CleanupDays < 1 {
		return fmt.Errorf("BAYSLOTS_CLEANUP_DAYS must be >= 1, got %d", c.CleanupDays)
	}
	if c.StorageTimeout <= 0 {
		return fmt.Errorf("BAYSLOTS_STORAGE_TIMEOUT must be positive, got %s", c.StorageTimeout)
	}
	if _, err := utils.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("BAYSLOTS_TIMEZONE: %w", err)
	}
	if _, err := utils.ParseWeekdays(c.Weekdays); err != nil {
		return fmt.Errorf("BAYSLOTS_WEEKDAYS: %w", err)
	}
	return nil
}

// ResolveCredentials makes sure the storage endpoint and credential are present.
// For PostgreSQL the password falls back to the OS keyring.
func (c *Config) ResolveCredentials() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.DatabaseDriver != constants.DriverPostgres || c.DatabasePassword != "" {
		return nil
	}

	pw, err := keyring.GetPassword()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrMissingCredential
		}
		return fmt.Errorf("%w (%v)", ErrMissingCredential, err)
	}
	c.DatabasePassword = pw
	return nil
}

// Location returns the reference timezone. Validate has already checked it.
func (c Config) Location() *time.Location {
	loc, err := utils.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BusinessWeekdays returns the parsed weekday set
func (c Config) BusinessWeekdays() utils.WeekdaySet {
	days, err := utils.ParseWeekdays(c.Weekdays)
	if err != nil {
		return utils.WeekdaySet{}
	}
	return utils.NewWeekdaySet(days)
}
