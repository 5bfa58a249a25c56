package constants

import "time"

// RunMode describes which phases a reconcile run executed
type RunMode string

// RunStatus is the outcome recorded in the run log
type RunStatus string

const (
	AppName            = "bayslots"
	DefaultKeyringUser = "database-password"
	Version            = "v0.3.0"

	// DateFormat is the storage format for slot dates (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the storage format for slot start/end times (HH:MM:SS)
	TimeFormat = "15:04:05"

	// DisplayTimeFormat is used in CLI output (HH:MM)
	DisplayTimeFormat = "15:04"

	// Driver names
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	// Reconciler defaults
	DefaultForwardDays     = 60
	DefaultCleanupDays     = 90
	DefaultSlotStartHour   = 7
	DefaultSlotEndHour     = 15
	DefaultLastStartMinute = 30
	DefaultIntervalMinutes = 30
	DefaultTimezone        = "America/New_York"
	DefaultWeekdays        = "mon,tue,wed,thu,fri"
	DefaultStorageTimeout  = 30 * time.Second
	DefaultWatchInterval   = 24 * time.Hour

	// InsertChunkSize caps rows per INSERT statement so large bay counts stay under
	// PostgreSQL's 65535 bind parameter limit (5 columns per row).
	InsertChunkSize = 1000

	// Log rotation
	LogFileName   = "bayslots.log"
	LogMaxSizeMB  = 10
	LogMaxBackups = 5
	LogMaxAgeDays = 28

	RunModeGenerate        RunMode = "generate"
	RunModeGenerateCleanup RunMode = "generate+cleanup"

	RunStatusOK      RunStatus = "ok"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)
