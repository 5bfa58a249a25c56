// Package sqlite implements storage.Provider on a local SQLite file using the
// pure-Go modernc.org/sqlite driver. It backs local development and the store tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/bayslots/internal/backup"
	"github.com/julianstephens/bayslots/internal/logger"
	"github.com/julianstephens/bayslots/internal/migration"
	"github.com/julianstephens/bayslots/internal/storage"
	"github.com/julianstephens/bayslots/migrations"
)

// Concurrent reconcile processes share one file; wait on locks instead of failing
const pragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

type Store struct {
	path string
	db   *sql.DB
}

var (
	_ storage.Provider    = (*Store)(nil)
	_ storage.Snapshotter = (*Store)(nil)
)

func New(path string) *Store {
	return &Store{
		path: strings.TrimPrefix(path, "file:"),
	}
}

func (s *Store) dsn() string {
	sep := "?"
	if strings.Contains(s.path, "?") {
		sep = "&"
	}
	return "file:" + s.path + sep + pragmas
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	return nil
}

// Init creates the database file if needed and applies pending migrations
func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	if s.db == nil {
		if err := s.open(); err != nil {
			return err
		}
	}

	runner, err := s.runner()
	if err != nil {
		return err
	}
	if _, err := runner.ApplyMigrations(ctx, func(msg string) { logger.Info(msg) }); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Load opens an existing database and checks its schema version
func (s *Store) Load(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("database %s does not exist, run 'bayslots migrate' first", s.path)
	}

	if err := s.open(); err != nil {
		return err
	}

	runner, err := s.runner()
	if err != nil {
		return err
	}
	if err := runner.ValidateVersion(ctx); err != nil {
		return err
	}
	exists, err := s.tableExists(ctx, "time_slots")
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("database %s has no time_slots table, run 'bayslots migrate' first", s.path)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) Describe() string {
	return "sqlite " + s.path
}

// Snapshot copies the database file aside, returning "" when it does not exist yet
func (s *Store) Snapshot(ctx context.Context) (string, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return "", nil
	}
	return backup.NewManager(s.path).Create(ctx)
}

// GetDB returns the underlying connection, nil before Init or Load
func (s *Store) GetDB() *sql.DB {
	return s.db
}

func (s *Store) runner() (*migration.Runner, error) {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverSQLite)
}

func (s *Store) SchemaStatus(ctx context.Context) (storage.SchemaStatus, error) {
	if s.db == nil {
		return storage.SchemaStatus{}, storage.ErrNotLoaded
	}
	runner, err := s.runner()
	if err != nil {
		return storage.SchemaStatus{}, err
	}
	current, err := runner.GetCurrentVersion(ctx)
	if err != nil {
		return storage.SchemaStatus{}, err
	}
	latest, err := runner.GetLatestVersion()
	if err != nil {
		return storage.SchemaStatus{}, err
	}
	return storage.SchemaStatus{CurrentVersion: current, LatestVersion: latest}, nil
}

// tableExists matches case-insensitively, as SQLite resolves table names
func (s *Store) tableExists(ctx context.Context, tableName string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name COLLATE NOCASE = ?", tableName)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
