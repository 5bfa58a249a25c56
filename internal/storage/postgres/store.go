// Package postgres implements storage.Provider on the shared PostgreSQL database
// the booking subsystem reads from.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/bayslots/internal/logger"
	"github.com/julianstephens/bayslots/internal/migration"
	"github.com/julianstephens/bayslots/internal/storage"
	"github.com/julianstephens/bayslots/migrations"
)

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password, use BAYSLOTS_DATABASE_PASSWORD or the keyring")
)

type Store struct {
	connStr  string
	password string
	schema   string
	db       *sql.DB
}

var _ storage.Provider = (*Store)(nil)

// New builds a store for connStr. The password is injected at connect time so
// it never has to live in the URL. An empty schema uses the server's search_path.
func New(connStr, password, schema string) *Store {
	return &Store{
		connStr:  strings.TrimSpace(connStr),
		password: password,
		schema:   schema,
	}
}

func isURL(connStr string) bool {
	return strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://")
}

// hasParam reports whether a URL or key=value DSN sets key (case-insensitive)
func hasParam(connStr, key string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for k := range u.Query() {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	for _, part := range strings.Fields(connStr) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], key) {
			return true
		}
	}
	return false
}

// ValidateConnString checks that connStr parses as a URL or DSN and carries no password
func ValidateConnString(connStr string) error {
	if strings.TrimSpace(connStr) == "" {
		return fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}
	if _, err := pq.NewConnector(connStr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}

	if isURL(connStr) {
		u, err := url.Parse(connStr)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
		}
		if _, set := u.User.Password(); set {
			return ErrEmbeddedCredentials
		}
		if u.Host == "" && u.User == nil && (u.Path == "" || u.Path == "/") {
			return fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		return nil
	}

	for _, pair := range strings.Fields(connStr) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && strings.EqualFold(strings.TrimSpace(kv[0]), "password") {
			return ErrEmbeddedCredentials
		}
	}
	return nil
}

// quoteDSNValue quotes a key=value DSN value the way libpq expects
func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// buildDSN adds the password and search_path to a validated connection string
func buildDSN(connStr, password, schema string) (string, error) {
	if isURL(connStr) {
		u, err := url.Parse(connStr)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
		}
		if password != "" {
			user := ""
			if u.User != nil {
				user = u.User.Username()
			}
			u.User = url.UserPassword(user, password)
		}
		if schema != "" && !hasParam(connStr, "search_path") {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}

	dsn := connStr
	if password != "" {
		dsn += " password=" + quoteDSNValue(password)
	}
	if schema != "" && !hasParam(connStr, "search_path") {
		dsn += " search_path=" + quoteDSNValue(schema)
	}
	return dsn, nil
}

func (s *Store) connect(ctx context.Context) error {
	if err := ValidateConnString(s.connStr); err != nil {
		return err
	}
	dsn, err := buildDSN(s.connStr, s.password, s.schema)
	if err != nil {
		return err
	}
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}

	db := sql.OpenDB(connector)
	// One reconcile writes sequentially; keep the pool small on a shared server
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasParam(s.connStr, "sslmode") {
			return fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return fmt.Errorf("failed to connect to database: %w", describe(err))
	}
	s.db = db
	return nil
}

// describe appends the SQLSTATE condition name to server errors
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w [%s]", err, pqErr.Code.Name())
	}
	return err
}

// Init connects, creates the configured schema and applies pending migrations
func (s *Store) Init(ctx context.Context) error {
	if s.db == nil {
		if err := s.connect(ctx); err != nil {
			return err
		}
	}

	if s.schema != "" {
		if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(s.schema)); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", s.schema, describe(err))
		}
	}

	runner, err := s.runner()
	if err != nil {
		return err
	}
	if _, err := runner.ApplyMigrations(ctx, func(msg string) { logger.Info(msg) }); err != nil {
		return fmt.Errorf("failed to run migrations: %w", describe(err))
	}
	return nil
}

// Load connects and checks that the schema exists and is not newer than this binary
func (s *Store) Load(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if err := s.connect(ctx); err != nil {
		return err
	}

	var regclass sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT to_regclass('time_slots')::text").Scan(&regclass); err != nil {
		return fmt.Errorf("failed to inspect schema: %w", describe(err))
	}
	if !regclass.Valid {
		return fmt.Errorf("time_slots table not found, run 'bayslots migrate' first")
	}

	runner, err := s.runner()
	if err != nil {
		return err
	}
	return runner.ValidateVersion(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Describe returns a non-sensitive identifier instead of the connection string
func (s *Store) Describe() string {
	if isURL(s.connStr) {
		if u, err := url.Parse(s.connStr); err == nil {
			return "postgresql " + u.Host + u.Path
		}
	}
	return "postgresql"
}

func (s *Store) runner() (*migration.Runner, error) {
	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverPostgres)
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
