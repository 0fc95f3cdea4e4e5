// Package store persists conversations, threads and maintenance runs in SQL.
// SQLite is the default; the pgx driver lets the tooling work directly on a
// helpdesk's Postgres database whose tables use the same column names.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Options configures Open.
type Options struct {
	Driver  string
	DSN     string
	Migrate bool
	Logger  *zap.Logger
}

type Store struct {
	db     *sqlx.DB
	driver string
	log    *zap.Logger
}

// Open connects to the database and, when asked to, applies pending schema
// migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	switch opts.Driver {
	case DriverSQLite:
		if err := ensureDir(opts.DSN); err != nil {
			return nil, err
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}

	db, err := sqlx.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.Driver == DriverSQLite {
		// one writer; also keeps a :memory: database alive across calls
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, driver: opts.Driver, log: opts.Logger}
	if opts.Migrate {
		if err := s.migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

func ensureDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := sqliteMigrations
	if s.driver == DriverPostgres {
		migrations = postgresMigrations
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration v%d: %w", m.version, err)
			}
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.version, err)
		}
		s.log.Info("applied schema migration", zap.Int("version", m.version), zap.String("driver", s.driver))
	}
	return nil
}

// Timestamps are stored as Unix milliseconds.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
