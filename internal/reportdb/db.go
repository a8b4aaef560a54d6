// Package reportdb persists report products in SQLite so later runs can
// append to them.
package reportdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/acoustic.report/internal/monitoring"
	"github.com/banshee-data/acoustic.report/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrSchemaMismatch is returned when an appended report does not share
	// the attributes, categories or depth channels of the stored one.
	ErrSchemaMismatch = errors.New("reportdb: report layout differs from stored report")
	// ErrNoReport is returned by ReadReport on an empty store.
	ErrNoReport = errors.New("reportdb: no report stored")
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// DB is a report store. Writes are serialized; reads may run concurrently.
type DB struct {
	*sql.DB

	mu    sync.Mutex
	clock timeutil.Clock
	logf  monitoring.Logf

	enc *zstd.Encoder
	dec *zstd.Decoder

	skipMigrate bool
}

// Option configures a DB.
type Option func(*DB)

// WithClock sets the clock used for run timestamps and retry backoff.
func WithClock(c timeutil.Clock) Option { return func(db *DB) { db.clock = c } }

// WithLogger sets the diagnostic logger.
func WithLogger(l monitoring.Logf) Option { return func(db *DB) { db.logf = l } }

// WithoutMigrations opens the store as found, for schema maintenance.
func WithoutMigrations() Option { return func(db *DB) { db.skipMigrate = true } }

// Open opens or creates the store at path and brings its schema up to date.
func Open(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Connection-scoped pragmas hold only while every statement shares one
	// connection.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, clock: timeutil.RealClock{}}
	for _, o := range opts {
		o(db)
	}
	db.logf = monitoring.Prefixed(db.logf, "reportdb")

	if db.enc, err = zstd.NewWriter(nil); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if db.dec, err = zstd.NewReader(nil); err != nil {
		db.enc.Close()
		sqlDB.Close()
		return nil, err
	}

	if db.skipMigrate {
		return db, nil
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the codec and the database handle.
func (db *DB) Close() error {
	if db.dec != nil {
		db.dec.Close()
	}
	if db.enc != nil {
		db.enc.Close()
	}
	return db.DB.Close()
}

// MigrateUp runs all pending migrations up to the latest version.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// It returns 0, false, nil before any migration ran.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

const (
	maxBusyRetries = 5
	busyBackoff    = 20 * time.Millisecond
)

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn until it succeeds, fails with a non-busy error, or
// has been tried maxBusyRetries times. The wait doubles after every busy
// failure.
func (db *DB) retryOnBusy(fn func() error) error {
	wait := busyBackoff
	var err error
	for attempt := 1; attempt <= maxBusyRetries; attempt++ {
		if err = fn(); !isBusy(err) {
			return err
		}
		if attempt < maxBusyRetries {
			db.logf("database busy, retry %d/%d in %s", attempt, maxBusyRetries-1, wait)
			db.clock.Sleep(wait)
			wait *= 2
		}
	}
	return fmt.Errorf("database still busy after %d attempts: %w", maxBusyRetries, err)
}
