package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultDBTimeout = 5 * time.Second

// Tier identifies which persistence tier the store landed on at startup.
type Tier string

const (
	TierRemote Tier = "remote" // on-disk store with the cloud mirror attached
	TierLocal  Tier = "local"  // on-disk store, sync disabled
	TierMemory Tier = "memory" // volatile fallback, nothing persists
)

// Database wraps the sqlite handle. Access is serialized through a single
// connection; sqlite WAL handles concurrent readers within it.
type Database struct {
	DB     *sql.DB
	dbFile string
	tier   Tier
	now    func() time.Time
}

// Open opens (creating if needed) the store at dbFile and applies the schema.
func Open(ctx context.Context, dbFile string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON", dbFile)
	return open(ctx, dsn, dbFile, TierLocal)
}

// OpenMemory opens a volatile in-memory store.
func OpenMemory(ctx context.Context) (*Database, error) {
	return open(ctx, "file::memory:?_foreign_keys=ON", ":memory:", TierMemory)
}

// OpenFallback opens the on-disk store and, if that fails, degrades to an
// in-memory store so the application still runs. The caller can inspect
// Tier to see what it got.
func OpenFallback(ctx context.Context, dbFile string) (*Database, error) {
	db, err := Open(ctx, dbFile)
	if err == nil {
		return db, nil
	}
	slog.Warn("local store unavailable, falling back to in-memory store", "path", dbFile, "error", err)
	return OpenMemory(ctx)
}

func open(ctx context.Context, dsn, dbFile string, tier Tier) (*Database, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	d := &Database{DB: db, dbFile: dbFile, tier: tier, now: utcNow}
	if err := d.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) init(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx, defaultDBTimeout)
	defer cancel()
	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	if err := d.createTables(ctx); err != nil {
		return err
	}
	d.migrate(ctx)
	return nil
}

func (d *Database) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT 'sky',
			kind TEXT NOT NULL,
			unit TEXT,
			goal REAL NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			current_streak INTEGER NOT NULL DEFAULT 0,
			best_streak INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			archived_at INTEGER,
			dirty INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			activity_id TEXT NOT NULL,
			day TEXT NOT NULL,
			value REAL NOT NULL DEFAULT 0,
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			note TEXT,
			started_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			dirty INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS tombstones (
			id TEXT PRIMARY KEY,
			entity TEXT NOT NULL,
			deleted_at INTEGER NOT NULL,
			dirty INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_activity_day ON sessions(activity_id, day);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_day ON sessions(day);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_dirty ON activities(dirty);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_dirty ON sessions(dirty);`,
	}

	for _, query := range queries {
		if _, err := d.DB.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// migrate brings databases created by earlier releases up to the current
// schema. ALTERs fail harmlessly when the column already exists.
func (d *Database) migrate(ctx context.Context) {
	_, _ = d.DB.ExecContext(ctx, "ALTER TABLE activities ADD COLUMN unit TEXT")
	_, _ = d.DB.ExecContext(ctx, "ALTER TABLE activities ADD COLUMN goal REAL NOT NULL DEFAULT 0")
	_, _ = d.DB.ExecContext(ctx, "ALTER TABLE sessions ADD COLUMN note TEXT")
	_, _ = d.DB.ExecContext(ctx, "ALTER TABLE sessions ADD COLUMN started_at INTEGER")
}

// withTimeout bounds an operation unless the caller already set a deadline.
func (d *Database) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// WithTx runs fn inside a transaction, rolling back on error.
func (d *Database) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return rollbackWithLog(tx, err)
	}
	return tx.Commit()
}

func rollbackWithLog(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
		slog.Warn("transaction rollback failed", "error", rbErr)
	}
	return err
}

// Tier reports the persistence tier the store is running on.
func (d *Database) Tier() Tier { return d.tier }

// SetTier records the tier chosen at startup (remote vs local).
func (d *Database) SetTier(t Tier) { d.tier = t }

// Path returns the backing file path, or ":memory:" for the volatile tier.
func (d *Database) Path() string { return d.dbFile }

// Close releases the underlying handle.
func (d *Database) Close() error {
	return d.DB.Close()
}
