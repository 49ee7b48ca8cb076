package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the local store handle. It is constructed once at process start and
// passed explicitly to every component that needs it.
type DB struct {
	db     *sql.DB
	logger *zerolog.Logger
}

// New opens (creating if necessary) the local store at path and ensures the
// schema. A schema failure here is fatal to startup: the returned error must
// abort the process, the store cannot be used safely on a partial schema.
func New(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single logical writer: all statements funnel through one connection so
	// concurrent service calls and the sync loops serialize on transactions.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{db: sqlDB, logger: logger}
	if err := db.EnsureSchema(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("local store initialized")
	return db, nil
}

// EnsureSchema creates all tables and indexes if absent. Idempotent and safe
// to call on every startup; never drops or truncates existing data. Dependent
// tables (jobs) are created after their dependencies (bookings).
func (db *DB) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            email TEXT UNIQUE NOT NULL,
            name TEXT NOT NULL,
            tenant_id TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'user',
            server_seq INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            customer_id TEXT NOT NULL,
            due_date TEXT NOT NULL,
            time_estimate INTEGER NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            quote REAL,
            status TEXT NOT NULL DEFAULT 'pending',
            photos TEXT,
            custom_fields TEXT,
            server_seq INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,

		// Jobs reference bookings; created after bookings.
		`CREATE TABLE IF NOT EXISTS jobs (
            id TEXT PRIMARY KEY,
            booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'received',
            photos TEXT,
            server_seq INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS time_slots (
            id TEXT PRIMARY KEY,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            available BOOLEAN NOT NULL DEFAULT 1,
            server_seq INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS pending_operations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            entity_kind TEXT NOT NULL,
            entity_id TEXT NOT NULL,
            op_type TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            attempt_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at TEXT NOT NULL,
            next_retry_at TEXT,
            processed_at TEXT
        )`,

		`CREATE TABLE IF NOT EXISTS sync_checkpoint (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            last_seq INTEGER NOT NULL DEFAULT 0,
            updated_at TEXT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_users_tenant_id ON users(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_tenant_id ON bookings(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer_id ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_due_date ON bookings(due_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,

		`CREATE INDEX IF NOT EXISTS idx_jobs_booking_id ON jobs(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,

		`CREATE INDEX IF NOT EXISTS idx_time_slots_start_time ON time_slots(start_time)`,

		`CREATE INDEX IF NOT EXISTS idx_pending_operations_status ON pending_operations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_operations_entity ON pending_operations(entity_kind, entity_id)`,
	}

	for _, query := range queries {
		if _, err := db.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	// Seed the single checkpoint row so advancement is always an UPDATE.
	seed := `INSERT INTO sync_checkpoint (id, last_seq, updated_at)
             VALUES (1, 0, ?) ON CONFLICT(id) DO NOTHING`
	if _, err := db.db.ExecContext(ctx, seed, fmtTime(nowUTC())); err != nil {
		return fmt.Errorf("failed to seed sync checkpoint: %w", err)
	}

	return nil
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// WithTx runs fn inside a transaction, rolling back on error.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}
