// Package db is the SQLite persistence layer for schedules, appointments and attendance.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection pool.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost against a concurrent change
	// or a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Immediate transactions take the write lock up front, so a read inside a
	// write transaction can't be invalidated by another writer.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: conn, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			employee_id TEXT NOT NULL,
			department TEXT NOT NULL,
			date INTEGER NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_employee_date ON schedules(employee_id, date)`,
		// Slots are addressed by (schedule_id, start_unix, end_unix); status changes are
		// conditional updates on that key plus the expected prior status.
		`CREATE TABLE IF NOT EXISTS schedule_slots (
			schedule_id TEXT NOT NULL REFERENCES schedules(id),
			slot_index INTEGER NOT NULL,
			start_unix INTEGER NOT NULL,
			end_unix INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'Available',
			PRIMARY KEY (schedule_id, slot_index),
			UNIQUE (schedule_id, start_unix, end_unix)
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			code TEXT UNIQUE NOT NULL,
			owner_id TEXT NOT NULL,
			profile_id TEXT NOT NULL,
			doctor_id TEXT NOT NULL,
			department TEXT NOT NULL,
			appointment_date INTEGER NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			previous_status TEXT NOT NULL DEFAULT '',
			schedule_id TEXT NOT NULL REFERENCES schedules(id),
			slot_start INTEGER NOT NULL,
			slot_end INTEGER NOT NULL,
			slot_status TEXT NOT NULL,
			symptoms TEXT NOT NULL DEFAULT '',
			bhyt_code TEXT NOT NULL DEFAULT '',
			room TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_owner ON appointments(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date ON appointments(doctor_id, appointment_date)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id TEXT PRIMARY KEY,
			employee_id TEXT NOT NULL,
			schedule_id TEXT NOT NULL REFERENCES schedules(id),
			date INTEGER NOT NULL,
			time_slots TEXT NOT NULL,
			check_in INTEGER,  -- unix nanoseconds
			check_out INTEGER, -- unix nanoseconds
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (employee_id, schedule_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date)`,
		`CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn in a transaction and commits when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(v int64) time.Time { return time.Unix(v, 0).UTC() }

// Attendance instants keep full precision: lateness is decided against them.
func nullUnixNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixNano(), Valid: true}
}

func fromNullUnixNano(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
