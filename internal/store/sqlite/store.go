// Package sqlite stores job records in a single SQLite file using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scholarsource/internal/job"
	"scholarsource/internal/store/sqlcodec"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id             TEXT PRIMARY KEY,
    status         TEXT NOT NULL,
    inputs         TEXT NOT NULL,
    status_message TEXT NOT NULL DEFAULT '',
    search_title   TEXT NOT NULL DEFAULT '',
    results        TEXT,
    raw_output     TEXT,
    error          TEXT,
    metadata       TEXT,
    created_at     TEXT NOT NULL,
    completed_at   TEXT,
    updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at);
`

const columns = `id, status, inputs, status_message, search_title, results,
	raw_output, error, metadata, created_at, completed_at`

// Timestamps are stored as fixed-width text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements job.Store and job.Lister.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file if needed and ensures the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "store", "driver", "sqlite")}
	s.logger.Info("SQLite store ready", "path", path)
	return s, nil
}

// Put upserts the whole record.
func (s *Store) Put(ctx context.Context, rec *job.Record) error {
	row, err := sqlcodec.Encode(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO jobs (`+columns+`, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    status         = excluded.status,
    inputs         = excluded.inputs,
    status_message = excluded.status_message,
    search_title   = excluded.search_title,
    results        = excluded.results,
    raw_output     = excluded.raw_output,
    error          = excluded.error,
    metadata       = excluded.metadata,
    completed_at   = excluded.completed_at,
    updated_at     = excluded.updated_at`,
		row.ID, row.Status, string(row.Inputs), row.StatusMessage, row.SearchTitle,
		string(row.Results), row.RawOutput, row.Error, string(row.Metadata),
		formatTime(row.CreatedAt), formatTimePtr(row.CompletedAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (*job.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", id, err)
	}
	return rec, nil
}

// ListByStatus returns records in the given statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...job.Status) ([]*job.Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM jobs WHERE status IN (`+placeholders+`) ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	var out []*job.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite list: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*job.Record, error) {
	var (
		r                 sqlcodec.Row
		inputs, createdAt string
		results, metadata sql.NullString
		completedAt       sql.NullString
	)
	if err := sc.Scan(
		&r.ID, &r.Status, &inputs, &r.StatusMessage, &r.SearchTitle, &results,
		&r.RawOutput, &r.Error, &metadata, &createdAt, &completedAt,
	); err != nil {
		return nil, err
	}

	created, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	r.CreatedAt = created
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		r.CompletedAt = &t
	}
	r.Inputs = []byte(inputs)
	if results.Valid {
		r.Results = []byte(results.String)
	}
	if metadata.Valid {
		r.Metadata = []byte(metadata.String)
	}
	return sqlcodec.Decode(&r)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

var (
	_ job.Store  = (*Store)(nil)
	_ job.Lister = (*Store)(nil)
)
