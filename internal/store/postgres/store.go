// Package postgres stores job records in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scholarsource/internal/config"
	"scholarsource/internal/job"
	"scholarsource/internal/store/sqlcodec"
)

const columns = `id, status, inputs, status_message, search_title, results,
	raw_output, error, metadata, created_at, completed_at`

// Store implements job.Store and job.Lister.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to PostgreSQL and, when configured, applies migrations.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *slog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(pool, logger)
	if cfg.RunMigrations {
		if err := Migrate(ctx, pool, s.logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an existing pool. The caller is responsible for the schema.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger.With("component", "store", "driver", "postgres")}
}

// Put upserts the whole record.
func (s *Store) Put(ctx context.Context, rec *job.Record) error {
	row, err := sqlcodec.Encode(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO jobs (`+columns+`, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (id) DO UPDATE SET
    status         = EXCLUDED.status,
    inputs         = EXCLUDED.inputs,
    status_message = EXCLUDED.status_message,
    search_title   = EXCLUDED.search_title,
    results        = EXCLUDED.results,
    raw_output     = EXCLUDED.raw_output,
    error          = EXCLUDED.error,
    metadata       = EXCLUDED.metadata,
    completed_at   = EXCLUDED.completed_at,
    updated_at     = now()`,
		row.ID, row.Status, string(row.Inputs), row.StatusMessage, row.SearchTitle,
		string(row.Results), row.RawOutput, row.Error, string(row.Metadata),
		row.CreatedAt, row.CompletedAt,
	)
	return classify("postgres.put", err)
}

// Get returns the record or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (*job.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+columns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, classify("postgres.get", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, classify("postgres.get", err)
}

// ListByStatus returns records in the given statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...job.Status) ([]*job.Record, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+columns+` FROM jobs WHERE status = ANY($1) ORDER BY created_at`, names)
	if err != nil {
		return nil, classify("postgres.list", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	return recs, classify("postgres.list", err)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return classify("postgres.ping", s.pool.Ping(ctx))
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.CollectableRow) (*job.Record, error) {
	var r sqlcodec.Row
	if err := row.Scan(
		&r.ID, &r.Status, &r.Inputs, &r.StatusMessage, &r.SearchTitle, &r.Results,
		&r.RawOutput, &r.Error, &r.Metadata, &r.CreatedAt, &r.CompletedAt,
	); err != nil {
		return nil, err
	}
	return sqlcodec.Decode(&r)
}

var (
	_ job.Store  = (*Store)(nil)
	_ job.Lister = (*Store)(nil)
)
