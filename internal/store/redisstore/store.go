// Package redisstore keeps job records in Redis. Each record is a JSON
// string key; per-status sets index unfinished jobs for recovery.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"scholarsource/internal/apperrors"
	"scholarsource/internal/config"
	"scholarsource/internal/job"
)

var allStatuses = []job.Status{job.StatusPending, job.StatusRunning, job.StatusCompleted, job.StatusFailed}

// Store implements job.Store and job.Lister.
type Store struct {
	client      redis.UniversalClient
	prefix      string
	terminalTTL time.Duration
	logger      *slog.Logger
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.KeyPrefix, cfg.TerminalTTL, logger), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, prefix string, terminalTTL time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:      client,
		prefix:      prefix,
		terminalTTL: terminalTTL,
		logger:      logger.With("component", "store", "driver", "redis"),
	}
}

func (s *Store) jobKey(id string) string { return s.prefix + "job:" + id }

func (s *Store) statusKey(st job.Status) string { return s.prefix + "status:" + string(st) }

// Put writes the record and moves its id into the set for its status in
// one MULTI/EXEC. Terminal records expire after the configured TTL.
func (s *Store) Put(ctx context.Context, rec *job.Record) error {
	if rec.ID == "" {
		return errors.New("redis put: record id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", rec.ID, err)
	}

	ttl := time.Duration(0)
	if rec.Status.IsTerminal() {
		ttl = s.terminalTTL
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.jobKey(rec.ID), data, ttl)
		for _, st := range allStatuses {
			if st != rec.Status {
				pipe.SRem(ctx, s.statusKey(st), rec.ID)
			}
		}
		// Terminal sets would grow without bound and nothing lists them.
		if !rec.Status.IsTerminal() {
			pipe.SAdd(ctx, s.statusKey(rec.Status), rec.ID)
		}
		return nil
	})
	return classify("redis.put", err)
}

// Get returns the record or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (*job.Record, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("redis.get", err)
	}

	var rec job.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &rec, nil
}

// ListByStatus returns unfinished records in the given statuses, oldest
// first. Terminal statuses are not indexed and yield nothing.
func (s *Store) ListByStatus(ctx context.Context, statuses ...job.Status) ([]*job.Record, error) {
	var out []*job.Record
	for _, st := range statuses {
		ids, err := s.client.SMembers(ctx, s.statusKey(st)).Result()
		if err != nil {
			return nil, classify("redis.list", err)
		}
		if len(ids) == 0 {
			continue
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.jobKey(id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, classify("redis.list", err)
		}

		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				// Index entry without a record: drop it.
				s.client.SRem(ctx, s.statusKey(st), ids[i])
				continue
			}
			var rec job.Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				s.logger.Warn("Skipping undecodable job", "job_id", ids[i], "error", err)
				continue
			}
			if rec.Status == st {
				out = append(out, &rec)
			}
		}
	}

	slices.SortFunc(out, func(a, b *job.Record) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return classify("redis.ping", s.client.Ping(ctx).Err())
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) {
		return apperrors.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var (
	_ job.Store  = (*Store)(nil)
	_ job.Lister = (*Store)(nil)
)
