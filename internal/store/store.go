// Package store wraps a pgx connection pool with the transactional and
// vector-column conveniences FeedEater's schema manager and collectors
// need (spec.md §4.2).
package store

import (
	"context"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store wraps a pooled pgx connection, OTel-instrumented the way every
// teacher service instruments its pool (otelpgx.NewTracer on the pgxpool
// config).
type Store struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// Open parses dsn, attaches an OTel tracer, and connects the pool.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	log.Info("store connected (otel-instrumented)")
	return &Store{Pool: pool, log: log}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() { s.Pool.Close() }

// Query runs a positional-parameter query against the pool.
func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	return rows, nil
}

// Exec runs a positional-parameter statement against the pool.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := s.Pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("store: exec: %w", err)
	}
	return nil
}

// Tx runs fn inside a transaction, committing on success and rolling back
// on any error or panic — the teacher's pool.Begin / defer tx.Rollback /
// tx.Commit pattern (discovery-service ScanPoller.syncFindings), wrapped
// so every caller gets the same guaranteed-release behavior.
func (s *Store) Tx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op if already committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}
