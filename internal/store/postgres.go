// Package store persists import jobs, package documentation and the search
// index in Postgres.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gren-lang/package-registry/internal/backoff"
	"github.com/gren-lang/package-registry/internal/clock"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool    *pgxpool.Pool
	clock   clock.Clock
	retries backoff.Table
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for every stored timestamp.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithRetryTable replaces the default retry schedule.
func WithRetryTable(t backoff.Table) Option {
	return func(s *Store) { s.retries = t }
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{
		pool:    pool,
		clock:   clock.Real{},
		retries: backoff.DefaultTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// RetryTable exposes the schedule ScheduleRetry applies.
func (s *Store) RetryTable() backoff.Table {
	return s.retries
}

// inTx runs fn inside a transaction, committing only if fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
