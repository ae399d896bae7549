// Package store persists the pipeline's files, registry, zone rows and
// findings in PostgreSQL.
//
// Queries runs against any core.DBTX so the same methods serve the pool and
// a transaction. Store adds the multi-statement operations that must commit
// atomically.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Queries wraps a pool or transaction.
type Queries struct {
	db core.DBTX
}

// New returns Queries bound to db.
func New(db core.DBTX) *Queries {
	return &Queries{db: db}
}

// Store owns the connection pool.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

// NewStore returns a Store whose read methods run on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn in a transaction. fn's error rolls the transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nextID returns the next identifier for table: the current maximum plus one.
// Callers run inside a transaction so the value is consistent with their insert.
func (q *Queries) nextID(ctx context.Context, table, column string) (int64, error) {
	sql := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s",
		pgx.Identifier{column}.Sanitize(), pgx.Identifier{table}.Sanitize())

	var id int64
	if err := q.db.QueryRow(ctx, sql).Scan(&id); err != nil {
		return 0, fmt.Errorf("next id for %s: %w", table, err)
	}
	return id, nil
}
