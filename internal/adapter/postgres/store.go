package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/routegrid/routegrid/internal/port/database"
	"github.com/routegrid/routegrid/internal/routerlock"
)

// querier abstracts *pgxpool.Pool and pgx.Tx so every entity query runs
// unchanged in auto-commit mode and inside InRouterTx transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// queries implements database.Tx against a querier.
type queries struct {
	db querier
}

// Store implements database.Store using PostgreSQL.
type Store struct {
	queries
	pool  *pgxpool.Pool
	locks *routerlock.Locker
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		queries: queries{db: pool},
		pool:    pool,
		locks:   routerlock.New(),
	}
}

// InRouterTx runs fn inside one transaction while holding the router's
// configuration lock. The lock is taken before the transaction begins and
// released after commit or rollback, so binding and dispatch mutations for a
// router are strictly serialized.
func (s *Store) InRouterTx(ctx context.Context, routerRef string, fn func(ctx context.Context, tx database.Tx) error) error {
	unlock := s.locks.Lock(routerRef)
	defer unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(ctx, &queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
