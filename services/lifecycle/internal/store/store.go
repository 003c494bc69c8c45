// Package store is the Postgres persistence for the lifecycle service. Store works on
// the pool; txStore carries the same queries inside one transaction.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexuscrm/nexus/services/lifecycle/internal/implementation"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/scope"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/transition"
)

//go:embed schema.sql
var schemaSQL string

const pgLockNotAvailable = "55P03"

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txStore struct{ tx pgx.Tx }

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(t *txStore) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) InTransitionTx(ctx context.Context, fn func(tx transition.Tx) error) error {
	return s.withTx(ctx, func(t *txStore) error { return fn(t) })
}

func (s *Store) InScopeTx(ctx context.Context, fn func(tx scope.Tx) error) error {
	return s.withTx(ctx, func(t *txStore) error { return fn(t) })
}

func (s *Store) InImplementationTx(ctx context.Context, fn func(tx implementation.Tx) error) error {
	return s.withTx(ctx, func(t *txStore) error { return fn(t) })
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
