package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/studio-booking/pkg/database"
	"github.com/prohmpiriya/studio-booking/pkg/retry"
)

var errNoTransaction = errors.New("row lock requested outside a transaction")

type txKey struct{}

// querier is the part of pgxpool.Pool and pgx.Tx the repositories use
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn returns the transaction carried by ctx, or the pool
func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// validUUID reports whether id can be bound to a UUID column.
// Malformed ids are rejected before the query so they never abort the transaction.
func validUUID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

// PostgresTransactor implements Transactor with read-committed pgx transactions
type PostgresTransactor struct {
	pool *pgxpool.Pool
}

// NewPostgresTransactor creates a new PostgresTransactor
func NewPostgresTransactor(pool *pgxpool.Pool) *PostgresTransactor {
	return &PostgresTransactor{pool: pool}
}

// WithTx runs fn in a transaction and commits when fn returns nil.
// Serialization failures, deadlocks and lock timeouts come back marked retryable.
func (t *PostgresTransactor) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return markConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return markConflict(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func markConflict(err error) error {
	if database.IsTransactionConflict(err) && !retry.IsRetryable(err) {
		return retry.Retryable(err)
	}
	return err
}

// nullString converts empty strings to SQL NULL
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Transactor = (*PostgresTransactor)(nil)
