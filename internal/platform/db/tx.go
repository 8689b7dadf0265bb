package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools, connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// From resolves the querier for ctx: an open transaction first, then the
// tenant connection, then the pool itself.
func From(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// TxFromContext returns the transaction started by WithTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the tenant connection held by ctx. Callers
// must Commit or Rollback the returned tx.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, errors.New("no database connection in context")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// TxRunner runs fn atomically. Services depend on it instead of on pgx so
// they can be tested without a database.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const commitHooksKey contextKey = "db_commit_hooks"

type commitHooks struct {
	fns []func()
}

// AfterCommit runs fn once the outermost InTx enclosing ctx has committed.
// It is dropped if that transaction fails. Outside a transaction fn runs
// immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(commitHooksKey).(*commitHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}

// withCommitHooks reports whether ctx already belongs to an outer InTx;
// otherwise it returns a ctx carrying a fresh hook list.
func withCommitHooks(ctx context.Context) (context.Context, *commitHooks, bool) {
	if _, ok := ctx.Value(commitHooksKey).(*commitHooks); ok {
		return ctx, nil, true
	}
	h := &commitHooks{}
	return context.WithValue(ctx, commitHooksKey, h), h, false
}

func (h *commitHooks) run() {
	for _, fn := range h.fns {
		fn()
	}
}

// PgTxRunner runs functions inside a transaction on the tenant connection.
// A transaction already present in ctx is reused.
type PgTxRunner struct{}

func (PgTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	txCtx, tx, err := WithTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	txCtx, hooks, _ := withCommitHooks(txCtx)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	hooks.run()
	return nil
}

// NoTx runs fn directly. Used by unit tests and in-memory repositories.
// AfterCommit hooks still wait for the outermost call to succeed.
type NoTx struct{}

func (NoTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, hooks, nested := withCommitHooks(ctx)
	if nested {
		return fn(ctx)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	hooks.run()
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNotFound reports whether err means a row lookup found nothing.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsForeignKeyViolation reports whether err is a Postgres foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
