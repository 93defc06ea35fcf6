package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

const contextKeyAfterCommit ContextKey = "tx_after_commit"

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

func (h *commitHooks) add(fn func()) {
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *commitHooks) run() {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// AfterCommit runs fn once the transaction bound to ctx commits. Hooks of a
// rolled back transaction are dropped. Without a transaction fn runs at once.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(contextKeyAfterCommit).(*commitHooks); ok {
		h.add(fn)
		return
	}
	fn()
}

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetTx retrieves transaction from context
func GetTx(ctx context.Context) (*sql.Tx, error) {
	tx, ok := ctx.Value(ContextKeyTransaction).(*sql.Tx)
	if !ok {
		return nil, errors.New("transaction not found in context")
	}
	return tx, nil
}

// Executor returns the transaction bound to ctx, or the database handle
func (d *Data) Executor(ctx context.Context) Executor {
	if tx, err := GetTx(ctx); err == nil {
		return tx
	}
	return d.db
}

// WithTx wraps function within transaction. A call made while a transaction
// is already bound to ctx joins it instead of opening a new one.
func (d *Data) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, err := GetTx(ctx); err == nil {
		return fn(ctx)
	}

	if d.isClosed() {
		return ErrClosed
	}
	if d.db == nil {
		return errors.New("database connection is nil")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	hooks := &commitHooks{}
	txCtx := context.WithValue(ctx, ContextKeyTransaction, tx)
	txCtx = context.WithValue(txCtx, contextKeyAfterCommit, hooks)

	if err = fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %w, rollback err: %v", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	hooks.run()
	return nil
}

// Args converts a typed slice into builder arguments, e.g. for IN predicates
func Args[T any](xs []T) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
