package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/core/tx"
	"ledgertx/pkg/logger"
)

// ErrScopeEnded is returned by Commit or Rollback on a scope that already ended.
var ErrScopeEnded = errors.New("transaction scope already ended")

var _ tx.Scope = (*Scope)(nil)

// txKey is the context key for the active scope.
type txKey struct{}

// Scope is a transaction bound to one connection checked out of a ConnProvider.
// A Scope belongs to a single goroutine.
type Scope struct {
	conn Conn
	tx   pgx.Tx

	// autoCommitDisabled is set once BEGIN succeeded on conn.
	autoCommitDisabled bool

	ended    bool
	released bool
}

// Context returns ctx carrying this scope.
func (s *Scope) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, s)
}

// Querier returns the transaction for repository statements.
func (s *Scope) Querier() Querier {
	return s.tx
}

// AutoCommitDisabled reports whether the scope's connection is inside BEGIN.
func (s *Scope) AutoCommitDisabled() bool {
	return s.autoCommitDisabled && !s.ended
}

// Commit durably persists every statement run through the scope.
// A failed commit still ends the scope; the server has rolled it back.
func (s *Scope) Commit(ctx context.Context) error {
	if s.ended {
		return ErrScopeEnded
	}
	s.ended = true

	if err := s.tx.Commit(ctx); err != nil {
		return apperror.NewPersistence("commit transaction", err)
	}
	return nil
}

// Rollback discards every statement run through the scope.
func (s *Scope) Rollback(ctx context.Context) error {
	if s.ended {
		return ErrScopeEnded
	}
	s.ended = true

	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return apperror.NewPersistence("rollback transaction", err)
	}
	return nil
}

// Release returns the connection to its provider. Only the first call has
// any effect. A scope that never ended is rolled back first.
func (s *Scope) Release() {
	if s.released {
		return
	}
	s.released = true

	if !s.ended {
		if err := s.Rollback(context.Background()); err != nil {
			logger.Warn(context.Background(), "rollback on release failed", "error", err)
		}
	}
	s.conn.Release()
}
