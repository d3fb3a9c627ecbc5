package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/core/tx"
	"ledgertx/pkg/logger"
)

var tracer = otel.Tracer("ledgertx/tx")

// Compile-time checks
var (
	_ tx.Manager  = (*TxManager)(nil)
	_ tx.Beginner = (*TxManager)(nil)
)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running queries (0 disables)
	StatementTimeout time.Duration

	// UseSavepoint creates savepoint for nested transactions
	UseSavepoint bool
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
		UseSavepoint:     false,
	}
}

// SerializableTxOptions for critical operations requiring serializable isolation.
func SerializableTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.IsolationLevel = pgx.Serializable
	return opts
}

// TxManager opens scopes on connections from a ConnProvider and supports:
// - Nested transactions (with optional savepoints)
// - Statement timeout protection
// - Rollback and release on error and on panic
// - Distributed tracing integration
type TxManager struct {
	provider ConnProvider
	defaults TxOptions
}

// NewTxManager creates a transaction manager using DefaultTxOptions.
func NewTxManager(provider ConnProvider) *TxManager {
	return NewTxManagerWithOptions(provider, DefaultTxOptions())
}

// NewTxManagerWithOptions creates a transaction manager with custom defaults.
func NewTxManagerWithOptions(provider ConnProvider, defaults TxOptions) *TxManager {
	return &TxManager{provider: provider, defaults: defaults}
}

// Begin opens an explicit scope with the manager's default options.
// The caller owns the scope and must Release it.
func (m *TxManager) Begin(ctx context.Context) (tx.Scope, error) {
	scope, err := m.BeginWithOptions(ctx, m.defaults)
	if err != nil {
		return nil, err
	}
	return scope, nil
}

// BeginWithOptions acquires a connection and starts a transaction on it.
// On any failure the connection is released before returning.
func (m *TxManager) BeginWithOptions(ctx context.Context, opts TxOptions) (*Scope, error) {
	conn, err := m.provider.AcquireConn(ctx)
	if err != nil {
		return nil, apperror.NewPersistence("acquire connection", err)
	}

	pgxTx, err := conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		conn.Release()
		return nil, apperror.NewPersistence("begin transaction", err)
	}

	scope := &Scope{conn: conn, tx: pgxTx, autoCommitDisabled: true}

	// Set statement timeout for protection against runaway queries
	if opts.StatementTimeout > 0 {
		_, err = pgxTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			scope.Release()
			return nil, apperror.NewPersistence("set statement_timeout", err)
		}
	}

	return scope, nil
}

// RunInTransaction executes fn within a transaction.
// If a transaction already exists in ctx, it will be reused (nested transaction).
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.defaults, fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
		))
	defer span.End()

	if existing := m.GetTx(ctx); existing != nil {
		return m.handleNestedTransaction(ctx, existing, opts, fn)
	}

	scope, err := m.BeginWithOptions(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return err
	}
	defer scope.Release()

	if err := m.executeWithRollbackProtection(ctx, scope, fn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		span.SetAttributes(attribute.String("tx.outcome", "rollback"))
		return err
	}

	if err := scope.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return err
	}

	span.SetAttributes(attribute.String("tx.outcome", "commit"))
	return nil
}

// handleNestedTransaction manages nested transaction (reuses or creates savepoint).
func (m *TxManager) handleNestedTransaction(ctx context.Context, existing *Scope, opts TxOptions, fn func(ctx context.Context) error) error {
	if !opts.UseSavepoint {
		return fn(ctx)
	}

	savepointName := fmt.Sprintf("sp_%d", time.Now().UnixNano())
	if _, err := existing.tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
		return apperror.NewPersistence("create savepoint", err)
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := existing.tx.Exec(context.Background(), "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", savepointName, "error", rbErr)
		}
		return err
	}

	if _, err := existing.tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return apperror.NewPersistence("release savepoint", err)
	}

	return nil
}

// executeWithRollbackProtection runs fn and rolls the scope back when fn
// fails or panics. A panic is re-raised after the rollback.
func (m *TxManager) executeWithRollbackProtection(ctx context.Context, scope *Scope, fn func(ctx context.Context) error) error {
	defer func() {
		if p := recover(); p != nil {
			m.rollback(ctx, scope, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(scope.Context(ctx)); err != nil {
		m.rollback(ctx, scope, err)
		return err
	}
	return nil
}

// rollback uses a background context so it completes even if ctx was cancelled.
func (m *TxManager) rollback(ctx context.Context, scope *Scope, cause error) {
	if rbErr := scope.Rollback(context.Background()); rbErr != nil {
		logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", cause)
	}
}

// GetTx returns the current scope from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Scope {
	return ScopeFromContext(ctx)
}

// GetQuerier returns the scope's transaction if ctx carries one, otherwise
// the provider. Repositories work both inside and outside transactions.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if scope := m.GetTx(ctx); scope != nil {
		return scope.Querier()
	}
	return m.provider
}

// ReadOnly executes fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := m.defaults
	opts.AccessMode = pgx.ReadOnly
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}

// ScopeFromContext returns the scope stored by Scope.Context, or nil.
func ScopeFromContext(ctx context.Context) *Scope {
	if s, ok := ctx.Value(txKey{}).(*Scope); ok {
		return s
	}
	return nil
}
