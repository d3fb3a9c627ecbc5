// Package tx provides transaction management abstractions.
// Domain code depends on these interfaces; the implementations live in
// infrastructure/storage (postgres for production, memory for tests and demos).
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
//
// Repositories never decide commit or rollback boundaries. They look up the
// active scope in ctx and use its connection, which is how several repository
// calls share one transaction.
type Manager interface {
	// RunInTransaction executes fn within a transaction scope.
	// If fn returns an error or panics, the scope is rolled back.
	// If fn succeeds, the scope is committed.
	// The scope's connection is released exactly once on every path.
	//
	// Nested calls reuse the existing scope from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Scope is one unit of work bound to a single acquired connection.
//
// A Scope ends with Commit or Rollback. Release returns the connection to its
// provider; it is safe to call more than once and rolls back a scope that was
// never ended. The usual shape is:
//
//	scope, err := beginner.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer scope.Release()
//	ctx = scope.Context(ctx)
//	...
//	return scope.Commit(ctx)
type Scope interface {
	// Context returns ctx carrying this scope, for repositories to pick up.
	Context(ctx context.Context) context.Context
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Release()
}

// Beginner opens explicit scopes for callers that demarcate transactions by hand.
type Beginner interface {
	Begin(ctx context.Context) (Scope, error)
}
