package account

import (
	"context"
)

// Repository defines the interface for Account persistence.
//
// Implementations use the transaction scope found in ctx and fall back to
// an autonomous connection when there is none. They never begin, commit or
// roll back on their own.
type Repository interface {
	// FindByID returns apperror NotFound when the account does not exist.
	FindByID(ctx context.Context, id string) (*Account, error)

	// Update sets the balance. Returns NotFound when no row matched and a
	// persistence error on backend faults.
	Update(ctx context.Context, id string, balance int64) error

	// Delete removes the account. Deleting a missing account is not an error.
	Delete(ctx context.Context, id string) error

	// Save inserts a new account. Returns a duplicate error if the id is taken.
	Save(ctx context.Context, acc *Account) error

	// List returns all accounts ordered by id.
	List(ctx context.Context) ([]*Account, error)
}
