// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"ledgertx/internal/infrastructure/storage/postgres"
)

// MockProvider is a postgres.ConnProvider backed by pgxmock.
// Every acquired connection shares the mock's expectations; Acquired and
// Released count checkouts and returns.
type MockProvider struct {
	pgxmock.PgxPoolIface

	acquired atomic.Int64
	released atomic.Int64
}

var _ postgres.ConnProvider = (*MockProvider)(nil)

// NewMockProvider creates a provider and closes the mock at test cleanup.
func NewMockProvider(t testing.TB) *MockProvider {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	return &MockProvider{PgxPoolIface: mock}
}

// AcquireConn implements postgres.ConnProvider.
func (p *MockProvider) AcquireConn(ctx context.Context) (postgres.Conn, error) {
	p.acquired.Add(1)
	return &mockConn{PgxPoolIface: p.PgxPoolIface, owner: p}, nil
}

// Acquired returns how many connections were checked out.
func (p *MockProvider) Acquired() int64 { return p.acquired.Load() }

// Released returns how many connections were returned.
func (p *MockProvider) Released() int64 { return p.released.Load() }

type mockConn struct {
	pgxmock.PgxPoolIface
	owner *MockProvider
}

func (c *mockConn) Release() {
	c.owner.released.Add(1)
}
