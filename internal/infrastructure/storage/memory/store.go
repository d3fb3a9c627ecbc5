// Package memory provides an in-process backend implementing the same
// transaction and account contracts as the postgres package.
//
// Every scope writes into a private overlay. Commit publishes the overlay,
// rollback drops it. Committed rows are last-writer-wins; there is no row
// locking, which matches read committed without SELECT ... FOR UPDATE.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/core/tx"
	"ledgertx/internal/domain/account"
)

const entityName = "account"

// ErrScopeEnded is returned by Commit or Rollback on a scope that already ended.
var ErrScopeEnded = errors.New("transaction scope already ended")

// Compile-time checks
var (
	_ tx.Manager         = (*Store)(nil)
	_ tx.Beginner        = (*Store)(nil)
	_ account.Repository = (*Store)(nil)
)

// FaultFunc lets tests fail a storage operation. op is one of
// "find", "update", "delete", "save", "list", "commit".
type FaultFunc func(op, id string) error

// Stats counts scope lifecycle events.
type Stats struct {
	Acquired  int
	Released  int
	Commits   int
	Rollbacks int
}

// Store is a mutex-guarded account table with transaction scopes.
type Store struct {
	mu       sync.Mutex
	accounts map[string]int64
	stats    Stats
	fault    FaultFunc
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{accounts: make(map[string]int64)}
}

// SetFault installs a fault hook; nil removes it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Stats returns a snapshot of the lifecycle counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) injected(op, id string) error {
	s.mu.Lock()
	fn := s.fault
	s.mu.Unlock()

	if fn == nil {
		return nil
	}
	if err := fn(op, id); err != nil {
		return apperror.NewPersistence(op+" account", err)
	}
	return nil
}

// --- transaction scope ---

type scopeKey struct{}

// Scope is a unit of work over the store. A Scope belongs to a single goroutine.
type Scope struct {
	store *Store
	// writes holds pending balances; a nil value marks a pending delete.
	writes   map[string]*int64
	ended    bool
	released bool
}

var _ tx.Scope = (*Scope)(nil)

// Begin opens a scope. The caller must Release it.
func (s *Store) Begin(ctx context.Context) (tx.Scope, error) {
	return s.begin(), nil
}

func (s *Store) begin() *Scope {
	s.mu.Lock()
	s.stats.Acquired++
	s.mu.Unlock()

	return &Scope{store: s, writes: make(map[string]*int64)}
}

// Context returns ctx carrying this scope.
func (sc *Scope) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

// Commit publishes the scope's writes.
func (sc *Scope) Commit(ctx context.Context) error {
	if sc.ended {
		return ErrScopeEnded
	}
	sc.ended = true

	if err := sc.store.injected("commit", ""); err != nil {
		sc.store.mu.Lock()
		sc.store.stats.Rollbacks++
		sc.store.mu.Unlock()
		return err
	}

	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()
	for id, balance := range sc.writes {
		if balance == nil {
			delete(sc.store.accounts, id)
			continue
		}
		sc.store.accounts[id] = *balance
	}
	sc.store.stats.Commits++
	return nil
}

// Rollback discards the scope's writes.
func (sc *Scope) Rollback(ctx context.Context) error {
	if sc.ended {
		return ErrScopeEnded
	}
	sc.ended = true
	sc.writes = nil

	sc.store.mu.Lock()
	sc.store.stats.Rollbacks++
	sc.store.mu.Unlock()
	return nil
}

// Release ends the scope. Only the first call has any effect.
func (sc *Scope) Release() {
	if sc.released {
		return
	}
	sc.released = true

	if !sc.ended {
		_ = sc.Rollback(context.Background())
	}

	sc.store.mu.Lock()
	sc.store.stats.Released++
	sc.store.mu.Unlock()
}

func scopeFrom(ctx context.Context) *Scope {
	if sc, ok := ctx.Value(scopeKey{}).(*Scope); ok {
		return sc
	}
	return nil
}

// activeScope returns the scope carried by ctx, or nil for autonomous calls.
// A scope that already committed or rolled back fails the call instead of
// letting it fall through to the committed table.
func activeScope(ctx context.Context, op string) (*Scope, error) {
	sc := scopeFrom(ctx)
	if sc != nil && sc.ended {
		return nil, apperror.NewPersistence(op+" account", ErrScopeEnded)
	}
	return sc, nil
}

// RunInTransaction executes fn within a scope; nested calls reuse it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if scopeFrom(ctx) != nil {
		return fn(ctx)
	}

	sc := s.begin()
	defer sc.Release()

	defer func() {
		if p := recover(); p != nil {
			_ = sc.Rollback(context.Background())
			panic(p)
		}
	}()

	if err := fn(sc.Context(ctx)); err != nil {
		_ = sc.Rollback(context.Background())
		return err
	}
	return sc.Commit(ctx)
}

// --- account.Repository ---

// lookup reads through the scope overlay; callers hold no lock.
func (s *Store) lookup(ctx context.Context, op, id string) (int64, bool, error) {
	sc, err := activeScope(ctx, op)
	if err != nil {
		return 0, false, err
	}
	if sc != nil {
		if pending, ok := sc.writes[id]; ok {
			if pending == nil {
				return 0, false, nil
			}
			return *pending, true, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.accounts[id]
	return balance, ok, nil
}

// write records balance in the scope overlay, or commits it directly when
// ctx carries no scope. A nil balance deletes.
func (s *Store) write(ctx context.Context, op, id string, balance *int64) error {
	sc, err := activeScope(ctx, op)
	if err != nil {
		return err
	}
	if sc != nil {
		sc.writes[id] = balance
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if balance == nil {
		delete(s.accounts, id)
		return nil
	}
	s.accounts[id] = *balance
	return nil
}

// FindByID implements account.Repository.
func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	if err := s.injected("find", id); err != nil {
		return nil, err
	}
	balance, ok, err := s.lookup(ctx, "find", id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewNotFound(entityName, id)
	}
	return account.NewAccount(id, balance), nil
}

// Update implements account.Repository.
func (s *Store) Update(ctx context.Context, id string, balance int64) error {
	if err := s.injected("update", id); err != nil {
		return err
	}
	_, ok, err := s.lookup(ctx, "update", id)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewNotFound(entityName, id)
	}
	return s.write(ctx, "update", id, &balance)
}

// Delete implements account.Repository.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.injected("delete", id); err != nil {
		return err
	}
	return s.write(ctx, "delete", id, nil)
}

// Save implements account.Repository.
func (s *Store) Save(ctx context.Context, acc *account.Account) error {
	if err := s.injected("save", acc.ID); err != nil {
		return err
	}
	_, ok, err := s.lookup(ctx, "save", acc.ID)
	if err != nil {
		return err
	}
	if ok {
		return apperror.NewDuplicate(entityName, "id", acc.ID)
	}
	balance := acc.Balance
	return s.write(ctx, "save", acc.ID, &balance)
}

// List implements account.Repository.
func (s *Store) List(ctx context.Context) ([]*account.Account, error) {
	if err := s.injected("list", ""); err != nil {
		return nil, err
	}
	sc, err := activeScope(ctx, "list")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	merged := make(map[string]int64, len(s.accounts))
	for id, balance := range s.accounts {
		merged[id] = balance
	}
	s.mu.Unlock()

	if sc != nil {
		for id, pending := range sc.writes {
			if pending == nil {
				delete(merged, id)
				continue
			}
			merged[id] = *pending
		}
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	accounts := make([]*account.Account, 0, len(ids))
	for _, id := range ids {
		accounts = append(accounts, account.NewAccount(id, merged[id]))
	}
	return accounts, nil
}

// Total returns the sum of all committed balances.
func (s *Store) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, balance := range s.accounts {
		total += balance
	}
	return total
}
