package transfer_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/domain/account"
	"ledgertx/internal/domain/transfer"
	"ledgertx/internal/infrastructure/storage/memory"
)

const (
	memberA  = "memberA"
	memberB  = "memberB"
	memberEX = "ex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T, ids ...string) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	for _, id := range ids {
		require.NoError(t, store.Save(context.Background(), account.NewAccount(id, 10000)))
	}
	// after-each cleanup, as the fixtures are shared by id
	t.Cleanup(func() {
		for _, id := range []string{memberA, memberB, memberEX} {
			require.NoError(t, store.Delete(context.Background(), id))
		}
	})
	return store
}

func balance(t *testing.T, repo account.Repository, id string) int64 {
	t.Helper()
	acc, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []transfer.Outcome
}

func (o *recordingObserver) TransferFinished(ctx context.Context, req transfer.Request, outcome transfer.Outcome, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestTransfer_Success(t *testing.T) {
	store := newStore(t, memberA, memberB)
	obs := &recordingObserver{}
	svc := transfer.NewService(store, store,
		transfer.WithBeforeCredit(transfer.ForbidDestination(memberEX)),
		transfer.WithObserver(obs))

	result, err := svc.Transfer(context.Background(), memberA, memberB, 2000)
	require.NoError(t, err)

	assert.Equal(t, int64(8000), balance(t, store, memberA))
	assert.Equal(t, int64(12000), balance(t, store, memberB))
	assert.Equal(t, int64(20000), store.Total())

	assert.Equal(t, int64(8000), result.FromBalance)
	assert.Equal(t, int64(12000), result.ToBalance)
	assert.EqualValues(t, 7, result.ID.Version())
	assert.False(t, result.CreatedAt.IsZero())

	assert.Equal(t, memory.Stats{Acquired: 1, Released: 1, Commits: 1}, store.Stats())
	assert.Equal(t, []transfer.Outcome{transfer.OutcomeCommitted}, obs.outcomes)
}

func TestTransfer_ForbiddenDestinationRollsBackDebit(t *testing.T) {
	store := newStore(t, memberA, memberEX)
	obs := &recordingObserver{}
	svc := transfer.NewService(store, store,
		transfer.WithBeforeCredit(transfer.ForbidDestination(memberEX)),
		transfer.WithObserver(obs))

	result, err := svc.Transfer(context.Background(), memberA, memberEX, 2000)
	assert.Nil(t, result)
	assert.True(t, apperror.IsIllegalState(err), "got %v", err)

	assert.Equal(t, int64(10000), balance(t, store, memberA))
	assert.Equal(t, int64(10000), balance(t, store, memberEX))
	assert.Equal(t, memory.Stats{Acquired: 1, Released: 1, Rollbacks: 1}, store.Stats())
	assert.Equal(t, []transfer.Outcome{transfer.OutcomeRolledBack}, obs.outcomes)
}

func TestTransfer_RuleHook(t *testing.T) {
	hook, err := transfer.CompileRule(`to == "ex"`)
	require.NoError(t, err)

	store := newStore(t, memberA, memberB, memberEX)
	svc := transfer.NewService(store, store, transfer.WithBeforeCredit(hook))

	_, err = svc.Transfer(context.Background(), memberA, memberEX, 2000)
	assert.True(t, apperror.IsIllegalState(err))

	_, err = svc.Transfer(context.Background(), memberA, memberB, 2000)
	require.NoError(t, err)

	assert.Equal(t, int64(8000), balance(t, store, memberA))
	assert.Equal(t, int64(12000), balance(t, store, memberB))
	assert.Equal(t, int64(10000), balance(t, store, memberEX))
}

func TestTransfer_PlainHookErrorBecomesIllegalState(t *testing.T) {
	store := newStore(t, memberA, memberB)
	cause := errors.New("downstream said no")
	svc := transfer.NewService(store, store, transfer.WithBeforeCredit(
		func(ctx context.Context, req transfer.Request) error { return cause },
	))

	_, err := svc.Transfer(context.Background(), memberA, memberB, 2000)
	assert.True(t, apperror.IsIllegalState(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int64(20000), store.Total())
}

func TestTransfer_NotFound(t *testing.T) {
	t.Run("source", func(t *testing.T) {
		store := newStore(t, memberB)
		svc := transfer.NewService(store, store)

		_, err := svc.Transfer(context.Background(), "ghost", memberB, 2000)
		assert.True(t, apperror.IsNotFound(err))
		assert.Equal(t, int64(10000), balance(t, store, memberB))
		assert.Equal(t, 1, store.Stats().Released)
	})

	t.Run("destination", func(t *testing.T) {
		store := newStore(t, memberA)
		svc := transfer.NewService(store, store)

		_, err := svc.Transfer(context.Background(), memberA, "ghost", 2000)
		assert.True(t, apperror.IsNotFound(err))
		assert.Equal(t, int64(10000), balance(t, store, memberA), "debit must be rolled back")
		assert.Equal(t, 1, store.Stats().Released)
	})
}

func TestTransfer_PersistenceFaultOnCredit(t *testing.T) {
	store := newStore(t, memberA, memberB)
	store.SetFault(func(op, id string) error {
		if op == "update" && id == memberB {
			return errors.New("disk full")
		}
		return nil
	})
	svc := transfer.NewService(store, store)

	_, err := svc.Transfer(context.Background(), memberA, memberB, 2000)
	store.SetFault(nil)

	assert.True(t, apperror.IsPersistence(err))
	assert.Equal(t, int64(10000), balance(t, store, memberA))
	assert.Equal(t, int64(10000), balance(t, store, memberB))
	assert.Equal(t, memory.Stats{Acquired: 1, Released: 1, Rollbacks: 1}, store.Stats())
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	store := newStore(t, memberA, memberB)

	_, err := transfer.NewService(store, store).Transfer(context.Background(), memberA, memberB, 10001)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
	assert.Equal(t, int64(10000), balance(t, store, memberA))

	result, err := transfer.NewService(store, store, transfer.WithOverdraft()).
		Transfer(context.Background(), memberA, memberB, 10001)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), result.FromBalance)
	assert.Equal(t, int64(20000), store.Total())
}

func TestTransfer_BalanceLimits(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		balance     int64
		wantMessage string
	}{
		{"debit underflow", memberA, math.MinInt64 + 500, "debit would underflow balance"},
		{"credit overflow", memberB, math.MaxInt64 - 500, "credit would overflow balance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, memberA, memberB)
			require.NoError(t, store.Update(context.Background(), tt.id, tt.balance))
			before := map[string]int64{
				memberA: balance(t, store, memberA),
				memberB: balance(t, store, memberB),
			}

			svc := transfer.NewService(store, store, transfer.WithOverdraft())
			_, err := svc.Transfer(context.Background(), memberA, memberB, 1000)

			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.wantMessage, appErr.Message)
			assert.Equal(t, before[memberA], balance(t, store, memberA))
			assert.Equal(t, before[memberB], balance(t, store, memberB))
			assert.Equal(t, memory.Stats{Acquired: 1, Released: 1, Rollbacks: 1}, store.Stats())
		})
	}
}

func TestTransfer_InvalidRequestStillReleasesOnce(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		amount   int64
	}{
		{"zero amount", memberA, memberB, 0},
		{"negative amount", memberA, memberB, -5},
		{"same account", memberA, memberA, 10},
		{"blank source", "", memberB, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, memberA, memberB)
			svc := transfer.NewService(store, store)

			_, err := svc.Transfer(context.Background(), tt.from, tt.to, tt.amount)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
			assert.Equal(t, memory.Stats{Acquired: 1, Released: 1, Rollbacks: 1}, store.Stats())
		})
	}
}

// Concurrent transfers over disjoint account pairs each own their scope.
func TestTransfer_ConcurrentDisjointPairs(t *testing.T) {
	const pairs = 16

	store := memory.NewStore()
	ctx := context.Background()
	for i := 0; i < pairs; i++ {
		require.NoError(t, store.Save(ctx, account.NewAccount(fmt.Sprintf("src-%02d", i), 10000)))
		require.NoError(t, store.Save(ctx, account.NewAccount(fmt.Sprintf("dst-%02d", i), 10000)))
	}
	svc := transfer.NewService(store, store)

	var wg sync.WaitGroup
	errs := make(chan error, pairs)
	for i := 0; i < pairs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Transfer(ctx, fmt.Sprintf("src-%02d", i), fmt.Sprintf("dst-%02d", i), int64(100*(i+1)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(pairs*20000), store.Total())
	assert.Equal(t, pairs, store.Stats().Released)
	assert.Equal(t, int64(10000-1600), balance(t, store, "src-15"))
}
