package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgertx/internal/core/apperror"
)

func TestIdempotencyStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(10 * time.Minute)
	store.now = func() time.Time { return clock }

	replay, err := store.AcquireKey(ctx, "k1", "POST /api/v1/transfers", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay)

	// Same key while the first request is still running
	_, err = store.AcquireKey(ctx, "k1", "POST /api/v1/transfers", "h1")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	require.NoError(t, store.CompleteKey(ctx, "k1", 201, "application/json", []byte(`{"id":"t1"}`)))

	replay, err = store.AcquireKey(ctx, "k1", "POST /api/v1/transfers", "h1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.Equal(t, `{"id":"t1"}`, string(replay.Body))

	// Same key, different body
	_, err = store.AcquireKey(ctx, "k1", "POST /api/v1/transfers", "h2")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))

	clock = clock.Add(11 * time.Minute)
	n, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIdempotencyStore_ReclaimStale(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(time.Hour)
	store.now = func() time.Time { return clock }

	_, err := store.AcquireKey(ctx, "k1", "op", "h")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	replay, err := store.AcquireKey(ctx, "k1", "op", "h")
	require.NoError(t, err)
	assert.Nil(t, replay)
}
