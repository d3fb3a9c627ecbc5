// Package idempotency defines the key store behind the X-Idempotency-Key
// header: a replayed request gets the stored response instead of running
// again.
package idempotency

import (
	"context"
	"time"
)

// Status represents the state of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may go without completion before
// another request can reclaim it.
const StaleAfter = time.Minute

// Record stores the result of an idempotent operation.
type Record struct {
	Key         string    `db:"idempotency_key"`
	Operation   string    `db:"operation"`
	Status      Status    `db:"status"`
	RequestHash string    `db:"request_hash"` // SHA256 of request body
	Response    []byte    `db:"response"`
	StatusCode  int       `db:"response_status"`
	ContentType string    `db:"response_content_type"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// Replay is the cached HTTP response for replay.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store manages idempotency keys.
type Store interface {
	// AcquireKey returns (nil, nil) when the caller now owns key, a Replay
	// when the operation already finished, and an error when key is held by
	// a request still in flight or was used for a different request.
	AcquireKey(ctx context.Context, key, operation, requestHash string) (*Replay, error)

	// CompleteKey stores a successful response for key.
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error

	// FailKey stores a failed response for key.
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error

	// CleanupExpired removes expired keys and reports how many were removed.
	CleanupExpired(ctx context.Context) (int64, error)
}

// ReplayOf builds the Replay for a finished record.
func ReplayOf(r *Record) *Replay {
	status := r.StatusCode
	if status == 0 {
		status = 200
	}
	ct := r.ContentType
	if ct == "" {
		ct = "application/json"
	}
	return &Replay{StatusCode: status, ContentType: ct, Body: r.Response}
}
