package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/core/idempotency"
)

var _ idempotency.Store = (*IdempotencyStore)(nil)

const idempotencyTable = "sys_idempotency"

var recordColumns = ExtractDBColumns[idempotency.Record]()

// acquireConflict takes over a key whose record expired but has not been
// cleaned up yet. A live record is left alone and the insert affects no rows.
const acquireConflict = `ON CONFLICT (idempotency_key) DO UPDATE SET
	operation = EXCLUDED.operation,
	status = EXCLUDED.status,
	request_hash = EXCLUDED.request_hash,
	response = NULL,
	response_status = 0,
	response_content_type = '',
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at,
	expires_at = EXCLUDED.expires_at
	WHERE sys_idempotency.expires_at < EXCLUDED.created_at`

// IdempotencyStore keeps idempotency keys in sys_idempotency.
// Statements run on the scope in ctx when there is one, otherwise autonomously.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
	now       func() time.Time
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		txManager: txManager,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *IdempotencyStore) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// AcquireKey implements idempotency.Store.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, operation, requestHash string) (*idempotency.Replay, error) {
	now := s.now()
	q := s.txManager.GetQuerier(ctx)

	sql, args, err := s.builder().
		Insert(idempotencyTable).
		Columns("idempotency_key", "operation", "status", "request_hash", "created_at", "updated_at", "expires_at").
		Values(key, operation, string(idempotency.StatusPending), requestHash, now, now, now.Add(s.ttl)).
		Suffix(acquireConflict).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewPersistence("acquire idempotency key", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	sql, args, err = s.builder().
		Select(recordColumns...).
		From(idempotencyTable).
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var record idempotency.Record
	if err := pgxscan.Get(ctx, q, &record, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			// Expired and cleaned up between the two statements
			return nil, apperror.NewIdempotencyConflict(key)
		}
		return nil, apperror.NewPersistence("load idempotency key", err)
	}

	// Key exists: protect against reuse for a different request.
	if record.Operation != operation || record.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", operation)
	}

	switch record.Status {
	case idempotency.StatusSuccess, idempotency.StatusFailed:
		return idempotency.ReplayOf(&record), nil

	case idempotency.StatusPending:
		if now.Sub(record.UpdatedAt) <= idempotency.StaleAfter {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		// Reclaim stale key; another request may win the race
		sql, args, err = s.builder().
			Update(idempotencyTable).
			Set("updated_at", now).
			Where(squirrel.Eq{"idempotency_key": key, "status": string(idempotency.StatusPending)}).
			Where(squirrel.Lt{"updated_at": now.Add(-idempotency.StaleAfter)}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build reclaim: %w", err)
		}
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return nil, apperror.NewPersistence("reclaim idempotency key", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		return nil, nil
	}

	return nil, errors.New("unknown idempotency status " + string(record.Status))
}

// CompleteKey implements idempotency.Store.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(ctx, key, idempotency.StatusSuccess, statusCode, contentType, body)
}

// FailKey implements idempotency.Store.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(ctx, key, idempotency.StatusFailed, statusCode, contentType, body)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status idempotency.Status, statusCode int, contentType string, body []byte) error {
	sql, args, err := s.builder().
		Update(idempotencyTable).
		Set("status", string(status)).
		Set("response", body).
		Set("response_status", statusCode).
		Set("response_content_type", contentType).
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence("finish idempotency key", err)
	}
	return nil
}

// CleanupExpired implements idempotency.Store.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	sql, args, err := s.builder().
		Delete(idempotencyTable).
		Where(squirrel.Lt{"expires_at": s.now()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewPersistence("cleanup idempotency keys", err)
	}
	return tag.RowsAffected(), nil
}
