package postgres

import (
	"context"
	"fmt"
)

// schemaStatements bootstraps the account table and the idempotency key
// table used by the HTTP API.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS account (
		account_id VARCHAR(64) PRIMARY KEY,
		balance    BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sys_idempotency (
		idempotency_key       VARCHAR(255) PRIMARY KEY,
		operation             VARCHAR(255) NOT NULL,
		status                VARCHAR(16) NOT NULL,
		request_hash          CHAR(64) NOT NULL,
		response              BYTEA,
		response_status       INTEGER NOT NULL DEFAULT 0,
		response_content_type VARCHAR(255) NOT NULL DEFAULT '',
		created_at            TIMESTAMPTZ NOT NULL,
		updated_at            TIMESTAMPTZ NOT NULL,
		expires_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sys_idempotency_expires_at_idx ON sys_idempotency (expires_at)`,
}

// Migrate creates missing tables. It is idempotent.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
