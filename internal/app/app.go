// Package app wires configuration into a storage backend and the transfer
// service. cmd/server and cmd/ledgerctl share it.
package app

import (
	"context"
	"fmt"

	"ledgertx/internal/config"
	"ledgertx/internal/core/idempotency"
	"ledgertx/internal/core/tx"
	"ledgertx/internal/domain/account"
	"ledgertx/internal/domain/transfer"
	"ledgertx/internal/infrastructure/storage/memory"
	"ledgertx/internal/infrastructure/storage/postgres"
	"ledgertx/internal/infrastructure/storage/postgres/account_repo"
	"ledgertx/pkg/logger"
)

// Store kinds accepted by Build.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// App is a wired backend plus the transfer service on top of it.
type App struct {
	Accounts account.Repository
	Tx       tx.Manager
	Transfer *transfer.Service

	// Idempotency is nil when http.idempotency_ttl is 0.
	Idempotency idempotency.Store

	// Pool is nil on the memory store.
	Pool *postgres.Pool
}

// Build opens the selected store and creates the transfer service.
// opts are applied after the ones derived from cfg.
func Build(ctx context.Context, cfg config.Config, store string, opts ...transfer.Option) (*App, error) {
	svcOpts, err := transferOptions(cfg.Transfer)
	if err != nil {
		return nil, err
	}
	svcOpts = append(svcOpts, opts...)

	a := &App{}
	switch store {
	case StoreMemory:
		mem := memory.NewStore()
		a.Accounts = mem
		a.Tx = mem
		if ttl := cfg.HTTP.IdempotencyTTL; ttl > 0 {
			a.Idempotency = memory.NewIdempotencyStore(ttl)
		}
	case StorePostgres, "":
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("database dsn is required for the %s store (set DATABASE_URL)", StorePostgres)
		}
		poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.MinConns = cfg.Database.MinConns

		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		txm := postgres.NewTxManagerWithOptions(pool, txOptions(cfg.Database))

		a.Pool = pool
		a.Tx = txm
		a.Accounts = account_repo.NewAccountRepo(txm)
		if ttl := cfg.HTTP.IdempotencyTTL; ttl > 0 {
			a.Idempotency = postgres.NewIdempotencyStore(txm, ttl)
		}
	default:
		return nil, fmt.Errorf("unknown store %q (want %s or %s)", store, StorePostgres, StoreMemory)
	}

	a.Transfer = transfer.NewService(a.Tx, a.Accounts, svcOpts...)
	logger.Debug(ctx, "application wired", "store", store)
	return a, nil
}

// Migrate creates the schema. It is a no-op on the memory store.
func (a *App) Migrate(ctx context.Context) error {
	if a.Pool == nil {
		return nil
	}
	return postgres.Migrate(ctx, a.Pool)
}

// Close releases the pool, if any.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func txOptions(cfg config.DatabaseConfig) postgres.TxOptions {
	opts := postgres.DefaultTxOptions()
	if cfg.Serializable {
		opts = postgres.SerializableTxOptions()
	}
	opts.StatementTimeout = cfg.StatementTimeout
	return opts
}

func transferOptions(cfg config.TransferConfig) ([]transfer.Option, error) {
	var opts []transfer.Option
	if cfg.ForbiddenRule != "" {
		hook, err := transfer.CompileRule(cfg.ForbiddenRule)
		if err != nil {
			return nil, fmt.Errorf("transfer.forbidden_rule: %w", err)
		}
		opts = append(opts, transfer.WithBeforeCredit(hook))
	}
	if cfg.AllowOverdraft {
		opts = append(opts, transfer.WithOverdraft())
	}
	return opts, nil
}
