// Package account_repo provides the PostgreSQL implementation of account.Repository.
// Statements run on the scope carried by ctx, or on the pool when there is none.
package account_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/domain/account"
	"ledgertx/internal/infrastructure/storage/postgres"
)

const (
	tableName = "account"

	pgUniqueViolation = "23505"
)

var selectCols = postgres.ExtractDBColumns[account.Account]()

var _ account.Repository = (*AccountRepo)(nil)

// QuerierSource resolves the querier for ctx. *postgres.TxManager implements it.
type QuerierSource interface {
	GetQuerier(ctx context.Context) postgres.Querier
}

// AccountRepo stores accounts in the account table.
type AccountRepo struct {
	db QuerierSource
}

// NewAccountRepo creates a new account repository.
func NewAccountRepo(db QuerierSource) *AccountRepo {
	return &AccountRepo{db: db}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *AccountRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// FindByID retrieves an account by id.
func (r *AccountRepo) FindByID(ctx context.Context, id string) (*account.Account, error) {
	q := r.Builder().
		Select(selectCols...).
		From(tableName).
		Where(squirrel.Eq{"account_id": id}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var acc account.Account
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &acc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, id)
		}
		return nil, apperror.NewPersistence("find account", err)
	}

	return &acc, nil
}

// Update sets the balance of an existing account.
func (r *AccountRepo) Update(ctx context.Context, id string, balance int64) error {
	q := r.Builder().
		Update(tableName).
		Set("balance", balance).
		Where(squirrel.Eq{"account_id": id})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewPersistence("update account", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(tableName, id)
	}

	return nil
}

// Delete removes an account; a missing row is not an error.
func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	q := r.Builder().
		Delete(tableName).
		Where(squirrel.Eq{"account_id": id})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewPersistence("delete account", err)
	}

	return nil
}

// Save inserts a new account.
func (r *AccountRepo) Save(ctx context.Context, acc *account.Account) error {
	q := r.Builder().
		Insert(tableName).
		SetMap(postgres.StructToMap(acc))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperror.NewDuplicate(tableName, "id", acc.ID)
		}
		return apperror.NewPersistence("insert account", err)
	}

	return nil
}

// List returns all accounts ordered by id.
func (r *AccountRepo) List(ctx context.Context) ([]*account.Account, error) {
	q := r.Builder().
		Select(selectCols...).
		From(tableName).
		OrderBy("account_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var accounts []*account.Account
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &accounts, sql, args...); err != nil {
		return nil, apperror.NewPersistence("list accounts", err)
	}

	return accounts, nil
}
