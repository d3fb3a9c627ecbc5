package account_repo

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/domain/account"
	"ledgertx/internal/infrastructure/storage/postgres"
	"ledgertx/internal/testutil"
)

const (
	selectSQL = "SELECT account_id, balance FROM account WHERE account_id = $1 LIMIT 1"
	updateSQL = "UPDATE account SET balance = $1 WHERE account_id = $2"
	deleteSQL = "DELETE FROM account WHERE account_id = $1"
	insertSQL = "INSERT INTO account (account_id,balance) VALUES ($1,$2)"
	listSQL   = "SELECT account_id, balance FROM account ORDER BY account_id"
)

func newRepo(t *testing.T) (*AccountRepo, *testutil.MockProvider) {
	t.Helper()
	provider := testutil.NewMockProvider(t)
	txm := postgres.NewTxManagerWithOptions(provider, postgres.TxOptions{
		IsolationLevel: pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
	})
	return NewAccountRepo(txm), provider
}

func expect(sql string) string {
	return regexp.QuoteMeta(sql)
}

func TestAccountRepo_SQL(t *testing.T) {
	repo := NewAccountRepo(nil)

	sql, args, err := repo.Builder().
		Update(tableName).
		Set("balance", int64(8000)).
		Where("account_id = ?", "memberA").
		ToSql()
	require.NoError(t, err)

	assert.Equal(t, updateSQL, sql)
	assert.Equal(t, []any{int64(8000), "memberA"}, args)
}

func TestAccountRepo_FindByID(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(expect(selectSQL)).
		WithArgs("memberA").
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "balance"}).AddRow("memberA", int64(10000)))

	acc, err := repo.FindByID(context.Background(), "memberA")
	require.NoError(t, err)
	assert.Equal(t, &account.Account{ID: "memberA", Balance: 10000}, acc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_FindByID_NotFound(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(expect(selectSQL)).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "balance"}))

	_, err := repo.FindByID(context.Background(), "ghost")
	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Update(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectExec(expect(updateSQL)).
			WithArgs(int64(8000), "memberA").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.Update(context.Background(), "memberA", 8000))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectExec(expect(updateSQL)).
			WithArgs(int64(1), "ghost").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(context.Background(), "ghost", 1)
		assert.True(t, apperror.IsNotFound(err))
	})

	t.Run("backend fault", func(t *testing.T) {
		repo, mock := newRepo(t)
		cause := errors.New("connection reset by peer")
		mock.ExpectExec(expect(updateSQL)).
			WithArgs(int64(1), "memberA").
			WillReturnError(cause)

		err := repo.Update(context.Background(), "memberA", 1)
		assert.True(t, apperror.IsPersistence(err))
		assert.ErrorIs(t, err, cause)
	})
}

func TestAccountRepo_Delete_Idempotent(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(expect(deleteSQL)).
		WithArgs("memberA").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(expect(deleteSQL)).
		WithArgs("memberA").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ctx := context.Background()
	require.NoError(t, repo.Delete(ctx, "memberA"))
	require.NoError(t, repo.Delete(ctx, "memberA"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Save_Duplicate(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(expect(insertSQL)).
		WithArgs("memberA", int64(10000)).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	err := repo.Save(context.Background(), account.NewAccount("memberA", 10000))
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
}

func TestAccountRepo_List(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(expect(listSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "balance"}).
			AddRow("memberA", int64(8000)).
			AddRow("memberB", int64(12000)))

	accounts, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "memberB", accounts[1].ID)
	assert.Equal(t, int64(12000), accounts[1].Balance)
}

// Statements issued inside RunInTransaction travel through the scope's
// transaction and the scope's connection goes back exactly once.
func TestAccountRepo_UsesScopeFromContext(t *testing.T) {
	provider := testutil.NewMockProvider(t)
	txm := postgres.NewTxManagerWithOptions(provider, postgres.TxOptions{
		IsolationLevel: pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
	})
	repo := NewAccountRepo(txm)

	provider.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	provider.ExpectExec(expect(updateSQL)).
		WithArgs(int64(8000), "memberA").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	provider.ExpectExec(expect(updateSQL)).
		WithArgs(int64(12000), "memberB").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	provider.ExpectCommit()

	err := txm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		if err := repo.Update(ctx, "memberA", 8000); err != nil {
			return err
		}
		return repo.Update(ctx, "memberB", 12000)
	})
	require.NoError(t, err)

	assert.NoError(t, provider.ExpectationsWereMet())
	assert.EqualValues(t, 1, provider.Acquired())
	assert.EqualValues(t, 1, provider.Released())
}
