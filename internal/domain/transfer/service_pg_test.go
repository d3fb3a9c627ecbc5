package transfer_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/domain/transfer"
	"ledgertx/internal/infrastructure/storage/postgres"
	"ledgertx/internal/infrastructure/storage/postgres/account_repo"
	"ledgertx/internal/testutil"
)

var (
	selectAccount = regexp.QuoteMeta("SELECT account_id, balance FROM account WHERE account_id = $1 LIMIT 1")
	updateAccount = regexp.QuoteMeta("UPDATE account SET balance = $1 WHERE account_id = $2")
)

func newPostgresService(t *testing.T) (*transfer.Service, *testutil.MockProvider) {
	t.Helper()
	provider := testutil.NewMockProvider(t)
	txm := postgres.NewTxManager(provider)
	repo := account_repo.NewAccountRepo(txm)
	svc := transfer.NewService(txm, repo, transfer.WithBeforeCredit(transfer.ForbidDestination(memberEX)))
	return svc, provider
}

func expectBegin(mock *testutil.MockProvider) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout = 30000")).
		WillReturnResult(pgxmock.NewResult("SET", 0))
}

func expectRow(mock *testutil.MockProvider, id string, balance int64) {
	mock.ExpectQuery(selectAccount).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "balance"}).AddRow(id, balance))
}

func expectUpdate(mock *testutil.MockProvider, id string, balance int64) {
	mock.ExpectExec(updateAccount).
		WithArgs(balance, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestPostgresTransfer_CommitsBothLegsOnOneConnection(t *testing.T) {
	svc, mock := newPostgresService(t)

	expectBegin(mock)
	expectRow(mock, memberA, 10000)
	expectUpdate(mock, memberA, 8000)
	expectRow(mock, memberB, 10000)
	expectUpdate(mock, memberB, 12000)
	mock.ExpectCommit()

	result, err := svc.Transfer(context.Background(), memberA, memberB, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), result.FromBalance)
	assert.Equal(t, int64(12000), result.ToBalance)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.EqualValues(t, 1, mock.Acquired())
	assert.EqualValues(t, 1, mock.Released())
}

func TestPostgresTransfer_ForbiddenDestinationRollsBack(t *testing.T) {
	svc, mock := newPostgresService(t)

	expectBegin(mock)
	expectRow(mock, memberA, 10000)
	expectUpdate(mock, memberA, 8000)
	mock.ExpectRollback()

	_, err := svc.Transfer(context.Background(), memberA, memberEX, 2000)
	assert.True(t, apperror.IsIllegalState(err))

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.EqualValues(t, 1, mock.Released())
}
