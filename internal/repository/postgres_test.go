package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dan9191/bank-core/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestRepository_GetCard(t *testing.T) {
	repo, mock := newMockRepo(t)
	exp := time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bank.cards WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "card_number", "cvv_hash", "expiration_date", "credit_limit", "balance", "status"}).
			AddRow(3, 1, "4200123412341234", "hash", exp, "0", "150.25", "ACTIVE"))

	card, err := repo.GetCard(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), card.ClientID)
	assert.True(t, card.Balance.Equal(decimal.RequireFromString("150.25")))
	assert.Equal(t, models.CardActive, card.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetCardNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bank.cards WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetCard(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_LockOutsideTx(t *testing.T) {
	repo, _ := newMockRepo(t)
	assert.ErrorIs(t, repo.Lock(context.Background(), LockSet{Cards: []int64{1}}), ErrNoTx)
}

func TestRepository_InTxLocksAndCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM bank.bonus_accounts WHERE client_id = ANY($1) ORDER BY client_id FOR UPDATE")).
		WithArgs(pq.Array([]int64{4})).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM bank.cards WHERE id = ANY($1) ORDER BY id FOR UPDATE")).
		WithArgs(pq.Array([]int64{2, 5})).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO bank.transactions")).
		WithArgs(int64(5), sqlmock.AnyArg(), "P2P_IN", "in", models.TransactionCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, time.Now()))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(q Queries) error {
		if err := q.Lock(context.Background(), LockSet{Cards: []int64{5, 2}, BonusClients: []int64{4}}); err != nil {
			return err
		}
		tx := &models.Transaction{CardID: 5, Amount: decimal.NewFromInt(10), MCCCode: "P2P_IN", Description: "in", Status: models.TransactionCompleted}
		if err := q.CreateTransaction(context.Background(), tx); err != nil {
			return err
		}
		assert.Equal(t, int64(11), tx.ID)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LockClientsAfterApplications(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM bank.credit_applications WHERE id = ANY($1) ORDER BY id FOR UPDATE")).
		WithArgs(pq.Array([]int64{7})).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM bank.clients WHERE id = ANY($1) ORDER BY id FOR UPDATE")).
		WithArgs(pq.Array([]int64{3})).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(q Queries) error {
		return q.Lock(context.Background(), LockSet{Clients: []int64{3}, Applications: []int64{7}})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LockReportsRowError(t *testing.T) {
	repo, mock := newMockRepo(t)
	deadlock := &pq.Error{Code: "40P01", Message: "deadlock detected"}
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM bank.cards WHERE id = ANY($1) ORDER BY id FOR UPDATE")).
		WithArgs(pq.Array([]int64{3})).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).RowError(0, deadlock))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(q Queries) error {
		return q.Lock(context.Background(), LockSet{Cards: []int64{3}})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, deadlock)
	assert.Contains(t, err.Error(), "failed to lock rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InTxRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.InTx(context.Background(), func(q Queries) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateUserConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO bank.users")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := repo.CreateUser(context.Background(), &models.User{Username: "anna", Role: models.RoleClient})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRepository_FindLoansByClientWithStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bank.loans WHERE client_id = $1 AND status = ANY($2)")).
		WithArgs(int64(1), pq.Array([]string{"ACTIVE"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "principal_amount", "interest_rate", "total_amount_to_repay",
			"remaining_debt", "monthly_payment", "term_months", "start_date", "end_date", "status"}).
			AddRow(1, 1, "6000", "0.15", "7800", "7800", "325", 24, start, start.AddDate(0, 24, 0), "ACTIVE"))

	loans, err := repo.FindLoansByClient(context.Background(), 1, models.LoanActive)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.True(t, loans[0].MonthlyPayment.Equal(decimal.NewFromInt(325)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
