package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_InTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	card := &models.Card{ClientID: 1, CardNumber: "4200000000000001", Balance: decimal.NewFromInt(100), Status: models.CardActive}
	require.NoError(t, m.SaveCard(ctx, card))

	boom := errors.New("boom")
	err := m.InTx(ctx, func(q Queries) error {
		c, err := q.GetCard(ctx, card.ID)
		require.NoError(t, err)
		c.Balance = decimal.Zero
		require.NoError(t, q.SaveCard(ctx, c))
		require.NoError(t, q.CreateTransaction(ctx, &models.Transaction{CardID: c.ID, Amount: decimal.NewFromInt(-100)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
	txs, err := m.FindTransactionsByCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMemory_LockRequiresTx(t *testing.T) {
	m := NewMemory()
	err := m.Lock(context.Background(), LockSet{Cards: []int64{1}})
	assert.ErrorIs(t, err, ErrNoTx)
}

func TestMemory_LockSerializesUnits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	card := &models.Card{ClientID: 1, CardNumber: "1", Balance: decimal.Zero, Status: models.CardActive}
	require.NoError(t, m.SaveCard(ctx, card))

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			err := m.InTx(ctx, func(q Queries) error {
				if err := q.Lock(ctx, LockSet{Cards: []int64{card.ID}}); err != nil {
					return err
				}
				c, err := q.GetCard(ctx, card.ID)
				if err != nil {
					return err
				}
				c.Balance = c.Balance.Add(decimal.NewFromInt(1))
				return q.SaveCard(ctx, c)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := m.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(n)), "balance=%s", got.Balance)
}

func TestMemory_LockHonoursContext(t *testing.T) {
	m := NewMemory()
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = m.InTx(context.Background(), func(q Queries) error {
			_ = q.Lock(context.Background(), LockSet{Cards: []int64{7}})
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.InTx(ctx, func(q Queries) error {
		return q.Lock(ctx, LockSet{Cards: []int64{7}})
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_LockIsReentrantWithinUnit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.InTx(ctx, func(q Queries) error {
		if err := q.Lock(ctx, LockSet{Cards: []int64{2, 1, 2}}); err != nil {
			return err
		}
		return q.Lock(ctx, LockSet{Cards: []int64{1}})
	})
	assert.NoError(t, err)
}

func TestLockKeysOrder(t *testing.T) {
	keys := lockKeys(LockSet{Cards: []int64{9, 3}, Applications: []int64{5}, BonusClients: []int64{2}, Loans: []int64{4}, Clients: []int64{8, 1}})
	assert.Equal(t, []string{"application:5", "client:1", "client:8", "loan:4", "bonus:2", "card:3", "card:9"}, keys)
}

func TestMemory_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateUser(ctx, &models.User{Username: "anna"}))
	assert.ErrorIs(t, m.CreateUser(ctx, &models.User{Username: "anna"}), ErrConflict)

	require.NoError(t, m.SaveLoyaltyRule(ctx, &models.LoyaltyRule{MCCCode: "5411"}))
	assert.ErrorIs(t, m.SaveLoyaltyRule(ctx, &models.LoyaltyRule{MCCCode: "5411"}), ErrConflict)

	require.NoError(t, m.SaveBonusAccount(ctx, &models.BonusAccount{ClientID: 1}))
	assert.ErrorIs(t, m.SaveBonusAccount(ctx, &models.BonusAccount{ClientID: 1}), ErrConflict)
}

func TestMemory_FindLoansByClientFiltersStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveLoan(ctx, &models.Loan{ClientID: 1, Status: models.LoanActive}))
	require.NoError(t, m.SaveLoan(ctx, &models.Loan{ClientID: 1, Status: models.LoanPaid}))
	require.NoError(t, m.SaveLoan(ctx, &models.Loan{ClientID: 2, Status: models.LoanActive}))

	all, err := m.FindLoansByClient(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	active, err := m.FindLoansByClient(ctx, 1, models.LoanActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.LoanActive, active[0].Status)
}
