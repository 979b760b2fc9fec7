package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleDebitsCard(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	reg, card := registerClient(t, s, "anna", "2000")
	fund(t, s, reg.ClientID, card.ID, "500")

	result, err := s.Transactions.Settle(ctx, SettleRequest{CardID: card.ID, Amount: dec("120.50"), MCCCode: "5812", Description: "Cafe"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCompleted, result.Status)
	assert.Equal(t, "payment completed", result.Message)
	assert.True(t, result.Balance.Equal(dec("379.50")))
	assert.True(t, balance(t, repo, card.ID).Equal(dec("379.50")))

	txs, err := repo.FindTransactionsByCard(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, result.TransactionID, txs[0].ID)
	assert.True(t, txs[0].Amount.Equal(dec("-120.50")))
	assert.Equal(t, "5812", txs[0].MCCCode)
	assert.Equal(t, models.TransactionCompleted, txs[0].Status)
}

func TestSettleInsufficientFundsChangesNothing(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	reg, card := registerClient(t, s, "anna", "2000")
	fund(t, s, reg.ClientID, card.ID, "50")

	result, err := s.Transactions.Settle(ctx, SettleRequest{CardID: card.ID, Amount: dec("100"), MCCCode: "5411"})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, models.TransactionFailed, result.Status)
	assert.True(t, result.Balance.Equal(dec("50")))

	var derr *Error
	require.True(t, errors.As(err, &derr))
	require.NotNil(t, derr.Balance)
	assert.True(t, derr.Balance.Equal(dec("50")))

	assert.True(t, balance(t, repo, card.ID).Equal(dec("50")))
	txs, err := repo.FindTransactionsByCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "only the top-up")
}

func TestSettleRejections(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	reg, card := registerClient(t, s, "anna", "2000")
	fund(t, s, reg.ClientID, card.ID, "500")

	result, err := s.Transactions.Settle(ctx, SettleRequest{CardID: card.ID, Amount: dec("0")})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, models.TransactionFailed, result.Status)

	_, err = s.Transactions.Settle(ctx, SettleRequest{CardID: 999, Amount: dec("10")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Cards.ToggleBlock(ctx, reg.ClientID, card.ID)
	require.NoError(t, err)
	_, err = s.Transactions.Settle(ctx, SettleRequest{CardID: card.ID, Amount: dec("10")})
	assert.ErrorIs(t, err, ErrCardInactive)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSettleConcurrentNeverOverdraws(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	reg, card := registerClient(t, s, "anna", "2000")
	fund(t, s, reg.ClientID, card.ID, "500")

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Transactions.Settle(ctx, SettleRequest{CardID: card.ID, Amount: dec("100"), MCCCode: "5999"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ErrInsufficientFunds) {
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 5, fail)
	assert.True(t, balance(t, repo, card.ID).IsZero())
}

func TestTopUp(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	anna, card := registerClient(t, s, "anna", "2000")
	bob, _ := registerClient(t, s, "bob", "2000")

	updated, err := s.Transactions.TopUp(ctx, anna.ClientID, card.ID, dec("10.005"))
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(dec("10.01")))

	txs, err := repo.FindTransactionsByCard(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.MCCTopUp, txs[0].MCCCode)

	_, err = s.Transactions.TopUp(ctx, bob.ClientID, card.ID, dec("10"))
	assert.ErrorIs(t, err, ErrAuthorization)
	_, err = s.Transactions.TopUp(ctx, anna.ClientID, card.ID, dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransferMovesMoney(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	anna, annaCard := registerClient(t, s, "anna", "2000")
	_, bobCard := registerClient(t, s, "bob", "2000")
	fund(t, s, anna.ClientID, annaCard.ID, "1000")

	number := bobCard.CardNumber[:4] + " " + bobCard.CardNumber[4:8] + " " + bobCard.CardNumber[8:12] + " " + bobCard.CardNumber[12:]
	result, err := s.Transfers.Transfer(ctx, annaCard.ID, number, dec("300"))
	require.NoError(t, err)
	assert.Equal(t, bobCard.ID, result.ReceiverCardID)
	assert.True(t, result.Balance.Equal(dec("700")))
	assert.True(t, balance(t, repo, annaCard.ID).Equal(dec("700")))
	assert.True(t, balance(t, repo, bobCard.ID).Equal(dec("300")))

	out, err := repo.FindTransactionsByCard(ctx, annaCard.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MCCP2POut, out[0].MCCCode)
	assert.True(t, out[0].Amount.Equal(dec("-300")))
	in, err := repo.FindTransactionsByCard(ctx, bobCard.ID)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, models.MCCP2PIn, in[0].MCCCode)
	assert.Equal(t, "Transfer from Client anna", in[0].Description)
}

func TestTransferRejections(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	anna, annaCard := registerClient(t, s, "anna", "2000")
	_, bobCard := registerClient(t, s, "bob", "2000")
	fund(t, s, anna.ClientID, annaCard.ID, "100")

	_, err := s.Transfers.Transfer(ctx, annaCard.ID, "4200000000000000000", dec("10"))
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, amount := range []string{"10", "0", "-5"} {
		_, err = s.Transfers.Transfer(ctx, annaCard.ID, annaCard.CardNumber, dec(amount))
		assert.ErrorIs(t, err, ErrSelfTransfer, "amount %s", amount)
	}

	_, err = s.Transfers.Transfer(ctx, annaCard.ID, bobCard.CardNumber, dec("100.01"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = s.Transfers.Transfer(ctx, annaCard.ID, bobCard.CardNumber, dec("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = s.Transfers.Transfer(ctx, annaCard.ID, bobCard.CardNumber, dec("0.004"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.Cards.ToggleBlock(ctx, anna.ClientID, annaCard.ID)
	require.NoError(t, err)
	_, err = s.Transfers.Transfer(ctx, annaCard.ID, bobCard.CardNumber, dec("10"))
	assert.ErrorIs(t, err, ErrCardInactive)

	assert.True(t, balance(t, repo, annaCard.ID).Equal(dec("100")))
	assert.True(t, balance(t, repo, bobCard.ID).IsZero())
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	anna, annaCard := registerClient(t, s, "anna", "2000")
	bob, bobCard := registerClient(t, s, "bob", "2000")
	fund(t, s, anna.ClientID, annaCard.ID, "500")
	fund(t, s, bob.ClientID, bobCard.ID, "500")

	const n = 20
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.Transfers.Transfer(ctx, annaCard.ID, bobCard.CardNumber, dec("10"))
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Transfers.Transfer(ctx, bobCard.ID, annaCard.CardNumber, dec("15"))
		}()
	}
	wg.Wait()

	total := balance(t, repo, annaCard.ID).Add(balance(t, repo, bobCard.ID))
	assert.True(t, total.Equal(dec("1000")), "total %s", total)
	assert.False(t, balance(t, repo, annaCard.ID).IsNegative())
	assert.False(t, balance(t, repo, bobCard.ID).IsNegative())
}
