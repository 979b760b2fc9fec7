package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueCard(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	reg, first := registerClient(t, s, "anna", "2000")

	card, err := s.Cards.Issue(ctx, reg.ClientID)
	require.NoError(t, err)
	assert.NotEqual(t, first.CardNumber, card.CardNumber)
	assert.True(t, strings.HasPrefix(card.CardNumber, cardPrefix))
	assert.True(t, utils.ValidLuhn(card.CardNumber))
	assert.NotEmpty(t, card.CVVHash)

	_, err = s.Cards.Issue(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleBlock(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	anna, card := registerClient(t, s, "anna", "2000")
	bob, _ := registerClient(t, s, "bob", "2000")

	blocked, err := s.Cards.ToggleBlock(ctx, anna.ClientID, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardBlocked, blocked.Status)
	active, err := s.Cards.ToggleBlock(ctx, anna.ClientID, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardActive, active.Status)

	_, err = s.Cards.ToggleBlock(ctx, bob.ClientID, card.ID)
	assert.ErrorIs(t, err, ErrAuthorization)

	_, err = s.Cards.SetStatus(ctx, card.ID, models.CardExpired)
	require.NoError(t, err)
	_, err = s.Cards.ToggleBlock(ctx, anna.ClientID, card.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Cards.SetStatus(ctx, card.ID, "LOST")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.Cards.SetStatus(ctx, 999, models.CardBlocked)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpireCards(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	reg, card := registerClient(t, s, "anna", "2000")
	fresh, err := s.Cards.Issue(ctx, reg.ClientID)
	require.NoError(t, err)

	old, err := repo.GetCard(ctx, card.ID)
	require.NoError(t, err)
	old.ExpirationDate = testNow.Add(-24 * time.Hour)
	require.NoError(t, repo.SaveCard(ctx, old))

	n, err := s.Cards.ExpireCards(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardExpired, got.Status)
	got, err = repo.GetCard(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardActive, got.Status)

	n, err = s.Cards.ExpireCards(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOwnsCard(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	anna, card := registerClient(t, s, "anna", "2000")
	bob, _ := registerClient(t, s, "bob", "2000")

	assert.NoError(t, s.OwnsCard(ctx, anna.ClientID, card.ID))
	assert.ErrorIs(t, s.OwnsCard(ctx, bob.ClientID, card.ID), ErrAuthorization)
	assert.ErrorIs(t, s.OwnsCard(ctx, anna.ClientID, 999), ErrNotFound)
}

func TestDashboard(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	reg, _ := registerClient(t, s, "anna", "2000")
	_, err := s.Loans.Issue(ctx, reg.ClientID, dec("6000"), 24)
	require.NoError(t, err)

	dash, err := s.Dashboard(ctx, reg.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "Client anna", dash.FullName)
	assert.Equal(t, models.RiskLow, dash.RiskClass)
	assert.Len(t, dash.Cards, 1)
	require.Len(t, dash.Loans, 1)
	require.NotNil(t, dash.Loans[0].NextPaymentDate)
	assert.Equal(t, *date(2025, time.April, 15), *dash.Loans[0].NextPaymentDate)
	assert.True(t, dash.Burden.MonthlyPayments.Equal(dec("325")))
	assert.Equal(t, "0.16", dash.Burden.BurdenRatio.String())

	_, err = s.Dashboard(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionHistoryMasksNumbers(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	reg, card := registerClient(t, s, "anna", "2000")
	fund(t, s, reg.ClientID, card.ID, "100")
	_, err := s.Transactions.Settle(ctx, SettleRequest{CardID: card.ID, Amount: dec("40"), MCCCode: "5411"})
	require.NoError(t, err)

	items, err := s.TransactionHistory(ctx, reg.ClientID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Amount.Equal(dec("-40")))
	for _, item := range items {
		assert.Equal(t, "**** "+card.CardNumber[12:], item.CardNumber)
		assert.NotContains(t, item.CardNumber, card.CardNumber[:12])
	}
}

func TestParametersFallBackToDefaults(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	bpm, err := s.Params.Decimal(ctx, ParamBPM)
	require.NoError(t, err)
	assert.True(t, bpm.Equal(dec("400")))

	require.NoError(t, s.Params.Set(ctx, ParamBPM, "not-a-number", ""))
	bpm, err = s.Params.Decimal(ctx, ParamBPM)
	require.NoError(t, err)
	assert.True(t, bpm.Equal(dec("400")))

	require.NoError(t, s.Params.Set(ctx, ParamBPM, "-5", ""))
	bpm, err = s.Params.Decimal(ctx, ParamBPM)
	require.NoError(t, err)
	assert.True(t, bpm.Equal(dec("400")))

	require.NoError(t, s.Params.Set(ctx, ParamBPM, "500", ""))
	bpm, err = s.Params.Decimal(ctx, ParamBPM)
	require.NoError(t, err)
	assert.True(t, bpm.Equal(dec("500")))

	_, err = s.Params.String(ctx, ParamKeyRate)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Params.Set(ctx, " ", "1", ""), ErrValidation)

	params, err := s.Params.List(ctx)
	require.NoError(t, err)
	assert.Len(t, params, 1)
}
