package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// pointsPerUnit is the spend that earns one point.
var pointsPerUnit = decimal.NewFromInt(10)

var (
	lowRiskBoost = decimal.RequireFromString("1.5")
	two          = decimal.NewFromInt(2)
)

// LoyaltyEngine accrues points and cashback on settled purchases and converts points to money
type LoyaltyEngine struct {
	store  repository.Store
	rules  *LoyaltyRules
	params *Parameters
	log    *logrus.Logger
}

// NewLoyaltyEngine initializes a loyalty engine
func NewLoyaltyEngine(store repository.Store, rules *LoyaltyRules, params *Parameters, log *logrus.Logger) *LoyaltyEngine {
	return &LoyaltyEngine{store: store, rules: rules, params: params, log: log}
}

// CashbackRate adjusts a rule's base rate for the client's risk class.
// The LOW boost is exact; only the HIGH halving is rounded to four places.
func CashbackRate(base decimal.Decimal, risk models.RiskClass) decimal.Decimal {
	switch risk {
	case models.RiskLow:
		return base.Mul(lowRiskBoost)
	case models.RiskHigh:
		return money.DivRate(base, two)
	default:
		return base
	}
}

// PointsFor returns the points earned for a purchase amount of either sign
func PointsFor(amount decimal.Decimal) int64 {
	return amount.Abs().Div(pointsPerUnit).Floor().IntPart()
}

// Apply accrues the reward configured for tx's MCC. Transactions without a rule are ignored.
func (e *LoyaltyEngine) Apply(ctx context.Context, tx models.Transaction) error {
	rule, err := e.rules.Lookup(ctx, tx.MCCCode)
	if err != nil {
		return err
	}
	if rule == nil {
		return nil
	}

	return e.store.InTx(ctx, func(q repository.Queries) error {
		card, err := q.GetCard(ctx, tx.CardID)
		if err != nil {
			return lookup(err, "card")
		}
		client, err := q.GetClient(ctx, card.ClientID)
		if err != nil {
			return lookup(err, "client")
		}
		if err := q.Lock(ctx, repository.LockSet{BonusClients: []int64{client.ID}, Cards: []int64{card.ID}}); err != nil {
			return err
		}
		account, err := q.FindBonusAccountByClient(ctx, client.ID)
		if err != nil {
			return lookup(err, "bonus account")
		}
		txID := tx.ID

		if rule.IsBonusPoints {
			points := PointsFor(tx.Amount)
			if points <= 0 {
				return nil
			}
			account.PointsBalance += points
			if err := q.SaveBonusAccount(ctx, account); err != nil {
				return err
			}
			e.log.WithFields(logrus.Fields{"client_id": client.ID, "points": points, "transaction_id": txID}).Info("Points accrued")
			return q.CreateBonusLedgerEntry(ctx, &models.BonusLedgerEntry{
				BonusAccountID: account.ID,
				TransactionID:  &txID,
				Amount:         decimal.NewFromInt(points),
				Type:           models.BonusPoints,
				Description:    fmt.Sprintf("Points for purchase (MCC %s)", rule.MCCCode),
			})
		}

		rate := CashbackRate(rule.CashbackRate, client.RiskClass)
		cashback := money.Mul(tx.Amount.Abs(), rate)
		if !money.Positive(cashback) {
			return nil
		}
		if card, err = q.GetCard(ctx, card.ID); err != nil {
			return lookup(err, "card")
		}
		card.Balance = card.Balance.Add(cashback)
		if err := q.SaveCard(ctx, card); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{
			"client_id":      client.ID,
			"cashback":       cashback.String(),
			"rate":           rate.String(),
			"transaction_id": txID,
		}).Info("Cashback credited")
		return q.CreateBonusLedgerEntry(ctx, &models.BonusLedgerEntry{
			BonusAccountID: account.ID,
			TransactionID:  &txID,
			Amount:         cashback,
			Type:           models.BonusCashback,
			Description:    fmt.Sprintf("Cashback %s%% (MCC %s)", rate.Mul(decimal.NewFromInt(100)).String(), rule.MCCCode),
		})
	})
}

// ConvertPoints exchanges points for money credited to the client's first card
func (e *LoyaltyEngine) ConvertPoints(ctx context.Context, clientID, points int64) (decimal.Decimal, error) {
	if points <= 0 {
		return decimal.Zero, newError(ErrInvalidAmount, "points must be positive")
	}
	rate, err := e.params.Decimal(ctx, ParamPointsRate)
	if err != nil {
		return decimal.Zero, err
	}
	amount := money.Div(decimal.NewFromInt(points), rate)

	err = e.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.Lock(ctx, repository.LockSet{BonusClients: []int64{clientID}}); err != nil {
			return err
		}
		account, err := q.FindBonusAccountByClient(ctx, clientID)
		if err != nil {
			return lookup(err, "bonus account")
		}
		if account.PointsBalance < points {
			return newError(ErrInsufficientPoints, "insufficient points: have %d, need %d", account.PointsBalance, points)
		}
		cards, err := q.FindCardsByClient(ctx, clientID)
		if err != nil {
			return err
		}
		if len(cards) == 0 {
			return newError(ErrNotFound, "client %d has no card", clientID)
		}
		if err := q.Lock(ctx, repository.LockSet{Cards: []int64{cards[0].ID}}); err != nil {
			return err
		}
		card, err := q.GetCard(ctx, cards[0].ID)
		if err != nil {
			return lookup(err, "card")
		}

		account.PointsBalance -= points
		if err := q.SaveBonusAccount(ctx, account); err != nil {
			return err
		}
		card.Balance = card.Balance.Add(amount)
		if err := q.SaveCard(ctx, card); err != nil {
			return err
		}
		return q.CreateBonusLedgerEntry(ctx, &models.BonusLedgerEntry{
			BonusAccountID: account.ID,
			Amount:         decimal.NewFromInt(-points),
			Type:           models.BonusPoints,
			Description:    fmt.Sprintf("Converted %d points to %s", points, money.Format(amount)),
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	e.log.WithFields(logrus.Fields{"client_id": clientID, "points": points, "amount": amount.String()}).Info("Points converted")
	return amount, nil
}

// History returns a client's bonus movements, newest first
func (e *LoyaltyEngine) History(ctx context.Context, clientID int64) ([]models.BonusLedgerEntry, error) {
	account, err := e.store.FindBonusAccountByClient(ctx, clientID)
	if errors.Is(err, repository.ErrNotFound) {
		return []models.BonusLedgerEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bonus account: %w", err)
	}
	return e.store.FindBonusLedger(ctx, account.ID)
}
