package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SettleRequest is a card purchase at a merchant
type SettleRequest struct {
	CardID      int64
	Amount      decimal.Decimal
	MCCCode     string
	Description string
}

// SettlementResult reports the outcome of a purchase together with the card balance after it
type SettlementResult struct {
	TransactionID int64                    `json:"transaction_id,omitempty"`
	Status        models.TransactionStatus `json:"status"`
	Message       string                   `json:"message"`
	Balance       decimal.Decimal          `json:"balance"`
}

// TransactionProcessor settles purchases and top-ups against card balances
type TransactionProcessor struct {
	store   repository.Store
	loyalty *LoyaltyEngine
	log     *logrus.Logger
}

// NewTransactionProcessor initializes a transaction processor
func NewTransactionProcessor(store repository.Store, loyalty *LoyaltyEngine, log *logrus.Logger) *TransactionProcessor {
	return &TransactionProcessor{store: store, loyalty: loyalty, log: log}
}

// Settle debits a purchase from an ACTIVE card. A shortfall returns a FAILED result with the
// current balance alongside the error and stores nothing. Loyalty accrual runs after the debit
// commits; its failures are logged only.
func (p *TransactionProcessor) Settle(ctx context.Context, req SettleRequest) (SettlementResult, error) {
	if !money.Positive(req.Amount) {
		return SettlementResult{Status: models.TransactionFailed, Message: "amount must be positive"},
			newError(ErrInvalidAmount, "amount must be positive")
	}
	amount := money.Round(req.Amount)

	var (
		tx      models.Transaction
		balance decimal.Decimal
	)
	err := p.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.Lock(ctx, repository.LockSet{Cards: []int64{req.CardID}}); err != nil {
			return err
		}
		card, err := q.GetCard(ctx, req.CardID)
		if err != nil {
			return lookup(err, "card")
		}
		balance = card.Balance
		if card.Status != models.CardActive {
			return newError(ErrCardInactive, "card %d is %s", card.ID, card.Status)
		}
		if card.Balance.LessThan(amount) {
			return insufficientFunds(card.Balance)
		}

		card.Balance = card.Balance.Sub(amount)
		if err := q.SaveCard(ctx, card); err != nil {
			return err
		}
		tx = models.Transaction{
			CardID:      card.ID,
			Amount:      amount.Neg(),
			MCCCode:     strings.TrimSpace(req.MCCCode),
			Description: req.Description,
			Status:      models.TransactionCompleted,
		}
		if err := q.CreateTransaction(ctx, &tx); err != nil {
			return err
		}
		balance = card.Balance
		return nil
	})
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) && derr.Kind == KindInsufficientFunds {
			p.log.WithFields(logrus.Fields{"card_id": req.CardID, "amount": amount.String()}).Warn("Purchase declined: insufficient funds")
			return SettlementResult{Status: models.TransactionFailed, Message: derr.Error(), Balance: *derr.Balance}, err
		}
		return SettlementResult{Status: models.TransactionFailed, Message: err.Error(), Balance: balance}, err
	}

	p.log.WithFields(logrus.Fields{
		"card_id":        req.CardID,
		"transaction_id": tx.ID,
		"amount":         amount.String(),
		"mcc":            tx.MCCCode,
	}).Info("Purchase settled")

	if p.loyalty != nil {
		if err := p.loyalty.Apply(ctx, tx); err != nil {
			p.log.WithError(err).WithField("transaction_id", tx.ID).Error("Failed to apply loyalty")
		}
		if card, err := p.store.GetCard(ctx, req.CardID); err == nil {
			balance = card.Balance
		} else {
			p.log.WithError(err).Warnf("Failed to re-read balance of card %d", req.CardID)
		}
	}

	return SettlementResult{
		TransactionID: tx.ID,
		Status:        models.TransactionCompleted,
		Message:       "payment completed",
		Balance:       balance,
	}, nil
}

// TopUp credits an ACTIVE card owned by clientID
func (p *TransactionProcessor) TopUp(ctx context.Context, clientID, cardID int64, amount decimal.Decimal) (*models.Card, error) {
	if !money.Positive(amount) {
		return nil, newError(ErrInvalidAmount, "amount must be positive")
	}
	amount = money.Round(amount)
	var card *models.Card
	err := p.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.Lock(ctx, repository.LockSet{Cards: []int64{cardID}}); err != nil {
			return err
		}
		var err error
		card, err = q.GetCard(ctx, cardID)
		if err != nil {
			return lookup(err, "card")
		}
		if card.ClientID != clientID {
			return newError(ErrAuthorization, "card %d does not belong to client %d", cardID, clientID)
		}
		if card.Status != models.CardActive {
			return newError(ErrCardInactive, "card %d is %s", card.ID, card.Status)
		}
		card.Balance = card.Balance.Add(amount)
		if err := q.SaveCard(ctx, card); err != nil {
			return err
		}
		return q.CreateTransaction(ctx, &models.Transaction{
			CardID:      card.ID,
			Amount:      amount,
			MCCCode:     models.MCCTopUp,
			Description: "Card top-up",
			Status:      models.TransactionCompleted,
		})
	})
	if err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"card_id": cardID, "amount": amount.String()}).Info("Card topped up")
	return card, nil
}
