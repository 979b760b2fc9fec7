package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/Dan9191/bank-core/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TransferResult is the sender card after a transfer
type TransferResult struct {
	SenderCardID   int64           `json:"sender_card_id"`
	ReceiverCardID int64           `json:"receiver_card_id"`
	Amount         decimal.Decimal `json:"amount"`
	Balance        decimal.Decimal `json:"balance"`
}

// TransferProcessor moves money between two cards by card number
type TransferProcessor struct {
	store repository.Store
	log   *logrus.Logger
}

// NewTransferProcessor initializes a transfer processor
func NewTransferProcessor(store repository.Store, log *logrus.Logger) *TransferProcessor {
	return &TransferProcessor{store: store, log: log}
}

// Transfer debits the sender card and credits the card with receiverNumber in one unit.
// A transfer to the sender's own card is SelfTransfer whatever the amount.
func (p *TransferProcessor) Transfer(ctx context.Context, senderCardID int64, receiverNumber string, amount decimal.Decimal) (*TransferResult, error) {
	amount = money.Round(amount)
	number := utils.CleanCardNumber(receiverNumber)

	var result *TransferResult
	err := p.store.InTx(ctx, func(q repository.Queries) error {
		receiver, err := q.FindCardByNumber(ctx, number)
		if errors.Is(err, repository.ErrNotFound) || number == "" {
			return newError(ErrAccountNotFound, "receiver card not found")
		}
		if err != nil {
			return fmt.Errorf("failed to find receiver card: %w", err)
		}
		if receiver.ID == senderCardID {
			return newError(ErrSelfTransfer, "cannot transfer to the same card")
		}
		if !money.Positive(amount) {
			return newError(ErrInvalidAmount, "amount must be positive")
		}

		if err := q.Lock(ctx, repository.LockSet{Cards: []int64{senderCardID, receiver.ID}}); err != nil {
			return err
		}
		sender, err := q.GetCard(ctx, senderCardID)
		if err != nil {
			return lookup(err, "sender card")
		}
		if receiver, err = q.GetCard(ctx, receiver.ID); err != nil {
			return lookup(err, "receiver card")
		}
		if sender.Status != models.CardActive {
			return newError(ErrCardInactive, "card %d is %s", sender.ID, sender.Status)
		}
		if sender.Balance.LessThan(amount) {
			return insufficientFunds(sender.Balance)
		}
		senderClient, err := q.GetClient(ctx, sender.ClientID)
		if err != nil {
			return lookup(err, "sender client")
		}

		sender.Balance = sender.Balance.Sub(amount)
		receiver.Balance = receiver.Balance.Add(amount)
		if err := q.SaveCard(ctx, sender); err != nil {
			return err
		}
		if err := q.SaveCard(ctx, receiver); err != nil {
			return err
		}
		err = q.CreateTransaction(ctx, &models.Transaction{
			CardID:      sender.ID,
			Amount:      amount.Neg(),
			MCCCode:     models.MCCP2POut,
			Description: "Transfer to card " + receiver.CardNumber,
			Status:      models.TransactionCompleted,
		})
		if err != nil {
			return err
		}
		err = q.CreateTransaction(ctx, &models.Transaction{
			CardID:      receiver.ID,
			Amount:      amount,
			MCCCode:     models.MCCP2PIn,
			Description: "Transfer from " + senderClient.FullName,
			Status:      models.TransactionCompleted,
		})
		if err != nil {
			return err
		}
		result = &TransferResult{
			SenderCardID:   sender.ID,
			ReceiverCardID: receiver.ID,
			Amount:         amount,
			Balance:        sender.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{
		"from":   result.SenderCardID,
		"to":     result.ReceiverCardID,
		"amount": amount.String(),
	}).Info("Transfer completed")
	return result, nil
}
