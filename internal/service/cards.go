package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/Dan9191/bank-core/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	cardPrefix       = "4200"
	cardNumberLength = 16
	cardNumberTries  = 5
)

// CardService manages card lifecycle: issuance, blocking, expiry
type CardService struct {
	store repository.Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewCardService initializes a card service
func NewCardService(store repository.Store, log *logrus.Logger, now func() time.Time) *CardService {
	return &CardService{store: store, log: log, now: now}
}

// issueCard creates an ACTIVE zero-balance card for a client inside the caller's unit
func issueCard(ctx context.Context, q repository.Queries, clientID int64, now time.Time) (*models.Card, error) {
	var number string
	for i := 0; i < cardNumberTries && number == ""; i++ {
		candidate, err := utils.GenerateCardNumber(cardPrefix, cardNumberLength)
		if err != nil {
			return nil, err
		}
		_, err = q.FindCardByNumber(ctx, candidate)
		if errors.Is(err, repository.ErrNotFound) {
			number = candidate
		} else if err != nil {
			return nil, err
		}
	}
	if number == "" {
		return nil, fmt.Errorf("failed to generate a unique card number")
	}

	cvv, err := utils.GenerateCVV()
	if err != nil {
		return nil, err
	}
	cvvHash, err := bcrypt.GenerateFromPassword([]byte(cvv), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash CVV: %w", err)
	}

	card := &models.Card{
		ClientID:       clientID,
		CardNumber:     number,
		CVVHash:        string(cvvHash),
		ExpirationDate: utils.GenerateExpiryDate(now),
		CreditLimit:    decimal.Zero,
		Balance:        decimal.Zero,
		Status:         models.CardActive,
	}
	if err := q.SaveCard(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// firstActiveCard returns the lowest-id ACTIVE card of a client, or nil
func firstActiveCard(ctx context.Context, q repository.Queries, clientID int64) (*models.Card, error) {
	cards, err := q.FindCardsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for _, c := range cards {
		if c.Status == models.CardActive {
			card := c
			return &card, nil
		}
	}
	return nil, nil
}

// Issue creates a new card for an existing client
func (s *CardService) Issue(ctx context.Context, clientID int64) (*models.Card, error) {
	var card *models.Card
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if _, err := q.GetClient(ctx, clientID); err != nil {
			return lookup(err, "client")
		}
		var err error
		card, err = issueCard(ctx, q, clientID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Card %d issued for client %d", card.ID, clientID)
	return card, nil
}

// ToggleBlock switches a client's own card between ACTIVE and BLOCKED; EXPIRED cards stay expired
func (s *CardService) ToggleBlock(ctx context.Context, clientID, cardID int64) (*models.Card, error) {
	var card *models.Card
	err := s.store.InTx(ctx, func(q repository.Queries) error {
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
		switch card.Status {
		case models.CardActive:
			card.Status = models.CardBlocked
		case models.CardBlocked:
			card.Status = models.CardActive
		default:
			return newError(ErrInvalidState, "card %d is %s", cardID, card.Status)
		}
		return q.SaveCard(ctx, card)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"card_id": cardID, "status": card.Status}).Info("Card status toggled")
	return card, nil
}

// SetStatus sets a card's status on behalf of staff
func (s *CardService) SetStatus(ctx context.Context, cardID int64, status models.CardStatus) (*models.Card, error) {
	switch status {
	case models.CardActive, models.CardBlocked, models.CardExpired:
	default:
		return nil, newError(ErrValidation, "unknown card status %q", status)
	}
	var card *models.Card
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.Lock(ctx, repository.LockSet{Cards: []int64{cardID}}); err != nil {
			return err
		}
		var err error
		card, err = q.GetCard(ctx, cardID)
		if err != nil {
			return lookup(err, "card")
		}
		card.Status = status
		return q.SaveCard(ctx, card)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"card_id": cardID, "status": status}).Info("Card status changed")
	return card, nil
}

// ExpireCards marks every ACTIVE card past its expiration date as EXPIRED and returns how many changed
func (s *CardService) ExpireCards(ctx context.Context) (int, error) {
	now := s.now()
	cards, err := s.store.FindActiveCardsExpiringBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, c := range cards {
		err := s.store.InTx(ctx, func(q repository.Queries) error {
			if err := q.Lock(ctx, repository.LockSet{Cards: []int64{c.ID}}); err != nil {
				return err
			}
			card, err := q.GetCard(ctx, c.ID)
			if err != nil {
				return err
			}
			if card.Status != models.CardActive || !card.ExpirationDate.Before(now) {
				return nil
			}
			card.Status = models.CardExpired
			if err := q.SaveCard(ctx, card); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			s.log.WithError(err).Errorf("Failed to expire card %d", c.ID)
		}
	}
	if expired > 0 {
		s.log.Infof("Expired %d cards", expired)
	}
	return expired, nil
}
