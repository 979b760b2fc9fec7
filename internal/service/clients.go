package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/Dan9191/bank-core/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ClientUpdate carries the profile fields an admin may change
type ClientUpdate struct {
	FullName      string          `json:"full_name"`
	Passport      string          `json:"passport"`
	Email         string          `json:"email"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
}

// Dashboard aggregates a client's cards, loans, points and credit burden
func (s *Service) Dashboard(ctx context.Context, clientID int64) (*models.Dashboard, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, lookup(err, "client")
	}
	cards, err := s.repo.FindCardsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}
	loans, err := s.repo.FindLoansByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load loans: %w", err)
	}
	var points int64
	account, err := s.repo.FindBonusAccountByClient(ctx, clientID)
	switch {
	case err == nil:
		points = account.PointsBalance
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load bonus account: %w", err)
	}

	today := s.now()
	summaries := make([]models.LoanSummary, 0, len(loans))
	var active []models.Loan
	monthly := decimal.Zero
	for _, l := range loans {
		summaries = append(summaries, models.LoanSummary{Loan: l, NextPaymentDate: NextPaymentDate(l, today)})
		if l.Status == models.LoanActive {
			active = append(active, l)
			monthly = monthly.Add(l.MonthlyPayment)
		}
	}
	if cards == nil {
		cards = []models.Card{}
	}

	return &models.Dashboard{
		ClientID:           client.ID,
		FullName:           client.FullName,
		MonthlyIncome:      client.MonthlyIncome,
		CreditHistoryScore: client.CreditHistoryScore,
		RiskClass:          client.RiskClass,
		PointsBalance:      points,
		Cards:              cards,
		Loans:              summaries,
		Burden: models.CreditBurden{
			MonthlyPayments: monthly,
			MonthlyIncome:   client.MonthlyIncome,
			BurdenRatio:     PaymentToIncome(active, client.MonthlyIncome),
		},
	}, nil
}

// TransactionHistory lists a client's transactions newest first with masked card numbers
func (s *Service) TransactionHistory(ctx context.Context, clientID int64) ([]models.TransactionHistoryItem, error) {
	cards, err := s.repo.FindCardsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}
	numbers := make(map[int64]string, len(cards))
	for _, c := range cards {
		numbers[c.ID] = utils.MaskCardNumber(c.CardNumber)
	}
	txs, err := s.repo.FindTransactionsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	items := make([]models.TransactionHistoryItem, 0, len(txs))
	for _, t := range txs {
		items = append(items, models.TransactionHistoryItem{
			ID:          t.ID,
			CardNumber:  numbers[t.CardID],
			Amount:      t.Amount,
			MCCCode:     t.MCCCode,
			Description: t.Description,
			Status:      t.Status,
			CreatedAt:   t.CreatedAt,
		})
	}
	return items, nil
}

// ClientCards lists a client's cards
func (s *Service) ClientCards(ctx context.Context, clientID int64) ([]models.Card, error) {
	return s.repo.FindCardsByClient(ctx, clientID)
}

// OwnsCard reports a NotFound or Authorization error unless cardID belongs to clientID
func (s *Service) OwnsCard(ctx context.Context, clientID, cardID int64) error {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return lookup(err, "card")
	}
	if card.ClientID != clientID {
		return newError(ErrAuthorization, "card %d does not belong to client %d", cardID, clientID)
	}
	return nil
}

// ClientByUserID returns the client profile attached to a login
func (s *Service) ClientByUserID(ctx context.Context, userID int64) (*models.Client, error) {
	client, err := s.repo.FindClientByUserID(ctx, userID)
	if err != nil {
		return nil, lookup(err, "client")
	}
	return client, nil
}

// UpdateClient changes a client's profile and rescores it against the new income
func (s *Service) UpdateClient(ctx context.Context, userID int64, update ClientUpdate) (*models.Client, error) {
	if strings.TrimSpace(update.FullName) == "" || strings.TrimSpace(update.Passport) == "" {
		return nil, newError(ErrValidation, "full name and passport are required")
	}
	if update.MonthlyIncome.IsNegative() {
		return nil, newError(ErrValidation, "monthly income must not be negative")
	}
	var client *models.Client
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		found, err := q.FindClientByUserID(ctx, userID)
		if err != nil {
			return lookup(err, "client")
		}
		if err := q.Lock(ctx, repository.LockSet{Clients: []int64{found.ID}}); err != nil {
			return err
		}
		if client, err = q.GetClient(ctx, found.ID); err != nil {
			return lookup(err, "client")
		}
		client.FullName = strings.TrimSpace(update.FullName)
		client.Passport = strings.TrimSpace(update.Passport)
		client.Email = strings.TrimSpace(update.Email)
		client.MonthlyIncome = update.MonthlyIncome
		_, err = s.Scoring.rescoreWithin(ctx, q, client)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"client_id": client.ID, "score": client.CreditHistoryScore, "risk": client.RiskClass}).Info("Client profile updated")
	return client, nil
}
