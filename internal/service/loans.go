package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	rateShort  = decimal.RequireFromString("0.12")
	rateMedium = decimal.RequireFromString("0.15")
	rateLong   = decimal.RequireFromString("0.18")
	twelve     = decimal.NewFromInt(12)
)

// Notifier delivers client notifications; implementations may be slow or fail
type Notifier interface {
	SendLoanIssued(to, name string, loan models.Loan) error
	SendPaymentReminder(to, name string, paymentDate time.Time, amount decimal.Decimal) error
}

// LoanService originates, schedules and collects loans
type LoanService struct {
	store    repository.Store
	notifier Notifier
	log      *logrus.Logger
	now      func() time.Time
}

// NewLoanService initializes a loan service; notifier may be nil
func NewLoanService(store repository.Store, notifier Notifier, log *logrus.Logger, now func() time.Time) *LoanService {
	return &LoanService{store: store, notifier: notifier, log: log, now: now}
}

// InterestRateForTerm selects the annual rate tier for a term in months
func InterestRateForTerm(months int) decimal.Decimal {
	switch {
	case months <= 12:
		return rateShort
	case months <= 36:
		return rateMedium
	default:
		return rateLong
	}
}

// Originate computes an ACTIVE loan starting on start. months must be positive.
func Originate(clientID int64, principal decimal.Decimal, months int, start time.Time) models.Loan {
	rate := InterestRateForTerm(months)
	n := decimal.NewFromInt(int64(months))
	years := money.DivRate(n, twelve)
	interest := principal.Mul(rate).Mul(years)
	total := money.Round(principal.Add(interest))
	startDate := truncateDay(start)
	return models.Loan{
		ClientID:           clientID,
		PrincipalAmount:    principal,
		InterestRate:       rate,
		TotalAmountToRepay: total,
		RemainingDebt:      total,
		MonthlyPayment:     money.Div(total, n),
		TermMonths:         months,
		StartDate:          startDate,
		EndDate:            addMonths(startDate, months),
		Status:             models.LoanActive,
	}
}

// Schedule lays out the monthly installments of a loan; the last one absorbs rounding
func Schedule(loan models.Loan) models.PaymentSchedule {
	schedule := models.PaymentSchedule{LoanID: loan.ID}
	paid := decimal.Zero
	for i := 1; i <= loan.TermMonths; i++ {
		amount := loan.MonthlyPayment
		if i == loan.TermMonths {
			amount = loan.TotalAmountToRepay.Sub(paid)
		}
		paid = paid.Add(amount)
		schedule.Installments = append(schedule.Installments, models.Installment{
			Number:      i,
			PaymentDate: addMonths(loan.StartDate, i),
			Amount:      amount,
		})
	}
	return schedule
}

// NextPaymentDate returns the first installment date on or after today for an ACTIVE loan
func NextPaymentDate(loan models.Loan, today time.Time) *time.Time {
	if loan.Status != models.LoanActive {
		return nil
	}
	day := truncateDay(today)
	for i := 1; i <= loan.TermMonths; i++ {
		d := addMonths(loan.StartDate, i)
		if !d.Before(day) {
			return &d
		}
	}
	return nil
}

// Issue originates a loan for a client in its own unit of work
func (s *LoanService) Issue(ctx context.Context, clientID int64, limit decimal.Decimal, termMonths int) (*models.Loan, error) {
	if !money.Positive(limit) {
		return nil, newError(ErrInvalidAmount, "loan amount must be positive")
	}
	if termMonths <= 0 {
		return nil, newError(ErrValidation, "term must be positive")
	}
	var (
		loan   *models.Loan
		client *models.Client
	)
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		client, err = q.GetClient(ctx, clientID)
		if err != nil {
			return lookup(err, "client")
		}
		loan, err = s.issueWithin(ctx, q, clientID, limit, termMonths)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifyIssued(*client, *loan)
	return loan, nil
}

// issueWithin credits the client's first ACTIVE card (creating one if needed) and stores the loan.
// Callers holding application locks may call it; it only locks the card.
func (s *LoanService) issueWithin(ctx context.Context, q repository.Queries, clientID int64, limit decimal.Decimal, termMonths int) (*models.Loan, error) {
	now := s.now()
	card, err := firstActiveCard(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	if card != nil {
		if err := q.Lock(ctx, repository.LockSet{Cards: []int64{card.ID}}); err != nil {
			return nil, err
		}
		if card, err = q.GetCard(ctx, card.ID); err != nil {
			return nil, err
		}
		// blocked or expired since it was listed
		if card.Status != models.CardActive {
			card = nil
		}
	}
	if card == nil {
		if card, err = issueCard(ctx, q, clientID, now); err != nil {
			return nil, err
		}
	}

	card.Balance = card.Balance.Add(limit)
	card.CreditLimit = decimal.Zero
	if err := q.SaveCard(ctx, card); err != nil {
		return nil, err
	}
	loan := Originate(clientID, limit, termMonths, now)
	if err := q.SaveLoan(ctx, &loan); err != nil {
		return nil, err
	}
	err = q.CreateTransaction(ctx, &models.Transaction{
		CardID:      card.ID,
		Amount:      limit,
		MCCCode:     models.MCCLoanIssue,
		Description: fmt.Sprintf("Loan #%d disbursement", loan.ID),
		Status:      models.TransactionCompleted,
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"client_id": clientID,
		"loan_id":   loan.ID,
		"card_id":   card.ID,
		"principal": limit.String(),
		"rate":      loan.InterestRate.String(),
		"monthly":   loan.MonthlyPayment.String(),
	}).Info("Loan issued")
	return &loan, nil
}

func (s *LoanService) notifyIssued(client models.Client, loan models.Loan) {
	if s.notifier == nil || client.Email == "" {
		return
	}
	if err := s.notifier.SendLoanIssued(client.Email, client.FullName, loan); err != nil {
		s.log.WithError(err).Warnf("Failed to notify client %d about loan %d", client.ID, loan.ID)
	}
}

// Pay applies a repayment from a client's card. The debit is capped at the remaining debt.
func (s *LoanService) Pay(ctx context.Context, clientID, loanID, cardID int64, amount decimal.Decimal) (*models.Loan, error) {
	if !money.Positive(amount) {
		return nil, newError(ErrInvalidAmount, "amount must be positive")
	}
	var loan *models.Loan
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.Lock(ctx, repository.LockSet{Loans: []int64{loanID}, Cards: []int64{cardID}}); err != nil {
			return err
		}
		var err error
		loan, err = q.GetLoan(ctx, loanID)
		if err != nil {
			return lookup(err, "loan")
		}
		card, err := q.GetCard(ctx, cardID)
		if err != nil {
			return lookup(err, "card")
		}
		if loan.ClientID != clientID || card.ClientID != clientID {
			return newError(ErrAuthorization, "loan or card does not belong to client %d", clientID)
		}
		if loan.Status == models.LoanPaid {
			return newError(ErrInvalidState, "loan %d is already paid", loan.ID)
		}
		if card.Status != models.CardActive {
			return newError(ErrCardInactive, "card %d is %s", card.ID, card.Status)
		}
		debit := money.Min(amount, loan.RemainingDebt)
		if card.Balance.LessThan(debit) {
			return insufficientFunds(card.Balance)
		}

		card.Balance = card.Balance.Sub(debit)
		if err := q.SaveCard(ctx, card); err != nil {
			return err
		}
		err = q.CreateTransaction(ctx, &models.Transaction{
			CardID:      card.ID,
			Amount:      debit.Neg(),
			MCCCode:     models.MCCLoanPayment,
			Description: fmt.Sprintf("Loan #%d payment", loan.ID),
			Status:      models.TransactionCompleted,
		})
		if err != nil {
			return err
		}
		loan.RemainingDebt = loan.RemainingDebt.Sub(debit)
		if loan.RemainingDebt.Sign() <= 0 {
			loan.RemainingDebt = decimal.Zero
			loan.Status = models.LoanPaid
		}
		return q.SaveLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"remaining": loan.RemainingDebt.String(),
		"status":    loan.Status,
	}).Info("Loan payment applied")
	return loan, nil
}

// Schedule returns the repayment plan of a client's loan
func (s *LoanService) Schedule(ctx context.Context, clientID, loanID int64) (models.PaymentSchedule, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return models.PaymentSchedule{}, lookup(err, "loan")
	}
	if loan.ClientID != clientID {
		return models.PaymentSchedule{}, newError(ErrAuthorization, "loan %d does not belong to client %d", loanID, clientID)
	}
	return Schedule(*loan), nil
}

// SendReminders notifies clients whose next installment falls within the given number of days
func (s *LoanService) SendReminders(ctx context.Context, withinDays int) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}
	loans, err := s.store.FindLoansByStatus(ctx, models.LoanActive)
	if err != nil {
		return 0, err
	}
	today := truncateDay(s.now())
	horizon := today.AddDate(0, 0, withinDays)
	sent := 0
	for _, loan := range loans {
		due := NextPaymentDate(loan, today)
		if due == nil || due.After(horizon) {
			continue
		}
		client, err := s.store.GetClient(ctx, loan.ClientID)
		if err != nil {
			s.log.WithError(err).Warnf("Skipping reminder for loan %d", loan.ID)
			continue
		}
		if client.Email == "" {
			continue
		}
		amount := money.Min(loan.MonthlyPayment, loan.RemainingDebt)
		if err := s.notifier.SendPaymentReminder(client.Email, client.FullName, *due, amount); err != nil {
			s.log.WithError(err).Warnf("Failed to send reminder for loan %d", loan.ID)
			continue
		}
		sent++
	}
	return sent, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addMonths adds calendar months, clamping to the last day of a shorter month
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
