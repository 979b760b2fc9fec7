package service

import (
	"context"
	"strings"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type scoreBand struct {
	minScore int
	risk     models.RiskClass
	minLimit int64
	maxLimit int64
	message  string
}

// Evaluated high to low; a score below the last band is rejected.
var scoreBands = []scoreBand{
	{75, models.RiskLow, 5000, 10000, "Approved (Premium)"},
	{40, models.RiskMiddle, 1500, 5000, "Approved (Standard)"},
	{10, models.RiskHigh, 500, 1500, "Approved (Minimal)"},
}

var (
	ptiWarn     = decimal.RequireFromString("0.4")
	ptiCritical = decimal.RequireFromString("0.6")
)

// ScoringEngine computes applicant scores and risk tiers
type ScoringEngine struct {
	params *Parameters
	log    *logrus.Logger
	now    func() time.Time
}

// NewScoringEngine initializes a scoring engine
func NewScoringEngine(params *Parameters, log *logrus.Logger, now func() time.Time) *ScoringEngine {
	return &ScoringEngine{params: params, log: log, now: now}
}

// Calculate scores an applicant snapshot. It reads only the BPM parameter.
func (s *ScoringEngine) Calculate(ctx context.Context, applicant models.Applicant, hasDelinquency bool) (models.ScoringResult, error) {
	bpm, err := s.params.Decimal(ctx, ParamBPM)
	if err != nil {
		return models.ScoringResult{}, err
	}
	return Decide(Score(applicant, bpm, hasDelinquency, s.now())), nil
}

// Snapshot builds the scoring input of a client with its ACTIVE loans
func (s *ScoringEngine) Snapshot(ctx context.Context, q repository.Queries, client models.Client) (models.Applicant, error) {
	loans, err := q.FindLoansByClient(ctx, client.ID, models.LoanActive)
	if err != nil {
		return models.Applicant{}, err
	}
	return models.Applicant{
		MonthlyIncome:       client.MonthlyIncome,
		BirthDate:           client.BirthDate,
		EmploymentStartDate: client.EmploymentStartDate,
		MaritalStatus:       client.MaritalStatus,
		ActiveLoans:         loans,
	}, nil
}

// rescoreWithin scores client without an external delinquency mark and saves the result.
// The caller holds the client lock or has just created the client in q.
func (s *ScoringEngine) rescoreWithin(ctx context.Context, q repository.Queries, client *models.Client) (models.ScoringResult, error) {
	applicant, err := s.Snapshot(ctx, q, *client)
	if err != nil {
		return models.ScoringResult{}, err
	}
	result, err := s.Calculate(ctx, applicant, false)
	if err != nil {
		return models.ScoringResult{}, err
	}
	client.CreditHistoryScore = result.Score
	client.RiskClass = result.RiskClass
	if err := q.SaveClient(ctx, client); err != nil {
		return models.ScoringResult{}, err
	}
	s.log.WithFields(logrus.Fields{"client_id": client.ID, "score": result.Score, "risk": result.RiskClass}).Info("Client rescored")
	return result, nil
}

// Score is the additive point system. today fixes the reference date for tenure and age.
func Score(a models.Applicant, bpm decimal.Decimal, hasDelinquency bool, today time.Time) int {
	score := 0

	income := a.MonthlyIncome
	switch {
	case income.GreaterThan(bpm.Mul(decimal.NewFromInt(3))):
		score += 35
	case income.GreaterThanOrEqual(bpm.Mul(decimal.RequireFromString("1.5"))):
		score += 15
	default:
		score += 5
	}

	years := 0
	if a.EmploymentStartDate != nil {
		years = max(0, monthsBetween(*a.EmploymentStartDate, today)/12)
	}
	switch {
	case years >= 3:
		score += 20
	case years >= 1:
		score += 10
	}

	if hasDelinquency {
		score -= 60
	} else {
		score += 30
	}

	if len(a.ActiveLoans) > 0 {
		score -= 10
		pti := PaymentToIncome(a.ActiveLoans, income)
		if pti.GreaterThan(ptiWarn) {
			score -= 30
		}
		if pti.GreaterThan(ptiCritical) {
			score -= 50
		}
	}

	if strings.EqualFold(strings.TrimSpace(a.MaritalStatus), "MARRIED") {
		score += 10
	}

	age := monthsBetween(a.BirthDate, today) / 12
	if age >= 30 && age <= 55 {
		score += 5
	}
	return score
}

// PaymentToIncome is the sum of monthly payments over income, half-up to 2 decimals; zero when income is not positive
func PaymentToIncome(loans []models.Loan, income decimal.Decimal) decimal.Decimal {
	if !money.Positive(income) {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, l := range loans {
		total = total.Add(l.MonthlyPayment)
	}
	return money.Div(total, income)
}

// Decide maps a score onto the approval bands
func Decide(score int) models.ScoringResult {
	for _, b := range scoreBands {
		if score >= b.minScore {
			return models.ScoringResult{
				Score:     score,
				Approved:  true,
				MinLimit:  decimal.NewFromInt(b.minLimit),
				MaxLimit:  decimal.NewFromInt(b.maxLimit),
				RiskClass: b.risk,
				Message:   b.message,
			}
		}
	}
	return models.ScoringResult{
		Score:     score,
		MinLimit:  decimal.Zero,
		MaxLimit:  decimal.Zero,
		RiskClass: models.RiskNone,
		Message:   "Rejected",
	}
}

// RiskClassForScore returns the risk class of the band score falls into
func RiskClassForScore(score int) models.RiskClass {
	return Decide(score).RiskClass
}

// monthsBetween counts whole calendar months from a to b, negative when b is before a
func monthsBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	months := (by-ay)*12 + int(bm-am)
	if months > 0 && bd < ad {
		months--
	} else if months < 0 && bd > ad {
		months++
	}
	return months
}
