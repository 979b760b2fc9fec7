package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditBurden represents credit burden analytics
type CreditBurden struct {
	MonthlyPayments decimal.Decimal `json:"monthly_payments"`
	MonthlyIncome   decimal.Decimal `json:"monthly_income"`
	BurdenRatio     decimal.Decimal `json:"burden_ratio"` // MonthlyPayments / MonthlyIncome
}

// LoanSummary is a loan with its next due date
type LoanSummary struct {
	Loan
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
}

// Dashboard aggregates what a client sees on the home screen
type Dashboard struct {
	ClientID           int64           `json:"client_id"`
	FullName           string          `json:"full_name"`
	MonthlyIncome      decimal.Decimal `json:"monthly_income"`
	CreditHistoryScore int             `json:"credit_history_score"`
	RiskClass          RiskClass       `json:"risk_class"`
	PointsBalance      int64           `json:"points_balance"`
	Cards              []Card          `json:"cards"`
	Loans              []LoanSummary   `json:"loans"`
	Burden             CreditBurden    `json:"credit_burden"`
}
