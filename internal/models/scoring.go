package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Applicant is the snapshot of client attributes a scoring run reads
type Applicant struct {
	MonthlyIncome       decimal.Decimal
	BirthDate           time.Time
	EmploymentStartDate *time.Time
	MaritalStatus       string
	ActiveLoans         []Loan
}

// ScoringResult is the verdict of a scoring run
type ScoringResult struct {
	Score     int             `json:"score"`
	Approved  bool            `json:"approved"`
	MinLimit  decimal.Decimal `json:"min_limit"`
	MaxLimit  decimal.Decimal `json:"max_limit"`
	RiskClass RiskClass       `json:"risk_class"`
	Message   string          `json:"message"`
}
