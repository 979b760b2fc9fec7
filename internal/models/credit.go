package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationStatus is the lifecycle state of a credit application
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationApproved ApplicationStatus = "APPROVED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// LoanStatus is the repayment state of a loan
type LoanStatus string

const (
	LoanActive LoanStatus = "ACTIVE"
	LoanPaid   LoanStatus = "PAID"
)

// CreditApplication represents a client's request for a credit product
type CreditApplication struct {
	ID                  int64             `json:"id"`
	ClientID            int64             `json:"client_id"`
	RequestedLimit      decimal.Decimal   `json:"requested_limit"`
	ApprovedMinLimit    decimal.Decimal   `json:"approved_min_limit"`
	ApprovedMaxLimit    decimal.Decimal   `json:"approved_max_limit"`
	FinalApprovedLimit  *decimal.Decimal  `json:"final_approved_limit,omitempty"`
	CalculatedScore     int               `json:"calculated_score"`
	WorkExperienceYears float64           `json:"work_experience_years"`
	TermMonths          int               `json:"term_months"`
	Status              ApplicationStatus `json:"status"`
	CreatedAt           time.Time         `json:"created_at"`
}

// Loan represents an issued credit
type Loan struct {
	ID                 int64           `json:"id"`
	ClientID           int64           `json:"client_id"`
	PrincipalAmount    decimal.Decimal `json:"principal_amount"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TotalAmountToRepay decimal.Decimal `json:"total_amount_to_repay"`
	RemainingDebt      decimal.Decimal `json:"remaining_debt"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
	TermMonths         int             `json:"term_months"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	Status             LoanStatus      `json:"status"`
}
