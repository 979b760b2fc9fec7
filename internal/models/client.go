package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskClass is the creditworthiness bucket derived from a scoring result
type RiskClass string

const (
	RiskNone   RiskClass = "NONE"
	RiskLow    RiskClass = "LOW"
	RiskMiddle RiskClass = "MIDDLE"
	RiskHigh   RiskClass = "HIGH"
)

// Client represents a bank customer
type Client struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	FullName            string          `json:"full_name"`
	Passport            string          `json:"passport"`
	Email               string          `json:"email,omitempty"`
	MonthlyIncome       decimal.Decimal `json:"monthly_income"`
	BirthDate           time.Time       `json:"birth_date"`
	EmploymentStartDate *time.Time      `json:"employment_start_date,omitempty"`
	MaritalStatus       string          `json:"marital_status"`
	CreditHistoryScore  int             `json:"credit_history_score"`
	RiskClass           RiskClass       `json:"risk_class"`
}
