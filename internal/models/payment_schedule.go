package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Installment represents one scheduled payment of a loan
type Installment struct {
	Number      int             `json:"number"`
	PaymentDate time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
}

// PaymentSchedule is the full repayment plan of a loan
type PaymentSchedule struct {
	LoanID       int64         `json:"loan_id"`
	Installments []Installment `json:"installments"`
}
