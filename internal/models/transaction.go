package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the terminal state of a ledger entry
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Movement tags stored in place of an MCC code for internal transfers.
const (
	MCCTopUp       = "TOPUP"
	MCCP2POut      = "P2P_OUT"
	MCCP2PIn       = "P2P_IN"
	MCCLoanIssue   = "LOAN_ISSUE"
	MCCLoanPayment = "LOAN_PAYMENT"
)

// Transaction represents an append-only card ledger entry. Debits carry a negative amount.
type Transaction struct {
	ID          int64             `json:"id"`
	CardID      int64             `json:"card_id"`
	Amount      decimal.Decimal   `json:"amount"`
	MCCCode     string            `json:"mcc_code"`
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TransactionHistoryItem is a transaction as shown to its owner
type TransactionHistoryItem struct {
	ID          int64             `json:"id"`
	CardNumber  string            `json:"card_number"` // Masked
	Amount      decimal.Decimal   `json:"amount"`
	MCCCode     string            `json:"mcc_code"`
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}
