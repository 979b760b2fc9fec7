package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BonusType tags a bonus ledger movement
type BonusType string

const (
	BonusPoints   BonusType = "POINTS"
	BonusCashback BonusType = "CASHBACK_RUB"
)

// BonusAccount holds a client's loyalty points
type BonusAccount struct {
	ID            int64 `json:"id"`
	ClientID      int64 `json:"client_id"`
	PointsBalance int64 `json:"points_balance"`
}

// BonusLedgerEntry is an append-only record of a points or cashback movement
type BonusLedgerEntry struct {
	ID             int64           `json:"id"`
	BonusAccountID int64           `json:"bonus_account_id"`
	TransactionID  *int64          `json:"transaction_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Type           BonusType       `json:"type"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LoyaltyRule maps an MCC code to either a cashback rate or points accrual
type LoyaltyRule struct {
	ID            int64           `json:"id"`
	MCCCode       string          `json:"mcc_code"`
	CategoryName  string          `json:"category_name"`
	CashbackRate  decimal.Decimal `json:"cashback_rate"`
	IsBonusPoints bool            `json:"is_bonus_points"`
}

// SystemParameter is a tunable constant stored as text
type SystemParameter struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}
