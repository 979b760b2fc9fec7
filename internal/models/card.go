package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the activation state of a card
type CardStatus string

const (
	CardActive  CardStatus = "ACTIVE"
	CardBlocked CardStatus = "BLOCKED"
	CardExpired CardStatus = "EXPIRED"
)

// Card represents a client's card account; the balance is the spendable money
type Card struct {
	ID             int64           `json:"id"`
	ClientID       int64           `json:"client_id"`
	CardNumber     string          `json:"card_number"`
	CVVHash        string          `json:"-"` // Not serialized
	ExpirationDate time.Time       `json:"expiration_date"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	Balance        decimal.Decimal `json:"balance"`
	Status         CardStatus      `json:"status"`
}
