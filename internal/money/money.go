// Package money holds the single rounding contract shared by every ledger component.
// Amounts are kept at scale 2 and rates at scale 4, rounded half-up (away from zero).
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of decimal places kept for monetary amounts.
	MoneyScale = 2
	// RateScale is the number of decimal places kept for rates and year fractions.
	RateScale = 4
)

// Zero is a zero amount.
var Zero = decimal.Zero

// Round rounds an amount to MoneyScale, half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// Div divides a by b and rounds the quotient to MoneyScale, half-up.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, MoneyScale)
}

// DivRate divides a by b and rounds the quotient to RateScale, half-up.
func DivRate(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, RateScale)
}

// Mul multiplies an amount by a rate and rounds the product to MoneyScale.
func Mul(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

// FromInt builds a whole amount.
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// MustParse parses a literal amount and panics on malformed input. Intended for constants.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Parse parses a decimal string.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// Positive reports whether d > 0.
func Positive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Format renders an amount with exactly two decimals.
func Format(d decimal.Decimal) string {
	return Round(d).StringFixed(MoneyScale)
}

// HasScaleAtMost reports whether d has no more than places significant decimal places.
func HasScaleAtMost(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}
