package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// CardValidityYears is how long an issued card stays valid
const CardValidityYears = 3

// GenerateCardNumber generates a Luhn-valid card number with the specified prefix and length
func GenerateCardNumber(prefix string, length int) (string, error) {
	if length <= len(prefix) || length > 19 {
		return "", fmt.Errorf("invalid card number length: %d", length)
	}
	if CleanCardNumber(prefix) != prefix {
		return "", fmt.Errorf("card prefix must be digits only: %q", prefix)
	}

	// Random body, last position reserved for the check digit
	digits := make([]byte, length-len(prefix)-1)
	if _, err := rand.Read(digits); err != nil {
		return "", fmt.Errorf("failed to generate random digits: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(prefix)
	for _, b := range digits {
		builder.WriteByte(b%10 + '0')
	}
	body := builder.String()
	return body + string(rune('0'+luhnCheckDigit(body))), nil
}

// ValidLuhn reports whether number passes the Luhn checksum
func ValidLuhn(number string) bool {
	if len(number) < 2 || CleanCardNumber(number) != number {
		return false
	}
	body := number[:len(number)-1]
	return int(number[len(number)-1]-'0') == luhnCheckDigit(body)
}

func luhnCheckDigit(body string) int {
	sum := 0
	double := true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// CleanCardNumber keeps only the digits of a free-text card number
func CleanCardNumber(raw string) string {
	var builder strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// MaskCardNumber renders the last four digits as "**** 1234"
func MaskCardNumber(number string) string {
	if len(number) <= 4 {
		return "**** " + number
	}
	return "**** " + number[len(number)-4:]
}

// GenerateExpiryDate returns the expiration date of a card issued at now
func GenerateExpiryDate(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y+CardValidityYears, m, d, 0, 0, 0, 0, now.Location())
}

// GenerateCVV generates a 3-digit CVV code
func GenerateCVV() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate cvv: %w", err)
	}
	return fmt.Sprintf("%d%d%d", b[0]%10, b[1]%10, b[2]%10), nil
}
