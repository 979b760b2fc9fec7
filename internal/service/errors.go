package service

import (
	"errors"
	"fmt"

	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/shopspring/decimal"
)

// Kind is the stable category of a domain failure
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidState       Kind = "INVALID_STATE"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindInsufficientPoints Kind = "INSUFFICIENT_POINTS"
	KindInvalidAmount      Kind = "INVALID_AMOUNT"
	KindValidation         Kind = "VALIDATION"
	KindAuthorization      Kind = "AUTHORIZATION"
)

// Error is a typed domain failure. Balance is set for insufficient-funds failures.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Balance *decimal.Decimal
}

func (e *Error) Error() string {
	if e.Message == "" {
		if e.Code != "" {
			return e.Code
		}
		return string(e.Kind)
	}
	return e.Message
}

// Is matches by code when the target carries one, otherwise by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return t.Code == e.Code
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientPoints = &Error{Kind: KindInsufficientPoints}
	ErrInvalidAmount      = &Error{Kind: KindInvalidAmount}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrAuthorization      = &Error{Kind: KindAuthorization}

	ErrCardInactive    = &Error{Kind: KindInvalidState, Code: "CARD_INACTIVE"}
	ErrAccountNotFound = &Error{Kind: KindNotFound, Code: "ACCOUNT_NOT_FOUND"}
	ErrSelfTransfer    = &Error{Kind: KindValidation, Code: "SELF_TRANSFER"}
)

func newError(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

func insufficientFunds(balance decimal.Decimal) *Error {
	b := balance
	return &Error{Kind: KindInsufficientFunds, Message: "insufficient funds", Balance: &b}
}

// lookup converts a repository miss into a NotFound domain error and wraps anything else
func lookup(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(ErrNotFound, "%s not found", what)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
