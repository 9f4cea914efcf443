/*
errors.go - Centralized error types for the finance ledger

PURPOSE:
  All ledger error values in one place. Callers (HTTP handlers) translate
  these into their own transport status codes via Code().

ERROR CATEGORIES:
  1. Validation errors - caller mistakes, nothing is written
  2. Not-found errors  - target record absent, nothing is written
  3. Conflict signals  - idempotency races, resolved internally, never
     surfaced to callers
  4. Storage faults    - propagated untranslated; the ledger never retries

USAGE:
    if errors.Is(err, finance.ErrInvalidStatusTransition) { ... }
    code := finance.Code(err) // "" for storage faults

SEE ALSO:
  - ledger.go: Returns these errors
  - api/handlers.go: Maps Code() to HTTP status
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidCurrency is returned when a currency code is not exactly
	// three uppercase ASCII letters. Format-only, not an ISO-4217 lookup.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrInvalidAmount is returned when an amount does not parse as a
	// non-negative decimal.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidStatusTransition is returned when a status change is not in
	// the new -> pending -> {approved, rejected} machine.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrInvalidBudget is returned when a budget payload is malformed
	// (warn threshold outside [0,1], duplicate category names).
	ErrInvalidBudget = errors.New("invalid budget")

	// ErrNotFound is returned when the target expense or budget is absent.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdempotencyKey signals that another writer already
	// registered the key. The ledger resolves this internally by returning
	// the winner's expense; callers never see it.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError details a rejected status change. The record is left
// untouched.
type TransitionError struct {
	ExpenseID string
	From      ExpenseStatus
	To        ExpenseStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("expense %s: cannot transition %s -> %s", e.ExpenseID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// =============================================================================
// ERROR CODES - Stable string identifiers for callers
// =============================================================================

const (
	CodeInvalidCurrency         = "INVALID_CURRENCY"
	CodeInvalidAmount           = "INVALID_AMOUNT"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeInvalidBudget           = "INVALID_BUDGET"
	CodeNotFound                = "NOT_FOUND"
)

// Code maps a ledger error to its caller-facing identifier. Storage faults
// and unknown errors return "".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCurrency):
		return CodeInvalidCurrency
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrInvalidStatusTransition):
		return CodeInvalidStatusTransition
	case errors.Is(err, ErrInvalidBudget):
		return CodeInvalidBudget
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return ""
	}
}

// IsValidation reports whether the error is a caller mistake that left no
// partial state behind.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidCurrency) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrInvalidBudget)
}

// IsNotFound reports whether the target record was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
