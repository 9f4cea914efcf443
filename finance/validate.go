// validate.go - Pure validators: money format and status transitions.
//
// Both validators are dependency-free so they can be exercised without any
// storage in place. The ledger calls them before touching the repository,
// which is what guarantees "no partial state on validation failure".

package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY / CURRENCY VALIDATOR
// =============================================================================

// ValidateCurrency checks that code is exactly three uppercase ASCII letters.
// This is a format check only, not ISO-4217 membership.
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return nil
}

// ParseAmount parses s as a non-negative arbitrary-precision decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	return d, nil
}

// =============================================================================
// STATUS TRANSITION VALIDATOR
// =============================================================================

// transitions is the full lifecycle: new -> pending -> {approved, rejected}.
// Approved and rejected are terminal.
var transitions = map[ExpenseStatus][]ExpenseStatus{
	StatusNew:      {StatusPending},
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {},
	StatusRejected: {},
}

// ValidateTransition checks a status change against the lifecycle machine.
// A no-op transition (from == to) is rejected like any other edge not in
// the machine.
func ValidateTransition(from, to ExpenseStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// ValidStatus reports whether s is one of the four lifecycle states.
func ValidStatus(s ExpenseStatus) bool {
	_, ok := transitions[s]
	return ok
}
