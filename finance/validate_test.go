package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CURRENCY VALIDATION
// =============================================================================

func TestValidateCurrency(t *testing.T) {
	valid := []string{"USD", "EUR", "GBP", "XXX"}
	for _, code := range valid {
		assert.NoError(t, ValidateCurrency(code), code)
	}

	invalid := []string{"", "US", "USDT", "usd", "U1D", "U$D", "ÉUR"}
	for _, code := range invalid {
		err := ValidateCurrency(code)
		assert.ErrorIs(t, err, ErrInvalidCurrency, code)
		assert.Equal(t, CodeInvalidCurrency, Code(err))
	}
}

// =============================================================================
// AMOUNT PARSING
// =============================================================================

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("250")
	require.NoError(t, err)
	assert.Equal(t, "250.00", d.StringFixed(2))

	d, err = ParseAmount("0.005")
	require.NoError(t, err)
	assert.True(t, d.IsPositive())

	// Zero is allowed: non-negative, not positive.
	_, err = ParseAmount("0")
	assert.NoError(t, err)

	for _, s := range []string{"", "abc", "12,50", "-1", "-0.01"} {
		_, err := ParseAmount(s)
		assert.ErrorIs(t, err, ErrInvalidAmount, s)
		assert.Equal(t, CodeInvalidAmount, Code(err))
	}
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

func TestValidateTransition(t *testing.T) {
	allowed := []struct{ from, to ExpenseStatus }{
		{StatusNew, StatusPending},
		{StatusPending, StatusApproved},
		{StatusPending, StatusRejected},
	}
	for _, tr := range allowed {
		assert.NoError(t, ValidateTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to ExpenseStatus }{
		{StatusNew, StatusApproved}, // no skipping pending
		{StatusNew, StatusRejected},
		{StatusNew, StatusNew},
		{StatusPending, StatusNew},
		{StatusApproved, StatusPending}, // terminal
		{StatusApproved, StatusRejected},
		{StatusRejected, StatusPending}, // no resubmission
		{StatusRejected, StatusApproved},
	}
	for _, tr := range denied {
		err := ValidateTransition(tr.from, tr.to)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition, "%s -> %s", tr.from, tr.to)
		assert.Equal(t, CodeInvalidStatusTransition, Code(err))
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusNew.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
}
