package finance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5123082-wq/collabstep-pro-sub006/finance"
	memstore "github.com/5123082-wq/collabstep-pro-sub006/finance/store"
	"github.com/5123082-wq/collabstep-pro-sub006/store/sqlite"
)

// =============================================================================
// TEST SETUP - Every ledger test runs against both backends
// =============================================================================

type backend struct {
	name    string
	newRepo func(t *testing.T) finance.Repository
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			newRepo: func(t *testing.T) finance.Repository {
				return memstore.NewMemory()
			},
		},
		{
			name: "sqlite",
			newRepo: func(t *testing.T) finance.Repository {
				s, err := sqlite.New(":memory:")
				require.NoError(t, err)
				t.Cleanup(func() { s.Close() })
				return s
			},
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo finance.Repository)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.newRepo(t))
		})
	}
}

func designExpense(amount string) finance.CreateExpenseInput {
	return finance.CreateExpenseInput{
		WorkspaceID: "ws-1",
		ProjectID:   "prj-1",
		Amount:      amount,
		Currency:    "USD",
		Category:    "Design",
	}
}

var asAlice = finance.WriteContext{ActorID: "alice"}

func countAudit(t *testing.T, repo finance.Repository, projectID string) int {
	events, err := repo.ListAudit(context.Background(),
		finance.AuditFilter{ProjectID: projectID}, finance.SortAsc)
	require.NoError(t, err)
	return len(events)
}

// =============================================================================
// CREATE
// =============================================================================

func TestLedger_CreateExpense(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// GIVEN: A valid payload
		// WHEN: Creating an expense
		// THEN: It is stored with status "new" and audited once

		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		exp, err := ledger.CreateExpense(ctx, designExpense("250"), asAlice)
		require.NoError(t, err)

		assert.NotEmpty(t, exp.ID)
		assert.Equal(t, finance.StatusNew, exp.Status)
		assert.Equal(t, "250.00", exp.Amount.StringFixed(2))
		assert.Equal(t, "USD", exp.Currency)
		assert.False(t, exp.CreatedAt.IsZero())

		stored, err := repo.GetExpense(ctx, exp.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, finance.StatusNew, stored.Status)

		events, err := repo.ListAudit(ctx, finance.AuditFilter{ProjectID: "prj-1"}, finance.SortAsc)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, finance.AuditExpenseCreated, events[0].Action)
		assert.Equal(t, "alice", events[0].ActorID)
		assert.Nil(t, events[0].Before)
		assert.Equal(t, "250", events[0].After["amount"])
	})
}

func TestLedger_CreateExpense_InvalidCurrency(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// GIVEN: A two-letter currency code
		// WHEN: Creating an expense
		// THEN: INVALID_CURRENCY and nothing is written

		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		in := designExpense("100")
		in.Currency = "US"
		_, err := ledger.CreateExpense(ctx, in, asAlice)

		assert.ErrorIs(t, err, finance.ErrInvalidCurrency)
		assert.Equal(t, finance.CodeInvalidCurrency, finance.Code(err))

		expenses, err := ledger.ListExpenses(ctx, finance.ExpenseFilter{ProjectID: "prj-1"})
		require.NoError(t, err)
		assert.Empty(t, expenses)
		assert.Zero(t, countAudit(t, repo, "prj-1"))
	})
}

func TestLedger_CreateExpense_InvalidAmount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		for _, amount := range []string{"", "abc", "-5"} {
			in := designExpense(amount)
			_, err := ledger.CreateExpense(ctx, in, asAlice)
			assert.ErrorIs(t, err, finance.ErrInvalidAmount, amount)
		}
		assert.Zero(t, countAudit(t, repo, "prj-1"))
	})
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestLedger_CreateExpense_IdempotentRetry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// GIVEN: A create succeeded under key K
		// WHEN: Retrying with the same key and a materially different payload
		// THEN: The original expense comes back unchanged; exactly one
		//       expense and one audit event exist

		ledger := finance.NewLedger(repo)
		ctx := context.Background()
		withKey := finance.WriteContext{ActorID: "alice", IdempotencyKey: "req-42"}

		first, err := ledger.CreateExpense(ctx, designExpense("250"), withKey)
		require.NoError(t, err)

		retry := designExpense("999")
		retry.Description = "totally different payload"
		second, err := ledger.CreateExpense(ctx, retry, withKey)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "250.00", second.Amount.StringFixed(2), "retried payload must be discarded")
		assert.Empty(t, second.Description)

		expenses, err := ledger.ListExpenses(ctx, finance.ExpenseFilter{ProjectID: "prj-1"})
		require.NoError(t, err)
		assert.Len(t, expenses, 1)
		assert.Equal(t, 1, countAudit(t, repo, "prj-1"), "retry must not audit")
	})
}

func TestLedger_CreateExpense_KeyScopedPerActor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// Same literal key from a different actor is a different logical
		// write and creates a second expense.

		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		a, err := ledger.CreateExpense(ctx, designExpense("100"),
			finance.WriteContext{ActorID: "alice", IdempotencyKey: "req-1"})
		require.NoError(t, err)
		b, err := ledger.CreateExpense(ctx, designExpense("100"),
			finance.WriteContext{ActorID: "bob", IdempotencyKey: "req-1"})
		require.NoError(t, err)

		assert.NotEqual(t, a.ID, b.ID)
	})
}

// =============================================================================
// UPDATE / LIFECYCLE
// =============================================================================

func statusPtr(s finance.ExpenseStatus) *finance.ExpenseStatus { return &s }
func strPtr(s string) *string                                  { return &s }

func TestLedger_UpdateExpense_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		ledger := finance.NewLedger(repo)

		_, err := ledger.UpdateExpense(context.Background(), "missing",
			finance.ExpensePatch{Status: statusPtr(finance.StatusPending)}, asAlice)

		assert.ErrorIs(t, err, finance.ErrNotFound)
		assert.Equal(t, finance.CodeNotFound, finance.Code(err))
	})
}

func TestLedger_UpdateExpense_CannotSkipPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// GIVEN: A freshly created expense (status "new")
		// WHEN: Approving it directly
		// THEN: INVALID_STATUS_TRANSITION; the record stays "new" and no
		//       audit event is added

		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		exp, err := ledger.CreateExpense(ctx, designExpense("250"), asAlice)
		require.NoError(t, err)
		auditBefore := countAudit(t, repo, "prj-1")

		_, err = ledger.UpdateExpense(ctx, exp.ID,
			finance.ExpensePatch{Status: statusPtr(finance.StatusApproved)}, asAlice)

		assert.ErrorIs(t, err, finance.ErrInvalidStatusTransition)
		var trErr *finance.TransitionError
		assert.ErrorAs(t, err, &trErr)
		assert.Equal(t, finance.StatusNew, trErr.From)

		stored, err := repo.GetExpense(ctx, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, finance.StatusNew, stored.Status, "record must be untouched")
		assert.Equal(t, auditBefore, countAudit(t, repo, "prj-1"))
	})
}

func TestLedger_UpdateExpense_FullLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// new -> pending -> approved, with one audit event per mutation
		// carrying before and after snapshots.

		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		exp, err := ledger.CreateExpense(ctx, designExpense("250"), asAlice)
		require.NoError(t, err)

		exp, err = ledger.UpdateExpense(ctx, exp.ID,
			finance.ExpensePatch{Status: statusPtr(finance.StatusPending)}, asAlice)
		require.NoError(t, err)
		assert.Equal(t, finance.StatusPending, exp.Status)

		exp, err = ledger.UpdateExpense(ctx, exp.ID,
			finance.ExpensePatch{Status: statusPtr(finance.StatusApproved)}, asAlice)
		require.NoError(t, err)
		assert.Equal(t, finance.StatusApproved, exp.Status)

		events, err := repo.ListAudit(ctx, finance.AuditFilter{ProjectID: "prj-1"}, finance.SortAsc)
		require.NoError(t, err)
		require.Len(t, events, 3) // created + two updates

		last := events[2]
		assert.Equal(t, finance.AuditExpenseUpdated, last.Action)
		assert.Equal(t, "pending", last.Before["status"])
		assert.Equal(t, "approved", last.After["status"])
	})
}

func TestLedger_UpdateExpense_RejectedIsTerminal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		exp, err := ledger.CreateExpense(ctx, designExpense("100"), asAlice)
		require.NoError(t, err)
		_, err = ledger.UpdateExpense(ctx, exp.ID,
			finance.ExpensePatch{Status: statusPtr(finance.StatusPending)}, asAlice)
		require.NoError(t, err)
		_, err = ledger.UpdateExpense(ctx, exp.ID,
			finance.ExpensePatch{Status: statusPtr(finance.StatusRejected)}, asAlice)
		require.NoError(t, err)

		// No resubmission.
		_, err = ledger.UpdateExpense(ctx, exp.ID,
			finance.ExpensePatch{Status: statusPtr(finance.StatusPending)}, asAlice)
		assert.ErrorIs(t, err, finance.ErrInvalidStatusTransition)
	})
}

func TestLedger_UpdateExpense_MutableFieldsOnly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// Description and category change; amount and currency survive any
		// update untouched.

		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		exp, err := ledger.CreateExpense(ctx, designExpense("250"), asAlice)
		require.NoError(t, err)

		updated, err := ledger.UpdateExpense(ctx, exp.ID, finance.ExpensePatch{
			Description: strPtr("mockups for sprint 3"),
			Category:    strPtr("Research"),
		}, asAlice)
		require.NoError(t, err)

		assert.Equal(t, "mockups for sprint 3", updated.Description)
		assert.Equal(t, "Research", updated.Category)
		assert.Equal(t, "250.00", updated.Amount.StringFixed(2))
		assert.Equal(t, "USD", updated.Currency)
		assert.Equal(t, finance.StatusNew, updated.Status)
	})
}

// =============================================================================
// LIST
// =============================================================================

func TestLedger_ListExpenses_FilterByProject(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		ledger := finance.NewLedger(repo)
		ctx := context.Background()

		_, err := ledger.CreateExpense(ctx, designExpense("100"), asAlice)
		require.NoError(t, err)

		other := designExpense("50")
		other.ProjectID = "prj-2"
		_, err = ledger.CreateExpense(ctx, other, asAlice)
		require.NoError(t, err)

		expenses, err := ledger.ListExpenses(ctx, finance.ExpenseFilter{ProjectID: "prj-1"})
		require.NoError(t, err)
		require.Len(t, expenses, 1)
		assert.Equal(t, "prj-1", expenses[0].ProjectID)

		all, err := ledger.ListExpenses(ctx, finance.ExpenseFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}
