package finance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5123082-wq/collabstep-pro-sub006/finance"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func designBudget() finance.BudgetInput {
	return finance.BudgetInput{
		Currency:      "USD",
		Total:         "1000",
		WarnThreshold: 0.5,
		Categories: []finance.BudgetCategoryInput{
			{Name: "Design", Limit: "600"},
		},
	}
}

// approveExpense walks an expense through new -> pending -> approved.
func approveExpense(t *testing.T, ledger *finance.Ledger, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := ledger.UpdateExpense(ctx, id,
		finance.ExpensePatch{Status: statusPtr(finance.StatusPending)}, asAlice)
	require.NoError(t, err)
	_, err = ledger.UpdateExpense(ctx, id,
		finance.ExpensePatch{Status: statusPtr(finance.StatusApproved)}, asAlice)
	require.NoError(t, err)
}

// =============================================================================
// UPSERT
// =============================================================================

func TestAggregator_UpsertBudget(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		agg := finance.NewAggregator(repo)
		ctx := context.Background()

		budget, err := agg.UpsertBudget(ctx, "prj-1", designBudget(), asAlice)
		require.NoError(t, err)

		assert.Equal(t, "prj-1", budget.ProjectID)
		assert.Equal(t, "1000.00", budget.Total.StringFixed(2))
		require.Len(t, budget.Categories, 1)
		assert.Equal(t, "Design", budget.Categories[0].Name)

		events, err := repo.ListAudit(ctx, finance.AuditFilter{
			ProjectID: "prj-1",
			Action:    finance.AuditBudgetUpdated,
		}, finance.SortAsc)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestAggregator_UpsertBudget_ReplacesWholesale(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// GIVEN: An existing budget with a Design category
		// WHEN: Upserting with only a Travel category
		// THEN: Design is gone, not merged

		agg := finance.NewAggregator(repo)
		ctx := context.Background()

		_, err := agg.UpsertBudget(ctx, "prj-1", designBudget(), asAlice)
		require.NoError(t, err)

		replacement := finance.BudgetInput{
			Currency:      "EUR",
			Total:         "500",
			WarnThreshold: 0.8,
			Categories: []finance.BudgetCategoryInput{
				{Name: "Travel", Limit: "200"},
			},
		}
		budget, err := agg.UpsertBudget(ctx, "prj-1", replacement, asAlice)
		require.NoError(t, err)

		assert.Equal(t, "EUR", budget.Currency)
		require.Len(t, budget.Categories, 1)
		assert.Equal(t, "Travel", budget.Categories[0].Name)
	})
}

func TestAggregator_UpsertBudget_AuditsReplacedRow(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// GIVEN: An existing budget
		// WHEN: Replacing it
		// THEN: The second audit event carries the replaced row as its before
		//       snapshot; the first (initial create) carries none

		agg := finance.NewAggregator(repo)
		ctx := context.Background()

		_, err := agg.UpsertBudget(ctx, "prj-1", designBudget(), asAlice)
		require.NoError(t, err)

		replacement := designBudget()
		replacement.Currency = "EUR"
		replacement.Total = "500"
		_, err = agg.UpsertBudget(ctx, "prj-1", replacement, asAlice)
		require.NoError(t, err)

		events, err := repo.ListAudit(ctx, finance.AuditFilter{
			ProjectID: "prj-1",
			Action:    finance.AuditBudgetUpdated,
		}, finance.SortAsc)
		require.NoError(t, err)
		require.Len(t, events, 2)

		assert.Nil(t, events[0].Before)
		require.NotNil(t, events[1].Before)
		assert.Equal(t, "1000", events[1].Before["total"])
		assert.Equal(t, "USD", events[1].Before["currency"])
		assert.Equal(t, "500", events[1].After["total"])
		assert.Equal(t, "EUR", events[1].After["currency"])
	})
}

func TestAggregator_UpsertBudget_Invalid(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		agg := finance.NewAggregator(repo)
		ctx := context.Background()

		in := designBudget()
		in.Currency = "usd"
		_, err := agg.UpsertBudget(ctx, "prj-1", in, asAlice)
		assert.ErrorIs(t, err, finance.ErrInvalidCurrency)

		in = designBudget()
		in.Total = "-10"
		_, err = agg.UpsertBudget(ctx, "prj-1", in, asAlice)
		assert.ErrorIs(t, err, finance.ErrInvalidAmount)

		in = designBudget()
		in.WarnThreshold = 1.5
		_, err = agg.UpsertBudget(ctx, "prj-1", in, asAlice)
		assert.ErrorIs(t, err, finance.ErrInvalidBudget)

		in = designBudget()
		in.Categories = append(in.Categories, finance.BudgetCategoryInput{Name: "Design", Limit: "1"})
		_, err = agg.UpsertBudget(ctx, "prj-1", in, asAlice)
		assert.ErrorIs(t, err, finance.ErrInvalidBudget)

		// Nothing was written along the way.
		_, err = agg.GetBudget(ctx, "prj-1")
		assert.ErrorIs(t, err, finance.ErrNotFound)
	})
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAggregator_GetBudget_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		agg := finance.NewAggregator(repo)

		_, err := agg.GetBudget(context.Background(), "missing")
		assert.ErrorIs(t, err, finance.ErrNotFound)
		assert.Equal(t, finance.CodeNotFound, finance.Code(err))
	})
}

func TestAggregator_GetBudget_OnlyApprovedCounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// GIVEN: Budget {USD, 1000, warn 0.5, Design/600} and three Design
		//        expenses of 100, 200 and 250
		// WHEN: Only the 250 one is walked new -> pending -> approved
		// THEN: spentTotal and Design.spent are exactly "250.00"

		ledger := finance.NewLedger(repo)
		agg := finance.NewAggregator(repo)
		ctx := context.Background()

		_, err := agg.UpsertBudget(ctx, "prj-1", designBudget(), asAlice)
		require.NoError(t, err)

		_, err = ledger.CreateExpense(ctx, designExpense("100"), asAlice)
		require.NoError(t, err)
		pending, err := ledger.CreateExpense(ctx, designExpense("200"), asAlice)
		require.NoError(t, err)
		_, err = ledger.UpdateExpense(ctx, pending.ID,
			finance.ExpensePatch{Status: statusPtr(finance.StatusPending)}, asAlice)
		require.NoError(t, err)

		approved, err := ledger.CreateExpense(ctx, designExpense("250"), asAlice)
		require.NoError(t, err)
		approveExpense(t, ledger, approved.ID)

		report, err := agg.GetBudget(ctx, "prj-1")
		require.NoError(t, err)

		assert.Equal(t, "250.00", report.SpentTotal)
		require.Len(t, report.CategoriesUsage, 1)
		assert.Equal(t, "Design", report.CategoriesUsage[0].Name)
		assert.Equal(t, "600.00", report.CategoriesUsage[0].Limit)
		assert.Equal(t, "250.00", report.CategoriesUsage[0].Spent)

		// warn line at 0.5 * 1000 = 500; 250 is below it.
		assert.Equal(t, "500.00", report.WarnAmount)
		assert.False(t, report.OverWarn)
	})
}

func TestAggregator_GetBudget_UndeclaredCategory(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// Approved spend in a category the budget does not declare counts
		// toward spentTotal but gets no category row.

		ledger := finance.NewLedger(repo)
		agg := finance.NewAggregator(repo)
		ctx := context.Background()

		_, err := agg.UpsertBudget(ctx, "prj-1", designBudget(), asAlice)
		require.NoError(t, err)

		in := designExpense("75")
		in.Category = "Snacks"
		exp, err := ledger.CreateExpense(ctx, in, asAlice)
		require.NoError(t, err)
		approveExpense(t, ledger, exp.ID)

		report, err := agg.GetBudget(ctx, "prj-1")
		require.NoError(t, err)

		assert.Equal(t, "75.00", report.SpentTotal)
		require.Len(t, report.CategoriesUsage, 1)
		assert.Equal(t, "0.00", report.CategoriesUsage[0].Spent)
	})
}

func TestAggregator_GetBudget_OverWarn(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		ledger := finance.NewLedger(repo)
		agg := finance.NewAggregator(repo)
		ctx := context.Background()

		_, err := agg.UpsertBudget(ctx, "prj-1", designBudget(), asAlice)
		require.NoError(t, err)

		exp, err := ledger.CreateExpense(ctx, designExpense("600"), asAlice)
		require.NoError(t, err)
		approveExpense(t, ledger, exp.ID)

		report, err := agg.GetBudget(ctx, "prj-1")
		require.NoError(t, err)
		assert.Equal(t, "600.00", report.SpentTotal)
		assert.True(t, report.OverWarn)
	})
}

func TestAggregator_GetBudget_ReadThrough(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo finance.Repository) {
		// Approving an expense after a read changes the next read with no
		// explicit invalidation anywhere.

		ledger := finance.NewLedger(repo)
		agg := finance.NewAggregator(repo)
		ctx := context.Background()

		_, err := agg.UpsertBudget(ctx, "prj-1", designBudget(), asAlice)
		require.NoError(t, err)

		exp, err := ledger.CreateExpense(ctx, designExpense("250"), asAlice)
		require.NoError(t, err)

		report, err := agg.GetBudget(ctx, "prj-1")
		require.NoError(t, err)
		assert.Equal(t, "0.00", report.SpentTotal)

		approveExpense(t, ledger, exp.ID)

		report, err = agg.GetBudget(ctx, "prj-1")
		require.NoError(t, err)
		assert.Equal(t, "250.00", report.SpentTotal)
	})
}
