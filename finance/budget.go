/*
budget.go - Budget upsert and read-through spend aggregation

PURPOSE:
  Maintains the one-budget-per-project row and derives spend figures from
  approved expenses at read time. Nothing derived is ever stored, so there
  is no cache to invalidate when an expense changes status.

AGGREGATION RULES:
  - Only expenses with status "approved" count toward spend. New, pending
    and rejected expenses contribute nothing.
  - Category usage is computed for the categories declared on the budget,
    in declaration order. Expenses whose category matches no declared
    category still count toward spentTotal but appear in no category row.
  - All monetary outputs are fixed 2-decimal strings.

CURRENCY:
  Aggregation assumes single-currency projects: the budget currency governs
  and expense currencies are not converted or compared. Mixed-currency
  projects are the caller's responsibility to prevent.

SEE ALSO:
  - ledger.go: Status transitions that make expenses count here
  - repository.go: The storage port
*/
package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// BUDGET AGGREGATOR
// =============================================================================

// Aggregator owns the budget row and its derived figures.
type Aggregator struct {
	repo  Repository
	clock func() time.Time
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo, clock: time.Now}
}

// UpsertBudget replaces the budget for projectID wholesale (full replace,
// not a merge) and appends a project_budget.updated audit event. Category
// names must be unique within the budget.
func (a *Aggregator) UpsertBudget(ctx context.Context, projectID string, in BudgetInput, ctxw WriteContext) (*Budget, error) {
	if err := ValidateCurrency(in.Currency); err != nil {
		return nil, err
	}
	total, err := ParseAmount(in.Total)
	if err != nil {
		return nil, err
	}
	if in.WarnThreshold < 0 || in.WarnThreshold > 1 {
		return nil, fmt.Errorf("%w: warnThreshold %v outside [0,1]", ErrInvalidBudget, in.WarnThreshold)
	}

	seen := make(map[string]bool, len(in.Categories))
	categories := make([]BudgetCategory, 0, len(in.Categories))
	for _, c := range in.Categories {
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidBudget, c.Name)
		}
		seen[c.Name] = true
		limit, err := ParseAmount(c.Limit)
		if err != nil {
			return nil, err
		}
		categories = append(categories, BudgetCategory{Name: c.Name, Limit: limit})
	}

	now := a.clock().UTC()
	budget := Budget{
		ProjectID:     projectID,
		Currency:      in.Currency,
		Total:         total,
		WarnThreshold: in.WarnThreshold,
		Categories:    categories,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// On replace, keep the original CreatedAt and record the replaced row as
	// the audit event's before snapshot.
	var before map[string]any
	if prior, err := a.repo.GetBudget(ctx, projectID); err != nil {
		return nil, err
	} else if prior != nil {
		budget.CreatedAt = prior.CreatedAt
		before = budgetSnapshot(*prior)
	}

	err = runInTx(ctx, a.repo, func(r Repository) error {
		if err := r.PutBudget(ctx, budget); err != nil {
			return err
		}
		return r.AppendAudit(ctx, AuditEvent{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Action:    AuditBudgetUpdated,
			ActorID:   ctxw.ActorID,
			CreatedAt: now,
			Before:    before,
			After:     budgetSnapshot(budget),
		})
	})
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

// GetBudget returns the stored budget plus spend figures recomputed from
// the project's approved expenses. Non-approved spend never shows up here.
func (a *Aggregator) GetBudget(ctx context.Context, projectID string) (*BudgetReport, error) {
	budget, err := a.repo.GetBudget(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if budget == nil {
		return nil, fmt.Errorf("%w: budget for project %s", ErrNotFound, projectID)
	}

	approved, err := a.repo.ListExpenses(ctx, ExpenseFilter{
		ProjectID: projectID,
		Status:    StatusApproved,
	})
	if err != nil {
		return nil, err
	}

	spentTotal := decimal.Zero
	byCategory := make(map[string]decimal.Decimal)
	for _, e := range approved {
		spentTotal = spentTotal.Add(e.Amount)
		byCategory[e.Category] = byCategory[e.Category].Add(e.Amount)
	}

	usage := make([]CategoryUsage, len(budget.Categories))
	for i, c := range budget.Categories {
		usage[i] = CategoryUsage{
			Name:  c.Name,
			Limit: c.Limit.StringFixed(2),
			Spent: byCategory[c.Name].StringFixed(2),
		}
	}

	warnAmount := budget.Total.Mul(decimal.NewFromFloat(budget.WarnThreshold))
	return &BudgetReport{
		Budget:          *budget,
		SpentTotal:      spentTotal.StringFixed(2),
		CategoriesUsage: usage,
		WarnAmount:      warnAmount.StringFixed(2),
		OverWarn:        budget.WarnThreshold > 0 && spentTotal.GreaterThanOrEqual(warnAmount),
	}, nil
}
