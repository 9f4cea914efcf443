/*
Package finance implements the project finance ledger.

PURPOSE:
  This package contains the domain types and services for recording project
  expenses against budgets: the expense lifecycle, idempotent writes, spend
  aggregation, and an append-only audit trail of every mutation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Expense: A declarative spend record with a status lifecycle
  - Budget: Per-project ceiling plus category limits (one row per project)
  - AuditEvent: Immutable record of a mutation (before/after, actor, action)
  - WriteContext: Actor identity and optional idempotency key for a mutation

DESIGN PRINCIPLES:
  1. Precision: Amounts use decimal.Decimal, never float
  2. Immutability: Audit events are never updated; expense amount/currency
     are frozen at creation
  3. Derivation: Spend totals are always recomputed from approved expenses,
     never stored
  4. Idempotency: Retried creates with the same key return the original record

USAGE:
  ledger := finance.NewLedger(repo)
  exp, err := ledger.CreateExpense(ctx, finance.CreateExpenseInput{
      WorkspaceID: "ws-1",
      ProjectID:   "prj-1",
      Amount:      "250",
      Currency:    "USD",
      Category:    "Design",
  }, finance.WriteContext{ActorID: "user-1", IdempotencyKey: "req-42"})

SEE ALSO:
  - validate.go: Currency/amount and status-transition validators
  - ledger.go: Create/update orchestration
  - budget.go: Budget upsert and read-through aggregation
  - audit.go: Audit trail queries and CSV export
  - repository.go: Storage port implemented by finance/store and store/sqlite
*/
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EXPENSE - Spend record with a status lifecycle
// =============================================================================

type ExpenseStatus string

const (
	StatusNew      ExpenseStatus = "new"
	StatusPending  ExpenseStatus = "pending"
	StatusApproved ExpenseStatus = "approved"
	StatusRejected ExpenseStatus = "rejected"
)

// IsTerminal reports whether no further status transitions are allowed.
// Rejected expenses cannot be resubmitted.
func (s ExpenseStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Expense is a single declarative spend record. Amount and Currency are
// immutable after creation; only Status, Description and Category may change.
type Expense struct {
	ID          string
	WorkspaceID string
	ProjectID   string

	// Date is the economic date of the spend (caller-supplied),
	// distinct from CreatedAt.
	Date time.Time

	Amount   decimal.Decimal
	Currency string

	Category    string
	Description string
	Status      ExpenseStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateExpenseInput is the payload for Ledger.CreateExpense.
// Amount arrives as a string and is parsed/validated by the ledger.
type CreateExpenseInput struct {
	WorkspaceID string
	ProjectID   string
	Date        time.Time
	Amount      string
	Currency    string
	Category    string
	Description string
}

// ExpensePatch carries the mutable fields for Ledger.UpdateExpense.
// Nil pointers mean "leave unchanged".
type ExpensePatch struct {
	Status      *ExpenseStatus
	Description *string
	Category    *string
}

// ExpenseFilter narrows ListExpenses.
type ExpenseFilter struct {
	ProjectID string        // empty = all projects
	Status    ExpenseStatus // empty = all statuses
}

// =============================================================================
// BUDGET - Per-project ceiling and category limits
// =============================================================================

// BudgetCategory is a named spend limit within a budget. Names are unique
// within a budget; declaration order is preserved.
type BudgetCategory struct {
	Name  string
	Limit decimal.Decimal
}

// Budget is the stored row for a project. Spend figures are never stored
// here; they are derived on read (see BudgetReport).
type Budget struct {
	ProjectID     string
	Currency      string
	Total         decimal.Decimal
	WarnThreshold float64 // fraction in [0,1]
	Categories    []BudgetCategory
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BudgetInput is the payload for Aggregator.UpsertBudget.
// Upsert is a wholesale replace, not a merge.
type BudgetInput struct {
	Currency      string
	Total         string
	WarnThreshold float64
	Categories    []BudgetCategoryInput
}

type BudgetCategoryInput struct {
	Name  string
	Limit string
}

// CategoryUsage is the derived spend for one declared budget category.
// Monetary figures are fixed 2-decimal strings.
type CategoryUsage struct {
	Name  string
	Limit string
	Spent string
}

// BudgetReport is the stored Budget plus figures derived from approved
// expenses at read time.
type BudgetReport struct {
	Budget
	SpentTotal      string
	CategoriesUsage []CategoryUsage

	// WarnAmount is Total * WarnThreshold; OverWarn reports whether spend
	// has crossed that line.
	WarnAmount string
	OverWarn   bool
}

// =============================================================================
// AUDIT EVENT - Immutable record of a mutation
// =============================================================================

type AuditAction string

const (
	AuditExpenseCreated AuditAction = "expense.created"
	AuditExpenseUpdated AuditAction = "expense.updated"
	AuditBudgetUpdated  AuditAction = "project_budget.updated"
)

// AuditEvent records who changed what. Append-only: there is no update or
// delete anywhere in the public contract.
type AuditEvent struct {
	ID        string
	ProjectID string
	Action    AuditAction
	ActorID   string
	CreatedAt time.Time

	// Before is the prior snapshot (absent on creates); After is the new one.
	Before map[string]any
	After  map[string]any
}

// AuditFilter narrows AuditTrail.List and ExportCSV.
type AuditFilter struct {
	ProjectID string
	Action    AuditAction
	DateFrom  *time.Time
	DateTo    *time.Time
}

// SortOrder controls audit listing order by CreatedAt.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// =============================================================================
// WRITE CONTEXT - Actor identity and idempotency for mutations
// =============================================================================

// WriteContext accompanies every mutation. The caller is already
// authenticated and authorized; the ledger only records who acted.
type WriteContext struct {
	ActorID string

	// IdempotencyKey, when set on CreateExpense, makes the write exactly-once:
	// a retry with the same key returns the original expense and discards the
	// retried payload entirely.
	IdempotencyKey string
}

// =============================================================================
// SNAPSHOTS - Audit before/after payloads
// =============================================================================

// expenseSnapshot renders an expense for audit storage. Amounts are kept as
// plain decimal strings so CSV export can pull them back out.
func expenseSnapshot(e Expense) map[string]any {
	return map[string]any{
		"id":          e.ID,
		"workspaceId": e.WorkspaceID,
		"projectId":   e.ProjectID,
		"date":        e.Date.UTC().Format(time.RFC3339),
		"amount":      e.Amount.String(),
		"currency":    e.Currency,
		"category":    e.Category,
		"description": e.Description,
		"status":      string(e.Status),
	}
}

func budgetSnapshot(b Budget) map[string]any {
	categories := make([]map[string]any, len(b.Categories))
	for i, c := range b.Categories {
		categories[i] = map[string]any{"name": c.Name, "limit": c.Limit.String()}
	}
	return map[string]any{
		"projectId":     b.ProjectID,
		"currency":      b.Currency,
		"total":         b.Total.String(),
		"warnThreshold": b.WarnThreshold,
		"categories":    categories,
	}
}
