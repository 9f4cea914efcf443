/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the finance API. These decouple the domain model
  from the wire contract: amounts travel as strings, dates as ISO strings,
  and derived budget figures appear only on responses.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Semantic validation (currency format, amount parsing, status machine)
  lives in the finance package; handlers only check that the JSON is
  well-formed and required fields are present.

SEE ALSO:
  - handlers.go: Uses these types
  - finance/types.go: The domain model behind them
*/
package api

import (
	"time"

	"github.com/5123082-wq/collabstep-pro-sub006/finance"
)

// =============================================================================
// EXPENSES
// =============================================================================

// ExpenseDTO represents an expense in API responses.
type ExpenseDTO struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	ProjectID   string `json:"projectId"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// CreateExpenseRequest is the request to record an expense. The project id
// comes from the URL; the actor id and idempotency key from headers.
type CreateExpenseRequest struct {
	WorkspaceID string `json:"workspaceId"`
	Date        string `json:"date,omitempty"` // YYYY-MM-DD or RFC3339
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateExpenseRequest carries the mutable expense fields. Absent fields
// are left unchanged.
type UpdateExpenseRequest struct {
	Status      *string `json:"status,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
}

// ExpenseListDTO wraps a list response.
type ExpenseListDTO struct {
	Items []ExpenseDTO `json:"items"`
}

// =============================================================================
// BUDGETS
// =============================================================================

// BudgetRequest is the request to upsert a project budget (full replace).
type BudgetRequest struct {
	Currency      string              `json:"currency"`
	Total         string              `json:"total"`
	WarnThreshold float64             `json:"warnThreshold"`
	Categories    []BudgetCategoryDTO `json:"categories"`
}

type BudgetCategoryDTO struct {
	Name  string `json:"name"`
	Limit string `json:"limit"`
}

// BudgetDTO represents a stored budget; derived fields are filled on reads.
type BudgetDTO struct {
	ProjectID     string              `json:"projectId"`
	Currency      string              `json:"currency"`
	Total         string              `json:"total"`
	WarnThreshold float64             `json:"warnThreshold"`
	Categories    []BudgetCategoryDTO `json:"categories"`
	UpdatedAt     string              `json:"updatedAt"`

	SpentTotal      string             `json:"spentTotal,omitempty"`
	CategoriesUsage []CategoryUsageDTO `json:"categoriesUsage,omitempty"`
	WarnAmount      string             `json:"warnAmount,omitempty"`
	OverWarn        bool               `json:"overWarn,omitempty"`
}

type CategoryUsageDTO struct {
	Name  string `json:"name"`
	Limit string `json:"limit"`
	Spent string `json:"spent"`
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEventDTO represents one audit trail entry.
type AuditEventDTO struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"projectId"`
	Action    string         `json:"action"`
	ActorID   string         `json:"actorId"`
	CreatedAt string         `json:"createdAt"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
}

// ErrorResponse is the standard error envelope. Code carries the ledger's
// stable identifier (INVALID_CURRENCY, NOT_FOUND, ...) when there is one.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toExpenseDTO(e finance.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:          e.ID,
		WorkspaceID: e.WorkspaceID,
		ProjectID:   e.ProjectID,
		Date:        e.Date.UTC().Format(time.RFC3339),
		Amount:      e.Amount.String(),
		Currency:    e.Currency,
		Category:    e.Category,
		Description: e.Description,
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toExpenseDTOs(expenses []finance.Expense) []ExpenseDTO {
	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	return dtos
}

func toBudgetDTO(b finance.Budget) BudgetDTO {
	categories := make([]BudgetCategoryDTO, len(b.Categories))
	for i, c := range b.Categories {
		categories[i] = BudgetCategoryDTO{Name: c.Name, Limit: c.Limit.String()}
	}
	return BudgetDTO{
		ProjectID:     b.ProjectID,
		Currency:      b.Currency,
		Total:         b.Total.String(),
		WarnThreshold: b.WarnThreshold,
		Categories:    categories,
		UpdatedAt:     b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBudgetReportDTO(r finance.BudgetReport) BudgetDTO {
	dto := toBudgetDTO(r.Budget)
	dto.SpentTotal = r.SpentTotal
	dto.WarnAmount = r.WarnAmount
	dto.OverWarn = r.OverWarn
	dto.CategoriesUsage = make([]CategoryUsageDTO, len(r.CategoriesUsage))
	for i, u := range r.CategoriesUsage {
		dto.CategoriesUsage[i] = CategoryUsageDTO{Name: u.Name, Limit: u.Limit, Spent: u.Spent}
	}
	return dto
}

func toAuditEventDTO(ev finance.AuditEvent) AuditEventDTO {
	return AuditEventDTO{
		ID:        ev.ID,
		ProjectID: ev.ProjectID,
		Action:    string(ev.Action),
		ActorID:   ev.ActorID,
		CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339),
		Before:    ev.Before,
		After:     ev.After,
	}
}
