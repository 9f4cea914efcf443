/*
handlers.go - HTTP handlers for the finance ledger

PURPOSE:
  Exposes the ledger via REST. Handles HTTP request/response and JSON; all
  business rules live in the finance package.

ENDPOINTS:
  Expenses:
    POST   /api/projects/{projectID}/expenses   Record an expense
    PATCH  /api/expenses/{id}                   Update status/description/category
    GET    /api/expenses?project_id=            List expenses

  Budgets:
    PUT    /api/projects/{projectID}/budget     Upsert budget (full replace)
    GET    /api/projects/{projectID}/budget     Budget + derived spend figures

  Audit:
    GET    /api/audit                           Filtered, sorted audit trail
    GET    /api/audit/export                    Same, as CSV download

HEADERS:
  X-Actor-ID:      Authenticated actor identity, resolved upstream. The
                   ledger records it verbatim.
  Idempotency-Key: Optional on expense creation. Retries with the same key
                   return the originally created expense.

ERROR HANDLING:
  Ledger error codes map to HTTP status:
    INVALID_CURRENCY / INVALID_AMOUNT /
    INVALID_STATUS_TRANSITION / INVALID_BUDGET  -> 400
    NOT_FOUND                                   -> 404
    anything else (storage faults)              -> 500

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/5123082-wq/collabstep-pro-sub006/finance"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *finance.Ledger
	Aggregator *finance.Aggregator
	Audit      *finance.AuditTrail
	Log        *logrus.Logger
}

// NewHandler wires the three finance services over one repository.
func NewHandler(repo finance.Repository, log *logrus.Logger) *Handler {
	return &Handler{
		Ledger:     finance.NewLedger(repo),
		Aggregator: finance.NewAggregator(repo),
		Audit:      finance.NewAuditTrail(repo),
		Log:        log,
	}
}

func writeContext(r *http.Request) finance.WriteContext {
	return finance.WriteContext{
		ActorID:        r.Header.Get("X-Actor-ID"),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
}

// =============================================================================
// EXPENSES
// =============================================================================

// CreateExpense handles POST /api/projects/{projectID}/expenses.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		date, err = parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date (use YYYY-MM-DD or RFC3339)", "")
			return
		}
	}

	exp, err := h.Ledger.CreateExpense(r.Context(), finance.CreateExpenseInput{
		WorkspaceID: req.WorkspaceID,
		ProjectID:   projectID,
		Date:        date,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
	}, writeContext(r))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toExpenseDTO(*exp))
}

// UpdateExpense handles PATCH /api/expenses/{id}.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	patch := finance.ExpensePatch{
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Status != nil {
		status := finance.ExpenseStatus(*req.Status)
		patch.Status = &status
	}

	exp, err := h.Ledger.UpdateExpense(r.Context(), id, patch, writeContext(r))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toExpenseDTO(*exp))
}

// ListExpenses handles GET /api/expenses.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Ledger.ListExpenses(r.Context(), finance.ExpenseFilter{
		ProjectID: r.URL.Query().Get("project_id"),
		Status:    finance.ExpenseStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ExpenseListDTO{Items: toExpenseDTOs(expenses)})
}

// =============================================================================
// BUDGETS
// =============================================================================

// UpsertBudget handles PUT /api/projects/{projectID}/budget.
func (h *Handler) UpsertBudget(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req BudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	categories := make([]finance.BudgetCategoryInput, len(req.Categories))
	for i, c := range req.Categories {
		categories[i] = finance.BudgetCategoryInput{Name: c.Name, Limit: c.Limit}
	}

	budget, err := h.Aggregator.UpsertBudget(r.Context(), projectID, finance.BudgetInput{
		Currency:      req.Currency,
		Total:         req.Total,
		WarnThreshold: req.WarnThreshold,
		Categories:    categories,
	}, writeContext(r))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBudgetDTO(*budget))
}

// GetBudget handles GET /api/projects/{projectID}/budget.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	report, err := h.Aggregator.GetBudget(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBudgetReportDTO(*report))
}

// =============================================================================
// AUDIT
// =============================================================================

func auditQuery(r *http.Request) (finance.AuditFilter, finance.SortOrder, error) {
	q := r.URL.Query()
	f := finance.AuditFilter{
		ProjectID: q.Get("project_id"),
		Action:    finance.AuditAction(q.Get("action")),
	}
	if v := q.Get("date_from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, "", fmt.Errorf("invalid date_from")
		}
		f.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, "", fmt.Errorf("invalid date_to")
		}
		f.DateTo = &t
	}

	order := finance.SortOrder(q.Get("sort"))
	if order != "" && order != finance.SortAsc && order != finance.SortDesc {
		return f, "", fmt.Errorf("invalid sort (use asc or desc)")
	}
	return f, order, nil
}

// ListAuditEvents handles GET /api/audit.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter, order, err := auditQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	events, err := h.Audit.List(r.Context(), filter, order)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toAuditEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportAuditCSV handles GET /api/audit/export.
func (h *Handler) ExportAuditCSV(w http.ResponseWriter, r *http.Request) {
	filter, order, err := auditQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	if err := h.Audit.ExportCSV(r.Context(), w, filter, order); err != nil {
		// Headers may already be gone; log and give up on the response.
		h.Log.WithError(err).Error("audit csv export failed")
	}
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeLedgerError translates finance errors to HTTP. Storage faults
// propagate as opaque 500s; their detail goes to the log, not the client.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case finance.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error(), finance.Code(err))
	case finance.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), finance.Code(err))
	default:
		h.Log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("ledger operation failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
