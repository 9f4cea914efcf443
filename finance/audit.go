/*
audit.go - Audit trail queries and CSV export

PURPOSE:
  Read side of the append-only audit log. Writes happen inside the ledger
  and aggregator (one event per successful mutation, committed with the
  mutation); this file only filters, sorts, and exports.

WHY APPEND-ONLY?
  - Compliance: the trail must explain every state the ledger was ever in
  - Debugging: "who approved this and when?" is one query
  - Correctness: no update path means no way to rewrite history

CSV EXPORT:
  Rendered for compliance review. Each row carries a human-readable action
  label and, where the after snapshot has one, the expense amount.

SEE ALSO:
  - ledger.go, budget.go: The writers
  - repository.go: ListAudit contract (filter + sort pushed to the store)
*/
package finance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// =============================================================================
// AUDIT TRAIL
// =============================================================================

type AuditTrail struct {
	repo Repository
}

func NewAuditTrail(repo Repository) *AuditTrail {
	return &AuditTrail{repo: repo}
}

// List returns audit events matching the filter, sorted by CreatedAt.
// An empty order defaults to descending (newest first).
func (a *AuditTrail) List(ctx context.Context, f AuditFilter, order SortOrder) ([]AuditEvent, error) {
	if order == "" {
		order = SortDesc
	}
	return a.repo.ListAudit(ctx, f, order)
}

// actionLabels maps wire actions to the labels used in CSV export.
var actionLabels = map[AuditAction]string{
	AuditExpenseCreated: "Expense created",
	AuditExpenseUpdated: "Expense updated",
	AuditBudgetUpdated:  "Budget updated",
}

// ActionLabel returns a human-readable label for an action. Unknown actions
// fall back to the raw identifier.
func ActionLabel(action AuditAction) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}
	return string(action)
}

// ExportCSV writes the filtered, sorted trail as CSV. The amount column is
// extracted from the after snapshot when present (expense events), empty
// otherwise.
func (a *AuditTrail) ExportCSV(ctx context.Context, w io.Writer, f AuditFilter, order SortOrder) error {
	events, err := a.List(ctx, f, order)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "created_at", "project_id", "action", "action_label", "actor_id", "amount"}); err != nil {
		return err
	}
	for _, ev := range events {
		if err := cw.Write([]string{
			ev.ID,
			ev.CreatedAt.UTC().Format(time.RFC3339),
			ev.ProjectID,
			string(ev.Action),
			ActionLabel(ev.Action),
			ev.ActorID,
			snapshotAmount(ev.After),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// snapshotAmount pulls the amount out of an audit snapshot. Snapshots store
// amounts as decimal strings; numeric values can show up after a JSON
// round-trip through the persistent backend.
func snapshotAmount(snapshot map[string]any) string {
	if snapshot == nil {
		return ""
	}
	switch v := snapshot["amount"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}
