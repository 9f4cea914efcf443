/*
ledger.go - Expense ledger service

PURPOSE:
  Orchestrates expense creation and update: validation, idempotency,
  persistence, and the audit entry for every successful mutation.

CRITICAL INVARIANTS:
  1. VALIDATED FIRST: Nothing is written when currency/amount/transition
     validation fails
  2. EXACTLY-ONCE: A create retried under the same idempotency key returns
     the original expense; the retried payload is discarded even if it
     differs
  3. AUDITED: Every successful mutation produces exactly one audit event,
     committed with the mutation in one transaction where the backend
     supports it
  4. FROZEN MONEY: Amount and currency never change after creation

IDEMPOTENCY FLOW:
  CreateExpense registers the key optimistically before inserting the
  expense. If registration reports the key as taken, someone else (or an
  earlier retry) already created the record: the service fetches and
  returns the winner's expense instead of erroring. No locks involved.

CONCURRENCY:
  The service holds no state between calls. Everything durable lives in
  the Repository, so any number of service values may share one backend.

SEE ALSO:
  - validate.go: The pure validators used here
  - repository.go: The storage port
  - budget.go: Derived spend figures (read-through, nothing to invalidate)
*/
package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER SERVICE
// =============================================================================

// Ledger records expenses against a repository. Construct with NewLedger;
// the zero value is not usable.
type Ledger struct {
	repo  Repository
	clock func() time.Time
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, clock: time.Now}
}

// idempotencyScope namespaces caller-supplied keys so the same literal key
// used by different workspaces or actors cannot collide.
func idempotencyScope(workspaceID, actorID string) string {
	return workspaceID + "/" + actorID
}

// CreateExpense validates the payload and persists a new expense with
// status "new", appending an expense.created audit event.
//
// When ctxw.IdempotencyKey is set and was already registered, the payload
// is discarded and the originally created expense is returned unchanged.
func (l *Ledger) CreateExpense(ctx context.Context, in CreateExpenseInput, ctxw WriteContext) (*Expense, error) {
	if err := ValidateCurrency(in.Currency); err != nil {
		return nil, err
	}
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	now := l.clock().UTC()
	exp := Expense{
		ID:          uuid.NewString(),
		WorkspaceID: in.WorkspaceID,
		ProjectID:   in.ProjectID,
		Date:        in.Date.UTC(),
		Amount:      amount,
		Currency:    in.Currency,
		Category:    in.Category,
		Description: in.Description,
		Status:      StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Date.IsZero() {
		exp.Date = now
	}

	// winnerID is set when the idempotency key was already taken; the write
	// then becomes a no-op and we return the winner's record below.
	var winnerID string
	err = runInTx(ctx, l.repo, func(r Repository) error {
		if ctxw.IdempotencyKey != "" {
			scope := idempotencyScope(in.WorkspaceID, ctxw.ActorID)
			created, existingID, err := r.RegisterIdempotencyKey(ctx, scope, ctxw.IdempotencyKey, exp.ID)
			if err != nil {
				return err
			}
			if !created {
				winnerID = existingID
				return nil
			}
		}
		if err := r.CreateExpense(ctx, exp); err != nil {
			return err
		}
		return r.AppendAudit(ctx, AuditEvent{
			ID:        uuid.NewString(),
			ProjectID: exp.ProjectID,
			Action:    AuditExpenseCreated,
			ActorID:   ctxw.ActorID,
			CreatedAt: now,
			After:     expenseSnapshot(exp),
		})
	})
	if err != nil {
		return nil, err
	}

	if winnerID != "" {
		prior, err := l.repo.GetExpense(ctx, winnerID)
		if err != nil {
			return nil, err
		}
		if prior == nil {
			return nil, fmt.Errorf("%w: expense %s for idempotency key %s",
				ErrNotFound, winnerID, ctxw.IdempotencyKey)
		}
		return prior, nil
	}
	return &exp, nil
}

// UpdateExpense applies a patch to the mutable fields (status, description,
// category) and appends an expense.updated audit event carrying before and
// after snapshots. Status changes are checked against the lifecycle machine;
// a rejected transition leaves the record untouched.
func (l *Ledger) UpdateExpense(ctx context.Context, id string, patch ExpensePatch, ctxw WriteContext) (*Expense, error) {
	cur, err := l.repo.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("%w: expense %s", ErrNotFound, id)
	}

	updated := *cur
	if patch.Status != nil {
		if err := ValidateTransition(cur.Status, *patch.Status); err != nil {
			return nil, &TransitionError{ExpenseID: id, From: cur.Status, To: *patch.Status}
		}
		updated.Status = *patch.Status
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Category != nil {
		updated.Category = *patch.Category
	}
	updated.UpdatedAt = l.clock().UTC()

	err = runInTx(ctx, l.repo, func(r Repository) error {
		if err := r.UpdateExpense(ctx, updated); err != nil {
			return err
		}
		return r.AppendAudit(ctx, AuditEvent{
			ID:        uuid.NewString(),
			ProjectID: updated.ProjectID,
			Action:    AuditExpenseUpdated,
			ActorID:   ctxw.ActorID,
			CreatedAt: updated.UpdatedAt,
			Before:    expenseSnapshot(*cur),
			After:     expenseSnapshot(updated),
		})
	})
	if err != nil {
		return nil, err
	}

	// Return the copy we just committed, never the pre-mutation read.
	return &updated, nil
}

// ListExpenses is a plain read-through.
func (l *Ledger) ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, error) {
	return l.repo.ListExpenses(ctx, f)
}
