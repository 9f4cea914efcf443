/*
repository.go - Storage port for the finance ledger

PURPOSE:
  Defines the interface between the ledger services and the database. The
  ledger depends only on this contract; the two implementations (in-memory
  maps and SQLite) are interchangeable.

KEY INTERFACES:
  Repository:   Expense/budget persistence, idempotency registration,
                audit append and query
  TxRepository: Repository plus WithTx for atomic multi-write operations

IDEMPOTENCY:
  RegisterIdempotencyKey is an optimistic insert: exactly one writer per
  (scope, key) observes created=true; everyone else gets the winner's
  expense id back. No locks. This is what keeps retried creates
  exactly-once across concurrent server processes sharing one persistent
  backend.

AUDIT:
  AppendAudit is a pure insert. It never fails for business reasons, only
  for storage faults. There is no update or delete for audit events.

SHARED-RESOURCE POLICY:
  The in-memory implementation is owned by a single process and must never
  be shared across processes. Only the persistent implementation is safe
  behind multiple service instances.

IMPLEMENTATIONS:
  - finance/store/memory.go: In-memory (tests, dev)
  - store/sqlite/sqlite.go:  SQLite (production)

SEE ALSO:
  - ledger.go: Primary consumer
  - budget.go, audit.go: Read-side consumers
*/
package finance

import "context"

// =============================================================================
// REPOSITORY - Storage contract consumed by the ledger services
// =============================================================================

type Repository interface {
	// CreateExpense inserts a new expense. The id is assigned by the caller.
	CreateExpense(ctx context.Context, e Expense) error

	// GetExpense returns the expense or (nil, nil) when absent.
	GetExpense(ctx context.Context, id string) (*Expense, error)

	// UpdateExpense replaces the stored row for e.ID.
	// Returns ErrNotFound if the expense does not exist.
	UpdateExpense(ctx context.Context, e Expense) error

	// ListExpenses returns expenses matching the filter, ordered by CreatedAt.
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, error)

	// PutBudget replaces the budget row for b.ProjectID wholesale.
	PutBudget(ctx context.Context, b Budget) error

	// GetBudget returns the budget or (nil, nil) when absent.
	GetBudget(ctx context.Context, projectID string) (*Budget, error)

	// RegisterIdempotencyKey records key -> expenseID within scope.
	// If the key is new: (true, "", nil).
	// If already registered: (false, winnerExpenseID, nil).
	// The insert must be atomic with respect to concurrent registrations.
	RegisterIdempotencyKey(ctx context.Context, scope, key, expenseID string) (created bool, existingID string, err error)

	// AppendAudit inserts an audit event. Append-only; no update, no delete.
	AppendAudit(ctx context.Context, ev AuditEvent) error

	// ListAudit returns audit events matching the filter, sorted by
	// CreatedAt in the given order.
	ListAudit(ctx context.Context, f AuditFilter, order SortOrder) ([]AuditEvent, error)
}

// =============================================================================
// TRANSACTIONAL REPOSITORY
// =============================================================================

// TxRepository wraps Repository with transaction support. The ledger uses
// this, when available, to commit an expense write together with its audit
// event so a fault between the two cannot strand a mutation without its
// audit entry.
type TxRepository interface {
	Repository

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// runInTx executes fn transactionally when repo supports it, directly
// otherwise. The base contract does not guarantee atomicity across the two
// writes; this is the best-effort upgrade.
func runInTx(ctx context.Context, repo Repository, fn func(Repository) error) error {
	if txr, ok := repo.(TxRepository); ok {
		return txr.WithTx(ctx, fn)
	}
	return fn(repo)
}
