// Package store provides the in-memory Repository implementation.
//
// The memory backend is an explicitly constructed, injectable value, not a
// module-level singleton: tests build one per case (or call Reset) so state
// never leaks across runs. It is owned by a single process and must never
// be shared across processes; the SQLite backend is the one safe to put
// behind multiple service instances.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/5123082-wq/collabstep-pro-sub006/finance"
)

// =============================================================================
// MEMORY REPOSITORY - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	expenses    map[string]finance.Expense
	budgets     map[string]finance.Budget
	idempotency map[idemKey]string // (scope, key) -> expense id
	audit       []finance.AuditEvent
	seq         int // insertion order tiebreaker for expense listing
	order       map[string]int
}

type idemKey struct {
	Scope string
	Key   string
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.expenses = make(map[string]finance.Expense)
	m.budgets = make(map[string]finance.Budget)
	m.idempotency = make(map[idemKey]string)
	m.audit = nil
	m.order = make(map[string]int)
	m.seq = 0
}

// Reset clears all data. For tests and dev tooling.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// =============================================================================
// EXPENSES
// =============================================================================

func (m *Memory) CreateExpense(_ context.Context, e finance.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createExpenseLocked(e)
}

func (m *Memory) createExpenseLocked(e finance.Expense) error {
	if _, exists := m.expenses[e.ID]; exists {
		return fmt.Errorf("expense %s already exists", e.ID)
	}
	m.expenses[e.ID] = e
	m.order[e.ID] = m.seq
	m.seq++
	return nil
}

func (m *Memory) GetExpense(_ context.Context, id string) (*finance.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.expenses[id]
	if !ok {
		return nil, nil
	}
	// Copy out so callers never hold an aliased view of stored state.
	return &e, nil
}

func (m *Memory) UpdateExpense(_ context.Context, e finance.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateExpenseLocked(e)
}

func (m *Memory) updateExpenseLocked(e finance.Expense) error {
	if _, ok := m.expenses[e.ID]; !ok {
		return fmt.Errorf("%w: expense %s", finance.ErrNotFound, e.ID)
	}
	m.expenses[e.ID] = e
	return nil
}

func (m *Memory) ListExpenses(_ context.Context, f finance.ExpenseFilter) ([]finance.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpensesLocked(f)
}

func (m *Memory) listExpensesLocked(f finance.ExpenseFilter) ([]finance.Expense, error) {
	var result []finance.Expense
	for _, e := range m.expenses {
		if f.ProjectID != "" && e.ProjectID != f.ProjectID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return m.order[result[i].ID] < m.order[result[j].ID]
	})
	return result, nil
}

// =============================================================================
// BUDGETS
// =============================================================================

func (m *Memory) PutBudget(_ context.Context, b finance.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putBudgetLocked(b)
}

func (m *Memory) putBudgetLocked(b finance.Budget) error {
	b.Categories = append([]finance.BudgetCategory(nil), b.Categories...)
	m.budgets[b.ProjectID] = b
	return nil
}

func (m *Memory) GetBudget(_ context.Context, projectID string) (*finance.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.budgets[projectID]
	if !ok {
		return nil, nil
	}
	b.Categories = append([]finance.BudgetCategory(nil), b.Categories...)
	return &b, nil
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

// RegisterIdempotencyKey is trivially atomic here: the whole map lives
// behind one mutex inside one process.
func (m *Memory) RegisterIdempotencyKey(_ context.Context, scope, key, expenseID string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerLocked(scope, key, expenseID)
}

func (m *Memory) registerLocked(scope, key, expenseID string) (bool, string, error) {
	k := idemKey{Scope: scope, Key: key}
	if existing, ok := m.idempotency[k]; ok {
		return false, existing, nil
	}
	m.idempotency[k] = expenseID
	return true, "", nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, ev finance.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(ev)
}

func (m *Memory) appendAuditLocked(ev finance.AuditEvent) error {
	m.audit = append(m.audit, ev)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, f finance.AuditFilter, order finance.SortOrder) ([]finance.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAuditLocked(f, order)
}

func (m *Memory) listAuditLocked(f finance.AuditFilter, order finance.SortOrder) ([]finance.AuditEvent, error) {
	var result []finance.AuditEvent
	for _, ev := range m.audit {
		if f.ProjectID != "" && ev.ProjectID != f.ProjectID {
			continue
		}
		if f.Action != "" && ev.Action != f.Action {
			continue
		}
		if f.DateFrom != nil && ev.CreatedAt.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && ev.CreatedAt.After(*f.DateTo) {
			continue
		}
		result = append(result, ev)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if order == finance.SortAsc {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn under the store lock against a transactional view.
// On error the pre-transaction snapshot is restored, so multi-write
// operations (expense + audit event) are all-or-nothing.
func (m *Memory) WithTx(_ context.Context, fn func(finance.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	expenses    map[string]finance.Expense
	budgets     map[string]finance.Budget
	idempotency map[idemKey]string
	audit       []finance.AuditEvent
	order       map[string]int
	seq         int
}

func (m *Memory) snapshot() memorySnapshot {
	expenses := make(map[string]finance.Expense, len(m.expenses))
	for k, v := range m.expenses {
		expenses[k] = v
	}
	budgets := make(map[string]finance.Budget, len(m.budgets))
	for k, v := range m.budgets {
		budgets[k] = v
	}
	idempotency := make(map[idemKey]string, len(m.idempotency))
	for k, v := range m.idempotency {
		idempotency[k] = v
	}
	order := make(map[string]int, len(m.order))
	for k, v := range m.order {
		order[k] = v
	}
	return memorySnapshot{
		expenses:    expenses,
		budgets:     budgets,
		idempotency: idempotency,
		audit:       append([]finance.AuditEvent(nil), m.audit...),
		order:       order,
		seq:         m.seq,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.expenses = s.expenses
	m.budgets = s.budgets
	m.idempotency = s.idempotency
	m.audit = s.audit
	m.order = s.order
	m.seq = s.seq
}

// txView runs repository calls against the already-locked parent.
type txView struct {
	parent *Memory
}

func (tv *txView) CreateExpense(_ context.Context, e finance.Expense) error {
	return tv.parent.createExpenseLocked(e)
}

func (tv *txView) GetExpense(_ context.Context, id string) (*finance.Expense, error) {
	e, ok := tv.parent.expenses[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (tv *txView) UpdateExpense(_ context.Context, e finance.Expense) error {
	return tv.parent.updateExpenseLocked(e)
}

func (tv *txView) ListExpenses(_ context.Context, f finance.ExpenseFilter) ([]finance.Expense, error) {
	return tv.parent.listExpensesLocked(f)
}

func (tv *txView) PutBudget(_ context.Context, b finance.Budget) error {
	return tv.parent.putBudgetLocked(b)
}

func (tv *txView) GetBudget(_ context.Context, projectID string) (*finance.Budget, error) {
	b, ok := tv.parent.budgets[projectID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (tv *txView) RegisterIdempotencyKey(_ context.Context, scope, key, expenseID string) (bool, string, error) {
	return tv.parent.registerLocked(scope, key, expenseID)
}

func (tv *txView) AppendAudit(_ context.Context, ev finance.AuditEvent) error {
	return tv.parent.appendAuditLocked(ev)
}

func (tv *txView) ListAudit(_ context.Context, f finance.AuditFilter, order finance.SortOrder) ([]finance.AuditEvent, error) {
	return tv.parent.listAuditLocked(f, order)
}
