/*
Package sqlite provides the SQLite-backed implementation of the finance
repository.

PURPOSE:
  Implements finance.Repository and finance.TxRepository using SQLite. The
  same patterns apply to PostgreSQL - only minor SQL dialect differences;
  the schema avoids SQLite-only features for that reason.

IDEMPOTENCY:
  idempotency_keys carries a UNIQUE(scope, key) index. Registration is an
  optimistic INSERT: when two writers race, exactly one insert succeeds and
  the loser reads the winner's expense id back. No locks, which is what
  lets multiple server processes share one database safely.

AUDIT:
  audit_events is append-only. No UPDATE or DELETE statements exist for it
  anywhere in this package. The (project_id, created_at) index supports
  range filtering and chronological sort.

TRANSACTIONS:
  WithTx wraps multi-write operations (expense + audit event) in one
  database transaction so a fault between the two cannot strand a mutation
  without its audit entry.

WAL MODE:
  The database is opened with WAL so readers do not block behind the single
  writer, and crash recovery is cleaner.

USAGE:
  repo, err := sqlite.New("./data/finance.db")   // ":memory:" for tests
  if err != nil { ... }
  defer repo.Close()
  ledger := finance.NewLedger(repo)

SEE ALSO:
  - finance/repository.go: Interface definitions
  - finance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/5123082-wq/collabstep-pro-sub006/finance"
)

// Store implements finance.TxRepository on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Expenses (status lifecycle; amount/currency frozen at creation)
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Aggregation hot path: approved expenses per project
	CREATE INDEX IF NOT EXISTS idx_expenses_project_status
		ON expenses(project_id, status);
	CREATE INDEX IF NOT EXISTS idx_expenses_created_at
		ON expenses(created_at);

	-- Budgets (one row per project, replaced wholesale)
	CREATE TABLE IF NOT EXISTS budgets (
		project_id TEXT PRIMARY KEY,
		currency TEXT NOT NULL,
		total TEXT NOT NULL,
		warn_threshold REAL NOT NULL DEFAULT 0,
		categories_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Idempotency registrations. The UNIQUE index is the whole mechanism:
	-- racing writers collide here and exactly one wins.
	CREATE TABLE IF NOT EXISTS idempotency_keys (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		expense_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_idempotency_scope_key
		ON idempotency_keys(scope, key);

	-- Audit trail (append-only; no UPDATE/DELETE in this package)
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		before_json TEXT,
		after_json TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_project_created
		ON audit_events(project_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same helpers serve
// plain calls and WithTx views.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// EXPENSES (finance.Repository)
// =============================================================================

func (s *Store) CreateExpense(ctx context.Context, e finance.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createExpense(ctx, s.db, e)
}

func createExpense(ctx context.Context, db dbtx, e finance.Expense) error {
	query := `
		INSERT INTO expenses
		(id, workspace_id, project_id, date, amount, currency, category, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.WorkspaceID,
		e.ProjectID,
		e.Date.UTC().Format(time.RFC3339),
		e.Amount.String(),
		e.Currency,
		e.Category,
		e.Description,
		string(e.Status),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*finance.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getExpense(ctx, s.db, id)
}

const expenseColumns = `id, workspace_id, project_id, date, amount, currency, category, description, status, created_at, updated_at`

func getExpense(ctx context.Context, db dbtx, id string) (*finance.Expense, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)

	e, err := scanExpenseRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e finance.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateExpense(ctx, s.db, e)
}

func updateExpense(ctx context.Context, db dbtx, e finance.Expense) error {
	// amount/currency/scoping columns are deliberately absent here.
	query := `
		UPDATE expenses
		SET category = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		e.Category,
		e.Description,
		string(e.Status),
		e.UpdatedAt.UTC().Format(time.RFC3339),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: expense %s", finance.ErrNotFound, e.ID)
	}
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, f finance.ExpenseFilter) ([]finance.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listExpenses(ctx, s.db, f)
}

func listExpenses(ctx context.Context, db dbtx, f finance.ExpenseFilter) ([]finance.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses`
	var conds []string
	var args []any
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// rowid breaks ties between same-second timestamps in insertion order.
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []finance.Expense
	for rows.Next() {
		e, err := scanExpenseRow(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpenseRow(row rowScanner) (*finance.Expense, error) {
	var (
		e                    finance.Expense
		date, amount, status string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&e.ID, &e.WorkspaceID, &e.ProjectID, &date, &amount, &e.Currency,
		&e.Category, &e.Description, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = finance.ExpenseStatus(status)
	e.Date, _ = time.Parse(time.RFC3339, date)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount %q: %w", amount, err)
	}
	return &e, nil
}

// =============================================================================
// BUDGETS
// =============================================================================

func (s *Store) PutBudget(ctx context.Context, b finance.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putBudget(ctx, s.db, b)
}

type categoryJSON struct {
	Name  string `json:"name"`
	Limit string `json:"limit"`
}

func putBudget(ctx context.Context, db dbtx, b finance.Budget) error {
	categories := make([]categoryJSON, len(b.Categories))
	for i, c := range b.Categories {
		categories[i] = categoryJSON{Name: c.Name, Limit: c.Limit.String()}
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO budgets (project_id, currency, total, warn_threshold, categories_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			currency = excluded.currency,
			total = excluded.total,
			warn_threshold = excluded.warn_threshold,
			categories_json = excluded.categories_json,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, query,
		b.ProjectID,
		b.Currency,
		b.Total.String(),
		b.WarnThreshold,
		string(categoriesJSON),
		b.CreatedAt.UTC().Format(time.RFC3339),
		b.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert budget: %w", err)
	}
	return nil
}

func (s *Store) GetBudget(ctx context.Context, projectID string) (*finance.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBudget(ctx, s.db, projectID)
}

func getBudget(ctx context.Context, db dbtx, projectID string) (*finance.Budget, error) {
	var (
		b                     finance.Budget
		total, categoriesJSON string
		createdAt, updatedAt  string
	)
	err := db.QueryRowContext(ctx,
		`SELECT project_id, currency, total, warn_threshold, categories_json, created_at, updated_at
		 FROM budgets WHERE project_id = ?`, projectID,
	).Scan(&b.ProjectID, &b.Currency, &total, &b.WarnThreshold, &categoriesJSON, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	b.Total, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored total %q: %w", total, err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	var categories []categoryJSON
	if err := json.Unmarshal([]byte(categoriesJSON), &categories); err != nil {
		return nil, fmt.Errorf("failed to parse stored categories: %w", err)
	}
	b.Categories = make([]finance.BudgetCategory, len(categories))
	for i, c := range categories {
		limit, err := decimal.NewFromString(c.Limit)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored category limit %q: %w", c.Limit, err)
		}
		b.Categories[i] = finance.BudgetCategory{Name: c.Name, Limit: limit}
	}
	return &b, nil
}

// =============================================================================
// IDEMPOTENCY - Optimistic insert, conflict means already done
// =============================================================================

func (s *Store) RegisterIdempotencyKey(ctx context.Context, scope, key, expenseID string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return registerIdempotencyKey(ctx, s.db, scope, key, expenseID)
}

func registerIdempotencyKey(ctx context.Context, db dbtx, scope, key, expenseID string) (bool, string, error) {
	_, err := db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (scope, key, expense_id, created_at) VALUES (?, ?, ?, ?)`,
		scope, key, expenseID, time.Now().UTC().Format(time.RFC3339),
	)
	if err == nil {
		return true, "", nil
	}
	if !isUniqueConstraintError(err) {
		return false, "", fmt.Errorf("failed to register idempotency key: %w", err)
	}

	// Lost the race (or this is a retry): read the winner's expense id.
	var existingID string
	err = db.QueryRowContext(ctx,
		`SELECT expense_id FROM idempotency_keys WHERE scope = ? AND key = ?`,
		scope, key,
	).Scan(&existingID)
	if err != nil {
		return false, "", fmt.Errorf("failed to resolve idempotency conflict: %w", err)
	}
	return false, existingID, nil
}

// =============================================================================
// AUDIT - Append-only
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, ev finance.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, ev)
}

func appendAudit(ctx context.Context, db dbtx, ev finance.AuditEvent) error {
	beforeJSON, err := marshalSnapshot(ev.Before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalSnapshot(ev.After)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_events (id, project_id, action, actor_id, before_json, after_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		ev.ID,
		ev.ProjectID,
		string(ev.Action),
		ev.ActorID,
		beforeJSON,
		afterJSON,
		ev.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func marshalSnapshot(snapshot map[string]any) (sql.NullString, error) {
	if snapshot == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func (s *Store) ListAudit(ctx context.Context, f finance.AuditFilter, order finance.SortOrder) ([]finance.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAudit(ctx, s.db, f, order)
}

func listAudit(ctx context.Context, db dbtx, f finance.AuditFilter, order finance.SortOrder) ([]finance.AuditEvent, error) {
	query := `SELECT id, project_id, action, actor_id, before_json, after_json, created_at FROM audit_events`
	var conds []string
	var args []any
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.DateFrom != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.DateFrom.UTC().Format(time.RFC3339))
	}
	if f.DateTo != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.DateTo.UTC().Format(time.RFC3339))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// rowid breaks ties between same-second timestamps in insertion order.
	if order == finance.SortAsc {
		query += " ORDER BY created_at ASC, rowid ASC"
	} else {
		query += " ORDER BY created_at DESC, rowid DESC"
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []finance.AuditEvent
	for rows.Next() {
		var (
			ev                    finance.AuditEvent
			action, createdAt     string
			beforeJSON, afterJSON sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.ProjectID, &action, &ev.ActorID, &beforeJSON, &afterJSON, &createdAt); err != nil {
			return nil, err
		}
		ev.Action = finance.AuditAction(action)
		ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if beforeJSON.Valid {
			json.Unmarshal([]byte(beforeJSON.String), &ev.Before)
		}
		if afterJSON.Valid {
			json.Unmarshal([]byte(afterJSON.String), &ev.After)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// TRANSACTIONS (finance.TxRepository)
// =============================================================================

// WithTx executes fn within a database transaction. Rolls back if fn
// returns an error, commits otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(finance.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txRepo serves repository calls on an open transaction. It never touches
// the store mutex: WithTx already holds it.
type txRepo struct {
	tx *sql.Tx
}

func (t *txRepo) CreateExpense(ctx context.Context, e finance.Expense) error {
	return createExpense(ctx, t.tx, e)
}

func (t *txRepo) GetExpense(ctx context.Context, id string) (*finance.Expense, error) {
	return getExpense(ctx, t.tx, id)
}

func (t *txRepo) UpdateExpense(ctx context.Context, e finance.Expense) error {
	return updateExpense(ctx, t.tx, e)
}

func (t *txRepo) ListExpenses(ctx context.Context, f finance.ExpenseFilter) ([]finance.Expense, error) {
	return listExpenses(ctx, t.tx, f)
}

func (t *txRepo) PutBudget(ctx context.Context, b finance.Budget) error {
	return putBudget(ctx, t.tx, b)
}

func (t *txRepo) GetBudget(ctx context.Context, projectID string) (*finance.Budget, error) {
	return getBudget(ctx, t.tx, projectID)
}

func (t *txRepo) RegisterIdempotencyKey(ctx context.Context, scope, key, expenseID string) (bool, string, error) {
	return registerIdempotencyKey(ctx, t.tx, scope, key, expenseID)
}

func (t *txRepo) AppendAudit(ctx context.Context, ev finance.AuditEvent) error {
	return appendAudit(ctx, t.tx, ev)
}

func (t *txRepo) ListAudit(ctx context.Context, f finance.AuditFilter, order finance.SortOrder) ([]finance.AuditEvent, error) {
	return listAudit(ctx, t.tx, f, order)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"expenses", "budgets", "idempotency_keys", "audit_events"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
