package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hearth/internal/core"
)

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e *core.Expense) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, description, amount, category, is_subscription, billing_day, paid_by_id, group_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Description, e.Amount, e.Category, e.IsSubscription, e.BillingDay, e.PaidByID, e.GroupID, fmtTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"group_id", e.GroupID,
		"amount", e.Amount,
		"category", e.Category,
		"subscription", e.IsSubscription)
	return nil
}

func scanExpenses(rows *sql.Rows) ([]core.Expense, error) {
	var expenses []core.Expense
	for rows.Next() {
		var e core.Expense
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &e.Category, &e.IsSubscription,
			&e.BillingDay, &e.PaidByID, &e.GroupID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

const expenseColumns = `id, description, amount, category, is_subscription, billing_day, paid_by_id, group_id, created_at`

// ListExpenses returns the group's expenses newest-first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, groupID string, offset, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE group_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		groupID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// AllExpenses returns every expense in the group in insertion order, the
// snapshot the balance calculator works from.
func (r *SQLiteRepository) AllExpenses(ctx context.Context, groupID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE group_id = ?
		 ORDER BY created_at, rowid`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list all expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// DrainGroupExpenses reads every expense in the group and deletes them
// in the same transaction, so the returned snapshot is exactly the set
// that was cleared. An expense recorded concurrently either makes it
// into the snapshot or survives for the next period, never both.
// Destructive and irreversible.
func (r *SQLiteRepository) DrainGroupExpenses(ctx context.Context, groupID string) ([]core.Expense, error) {
	var expenses []core.Expense
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE group_id = ?
			 ORDER BY created_at, rowid`, groupID)
		if err != nil {
			return fmt.Errorf("list group expenses: %w", err)
		}
		expenses, err = scanExpenses(rows)
		rows.Close()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE group_id = ?`, groupID); err != nil {
			return fmt.Errorf("delete group expenses: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Group expenses settled", "group_id", groupID, "cleared", len(expenses))
	return expenses, nil
}

// LatestSubscriptions returns the most recent posting of each distinct
// subscription (group, description, billing day). The billing processor
// decides which of them are due.
func (r *SQLiteRepository) LatestSubscriptions(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE is_subscription = 1
		   AND created_at = (
		     SELECT MAX(e2.created_at) FROM expenses e2
		     WHERE e2.is_subscription = 1
		       AND e2.group_id = expenses.group_id
		       AND e2.description = expenses.description
		       AND e2.billing_day = expenses.billing_day
		   )
		 ORDER BY group_id, description`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}
