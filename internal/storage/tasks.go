package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hearth/internal/core"
)

const taskColumns = `id, title, description, assigned_to_id, created_by_id, group_id, priority, status,
	points, created_at, due_date, recurrence, proof_photo_url, needs_approval, approved_by_id`

func scanTask(scan func(dest ...any) error) (*core.Task, error) {
	var t core.Task
	var createdAt, dueDate string
	err := scan(&t.ID, &t.Title, &t.Description, &t.AssignedToID, &t.CreatedByID, &t.GroupID,
		&t.Priority, &t.Status, &t.Points, &createdAt, &dueDate, &t.Recurrence,
		&t.ProofPhotoURL, &t.NeedsApproval, &t.ApprovedByID)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	t.DueDate = parseTime(dueDate)
	return &t, nil
}

func (r *SQLiteRepository) CreateTask(ctx context.Context, t *core.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = core.TaskPending
	}
	if t.Priority == "" {
		t.Priority = core.PriorityMedium
	}
	if t.NeedsApproval == "" {
		t.NeedsApproval = core.ApprovalNone
	}

	var dueDate string
	if !t.DueDate.IsZero() {
		dueDate = fmtTime(t.DueDate)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.AssignedToID, t.CreatedByID, t.GroupID, t.Priority, t.Status,
		t.Points, fmtTime(t.CreatedAt), dueDate, t.Recurrence, t.ProofPhotoURL, t.NeedsApproval, t.ApprovedByID)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetTask(ctx context.Context, id string) (*core.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTasks(ctx context.Context, groupID string, offset, limit int) ([]core.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE group_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, groupID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []core.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *SQLiteRepository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

// UpdateTaskStatus applies a status transition and returns the updated
// task plus the number of points awarded, if any.
//
// Points are awarded only on a non-completed to completed transition for
// tasks that need no proof approval. The award guard is the conditional
// UPDATE itself: replaying completed -> completed matches zero rows and
// awards nothing, so re-submitting a finished task cannot double-award.
// A completed recurring task schedules its next occurrence in the same
// transaction.
func (r *SQLiteRepository) UpdateTaskStatus(ctx context.Context, taskID string, status core.TaskStatus, actorID string) (*core.Task, int, error) {
	var awarded int
	var task *core.Task

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID).Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}

		completing := status == core.TaskCompleted && t.Status != core.TaskCompleted

		if completing {
			res, err := tx.ExecContext(ctx,
				`UPDATE tasks SET status = ? WHERE id = ? AND status != ?`,
				core.TaskCompleted, taskID, core.TaskCompleted)
			if err != nil {
				return fmt.Errorf("complete task: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			// n == 0 means a concurrent request completed the task
			// first; that request owns the award.
			if n == 1 {
				if t.NeedsApproval == core.ApprovalNone && t.Points > 0 {
					if _, err := tx.ExecContext(ctx,
						`UPDATE users SET current_points = current_points + ? WHERE id = ?`,
						t.Points, actorID); err != nil {
						return fmt.Errorf("award completion points: %w", err)
					}
					awarded = t.Points
				}

				if t.Recurrence != core.RecurrenceNone {
					base := t.DueDate
					if base.IsZero() {
						base = time.Now().UTC()
					}
					next := core.Task{
						ID:           uuid.New().String(),
						Title:        t.Title,
						Description:  t.Description,
						AssignedToID: t.AssignedToID,
						CreatedByID:  t.CreatedByID,
						GroupID:      t.GroupID,
						Priority:     t.Priority,
						Status:       core.TaskPending,
						Points:       t.Points,
						CreatedAt:    time.Now().UTC(),
						DueDate:      t.Recurrence.NextDue(base),
						Recurrence:   t.Recurrence,
					}
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
						next.ID, next.Title, next.Description, next.AssignedToID, next.CreatedByID,
						next.GroupID, next.Priority, next.Status, next.Points, fmtTime(next.CreatedAt),
						fmtTime(next.DueDate), next.Recurrence, "", core.ApprovalNone, ""); err != nil {
						return fmt.Errorf("schedule next occurrence: %w", err)
					}
				}
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tasks SET status = ? WHERE id = ?`, status, taskID); err != nil {
				return fmt.Errorf("update task status: %w", err)
			}
		}

		task, err = scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID).Scan)
		if err != nil {
			return fmt.Errorf("reload task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if awarded > 0 {
		slog.InfoContext(ctx, "Task completion awarded points",
			"task_id", taskID,
			"user_id", actorID,
			"points", awarded)
	}
	return task, awarded, nil
}

// SubmitProof attaches proof of completion and puts the task into the
// approval queue. The task counts as completed but no points move until
// the proof is approved.
func (r *SQLiteRepository) SubmitProof(ctx context.Context, taskID, photoURL string) (*core.Task, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET proof_photo_url = ?, needs_approval = ?, status = ? WHERE id = ?`,
		photoURL, core.ApprovalPending, core.TaskCompleted, taskID)
	if err != nil {
		return nil, fmt.Errorf("submit proof: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, core.ErrTaskNotFound
	}
	return r.GetTask(ctx, taskID)
}

// ResolveProof approves or rejects a pending proof. Approval awards the
// assignee's points exactly once; the conditional UPDATE on the pending
// approval state is the idempotency guard. Rejection puts the task back
// to pending so the assignee can reattempt it.
func (r *SQLiteRepository) ResolveProof(ctx context.Context, taskID, approverID string, approved bool) (*core.Task, int, error) {
	var awarded int
	var task *core.Task

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID).Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}

		if t.NeedsApproval != core.ApprovalPending {
			return core.ErrInvalidTransition
		}

		state := core.ApprovalRejected
		newStatus := core.TaskPending
		if approved {
			state = core.ApprovalApproved
			newStatus = core.TaskCompleted
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET needs_approval = ?, approved_by_id = ?, status = ? WHERE id = ? AND needs_approval = ?`,
			state, approverID, newStatus, taskID, core.ApprovalPending)
		if err != nil {
			return fmt.Errorf("resolve proof: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return core.ErrInvalidTransition
		}

		if approved && t.AssignedToID != "" && t.Points > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET current_points = current_points + ? WHERE id = ?`,
				t.Points, t.AssignedToID); err != nil {
				return fmt.Errorf("award proof points: %w", err)
			}
			awarded = t.Points
		}

		task, err = scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID).Scan)
		if err != nil {
			return fmt.Errorf("reload task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if awarded > 0 {
		slog.InfoContext(ctx, "Proof approval awarded points",
			"task_id", taskID,
			"assignee_id", task.AssignedToID,
			"points", awarded)
	}
	return task, awarded, nil
}
