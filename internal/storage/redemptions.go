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

func (r *SQLiteRepository) CreateReward(ctx context.Context, rw *core.Reward) error {
	if rw.ID == "" {
		rw.ID = uuid.New().String()
	}
	if rw.CreatedAt.IsZero() {
		rw.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rewards (id, title, description, cost, group_id, is_recurring, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rw.ID, rw.Title, rw.Description, rw.Cost, rw.GroupID, rw.IsRecurring, fmtTime(rw.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert reward: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetReward(ctx context.Context, id string) (*core.Reward, error) {
	var rw core.Reward
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, cost, group_id, is_recurring, created_at
		 FROM rewards WHERE id = ?`, id).
		Scan(&rw.ID, &rw.Title, &rw.Description, &rw.Cost, &rw.GroupID, &rw.IsRecurring, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrRewardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	rw.CreatedAt = parseTime(createdAt)
	return &rw, nil
}

func (r *SQLiteRepository) ListRewards(ctx context.Context, groupID string) ([]core.Reward, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, cost, group_id, is_recurring, created_at
		 FROM rewards WHERE group_id = ? ORDER BY created_at, rowid`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []core.Reward
	for rows.Next() {
		var rw core.Reward
		var createdAt string
		if err := rows.Scan(&rw.ID, &rw.Title, &rw.Description, &rw.Cost, &rw.GroupID, &rw.IsRecurring, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rw.CreatedAt = parseTime(createdAt)
		rewards = append(rewards, rw)
	}
	return rewards, rows.Err()
}

// ClaimReward debits the reward's cost from the user and creates the
// pending redemption in one transaction: either both take effect or
// neither does. The debit is a conditional in-place decrement, so a
// concurrent claim can never push the balance negative.
func (r *SQLiteRepository) ClaimReward(ctx context.Context, userID, rewardID string) (*core.Redemption, error) {
	var red *core.Redemption
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var cost int
		var groupID string
		err := tx.QueryRowContext(ctx,
			`SELECT cost, group_id FROM rewards WHERE id = ?`, rewardID).Scan(&cost, &groupID)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrRewardNotFound
		}
		if err != nil {
			return fmt.Errorf("get reward: %w", err)
		}

		if cost > 0 {
			res, err := tx.ExecContext(ctx,
				`UPDATE users SET current_points = current_points - ?
				 WHERE id = ? AND current_points >= ?`, cost, userID, cost)
			if err != nil {
				return fmt.Errorf("debit points: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				var exists bool
				if err := tx.QueryRowContext(ctx,
					`SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists); err != nil {
					return fmt.Errorf("check user: %w", err)
				}
				if !exists {
					return core.ErrUserNotFound
				}
				return core.ErrInsufficientBalance
			}
		}

		red = &core.Redemption{
			ID:        uuid.New().String(),
			UserID:    userID,
			RewardID:  rewardID,
			GroupID:   groupID,
			Status:    core.RedemptionPending,
			CreatedAt: time.Now().UTC(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO redemptions (id, user_id, reward_id, group_id, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			red.ID, red.UserID, red.RewardID, red.GroupID, red.Status, fmtTime(red.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Reward claimed",
		"redemption_id", red.ID,
		"user_id", userID,
		"reward_id", rewardID)
	return red, nil
}

func (r *SQLiteRepository) GetRedemption(ctx context.Context, id string) (*core.Redemption, error) {
	var red core.Redemption
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, reward_id, group_id, status, created_at
		 FROM redemptions WHERE id = ?`, id).
		Scan(&red.ID, &red.UserID, &red.RewardID, &red.GroupID, &red.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrRedemptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	red.CreatedAt = parseTime(createdAt)
	return &red, nil
}

// ResolveRedemption moves a pending redemption into a terminal state.
// Re-submitting the decision a redemption already carries is a no-op
// (the refund branch never re-runs); any other write to a terminal
// redemption fails with ErrInvalidTransition. The status flip and, on
// rejection, the refund commit together. The returned bool reports
// whether this call performed the refund, so only one of two
// concurrent rejects observes it.
func (r *SQLiteRepository) ResolveRedemption(ctx context.Context, id string, decision core.RedemptionStatus) (*core.Redemption, bool, error) {
	if !decision.Terminal() {
		return nil, false, core.ErrInvalidTransition
	}

	var red *core.Redemption
	var refunded bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		red = &core.Redemption{}
		var createdAt string
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id, reward_id, group_id, status, created_at
			 FROM redemptions WHERE id = ?`, id).
			Scan(&red.ID, &red.UserID, &red.RewardID, &red.GroupID, &red.Status, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrRedemptionNotFound
		}
		if err != nil {
			return fmt.Errorf("get redemption: %w", err)
		}
		red.CreatedAt = parseTime(createdAt)

		if red.Status == decision {
			return nil // idempotent re-submit of the same terminal state
		}
		if red.Status.Terminal() {
			return core.ErrInvalidTransition
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE redemptions SET status = ? WHERE id = ? AND status = ?`,
			decision, id, core.RedemptionPending)
		if err != nil {
			return fmt.Errorf("update redemption status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return core.ErrInvalidTransition
		}

		if decision == core.RedemptionRejected {
			var cost int
			err := tx.QueryRowContext(ctx,
				`SELECT cost FROM rewards WHERE id = ?`, red.RewardID).Scan(&cost)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("get reward cost: %w", err)
			}
			if cost > 0 {
				if _, err := tx.ExecContext(ctx,
					`UPDATE users SET current_points = current_points + ? WHERE id = ?`,
					cost, red.UserID); err != nil {
					return fmt.Errorf("refund points: %w", err)
				}
				refunded = true
			}
		}

		red.Status = decision
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	slog.InfoContext(ctx, "Redemption resolved",
		"redemption_id", red.ID,
		"status", red.Status,
		"refunded", refunded)
	return red, refunded, nil
}

// RedemptionDetail enriches a redemption with claimer and reward info for
// review listings.
type RedemptionDetail struct {
	core.Redemption
	UserName    string `json:"user_name"`
	RewardTitle string `json:"reward_title"`
	RewardCost  int    `json:"reward_cost"`
}

func (r *SQLiteRepository) ListPendingRedemptions(ctx context.Context, groupID string) ([]RedemptionDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.id, d.user_id, d.reward_id, d.group_id, d.status, d.created_at,
		        u.full_name, w.title, w.cost
		 FROM redemptions d
		 JOIN users u ON u.id = d.user_id
		 JOIN rewards w ON w.id = d.reward_id
		 WHERE d.group_id = ? AND d.status = ?
		 ORDER BY d.created_at, d.rowid`, groupID, core.RedemptionPending)
	if err != nil {
		return nil, fmt.Errorf("list pending redemptions: %w", err)
	}
	defer rows.Close()

	var details []RedemptionDetail
	for rows.Next() {
		var d RedemptionDetail
		var createdAt string
		if err := rows.Scan(&d.ID, &d.UserID, &d.RewardID, &d.GroupID, &d.Status, &createdAt,
			&d.UserName, &d.RewardTitle, &d.RewardCost); err != nil {
			return nil, fmt.Errorf("scan redemption detail: %w", err)
		}
		d.CreatedAt = parseTime(createdAt)
		details = append(details, d)
	}
	return details, rows.Err()
}
