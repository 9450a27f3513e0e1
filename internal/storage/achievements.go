package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hearth/internal/core"
)

// ListAchievements returns the full catalog, easiest criteria first
// within each criteria type.
func (r *SQLiteRepository) ListAchievements(ctx context.Context) ([]core.Achievement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, icon, criteria_type, criteria_value
		 FROM achievements ORDER BY criteria_type, criteria_value`)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var achievements []core.Achievement
	for rows.Next() {
		var a core.Achievement
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Icon, &a.CriteriaType, &a.CriteriaValue); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

// EarnedAchievements maps achievement ID to the moment the user earned
// it. Unearned achievements are absent from the map.
func (r *SQLiteRepository) EarnedAchievements(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT achievement_id, earned_at FROM user_achievements WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list earned achievements: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]time.Time)
	for rows.Next() {
		var id, earnedAt string
		if err := rows.Scan(&id, &earnedAt); err != nil {
			return nil, fmt.Errorf("scan earned achievement: %w", err)
		}
		earned[id] = parseTime(earnedAt)
	}
	return earned, rows.Err()
}

// CountCompletedTasks counts the tasks the user has finished, the
// progress figure behind task-based achievements.
func (r *SQLiteRepository) CountCompletedTasks(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE assigned_to_id = ? AND status = ?`,
		userID, core.TaskCompleted).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed tasks: %w", err)
	}
	return n, nil
}

// UnlockAchievement records the earn and returns the row. The unique
// (user, achievement) constraint makes the unlock idempotent: a repeat
// call returns nil with no error and writes nothing.
func (r *SQLiteRepository) UnlockAchievement(ctx context.Context, userID, achievementID string) (*core.UserAchievement, error) {
	ua := &core.UserAchievement{
		ID:            uuid.New().String(),
		UserID:        userID,
		AchievementID: achievementID,
		EarnedAt:      time.Now().UTC(),
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_achievements (id, user_id, achievement_id, earned_at)
		 VALUES (?, ?, ?, ?)`,
		ua.ID, ua.UserID, ua.AchievementID, fmtTime(ua.EarnedAt))
	if err != nil {
		return nil, fmt.Errorf("unlock achievement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil // already earned
	}

	slog.InfoContext(ctx, "Achievement unlocked",
		"user_id", userID,
		"achievement_id", achievementID)
	return ua, nil
}
