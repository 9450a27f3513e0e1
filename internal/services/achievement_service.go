package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hearth/internal/amqp"
	"hearth/internal/core"
	"hearth/internal/metrics"
	"hearth/internal/storage"
)

// AchievementView is a catalog entry annotated with the caller's
// progress state.
type AchievementView struct {
	core.Achievement
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

// AchievementCheck reports what a check run unlocked.
type AchievementCheck struct {
	NewlyEarned []core.Achievement `json:"newly_earned"`
	Count       int                `json:"count"`
}

// AchievementService grants badges from the fixed catalog as members
// complete tasks and accumulate points. The catalog is seeded by
// migration; there is no write API for it.
type AchievementService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	metrics    *metrics.Metrics
}

func NewAchievementService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, m *metrics.Metrics) *AchievementService {
	return &AchievementService{
		storage:    storage,
		amqpClient: amqpClient,
		metrics:    m,
	}
}

// List returns the whole catalog with the caller's earned state.
func (s *AchievementService) List(ctx context.Context, userID string) ([]AchievementView, error) {
	achievements, err := s.storage.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}
	earned, err := s.storage.EarnedAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]AchievementView, 0, len(achievements))
	for _, a := range achievements {
		view := AchievementView{Achievement: a}
		if at, ok := earned[a.ID]; ok {
			view.Earned = true
			view.EarnedAt = &at
		}
		views = append(views, view)
	}
	return views, nil
}

// Check unlocks every achievement the user now qualifies for and
// returns the ones earned by this call. Checking is idempotent: an
// achievement unlocks at most once per user no matter how often the
// criteria are re-evaluated.
func (s *AchievementService) Check(ctx context.Context, userID string) (*AchievementCheck, error) {
	user, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	completed, err := s.storage.CountCompletedTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	achievements, err := s.storage.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}
	earned, err := s.storage.EarnedAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &AchievementCheck{NewlyEarned: []core.Achievement{}}
	for _, a := range achievements {
		if _, has := earned[a.ID]; has {
			continue
		}
		if !a.Met(completed, user.CurrentPoints) {
			continue
		}
		unlocked, err := s.storage.UnlockAchievement(ctx, userID, a.ID)
		if err != nil {
			return nil, err
		}
		if unlocked == nil {
			// A concurrent check got there first.
			continue
		}
		result.NewlyEarned = append(result.NewlyEarned, a)
		if s.metrics != nil {
			s.metrics.Achievements.Inc()
		}
		s.announce(ctx, userID, a)
	}
	result.Count = len(result.NewlyEarned)

	if result.Count > 0 {
		slog.InfoContext(ctx, "Achievements earned",
			"user_id", userID,
			"count", result.Count)
	}
	return result, nil
}

// announce notifies the user's group, if they are in one. Members
// without a group still earn achievements, just silently.
func (s *AchievementService) announce(ctx context.Context, userID string, a core.Achievement) {
	if s.amqpClient == nil {
		return
	}
	membership, err := s.storage.MembershipFor(ctx, userID)
	if err != nil {
		if !errors.Is(err, core.ErrNotInGroup) {
			slog.ErrorContext(ctx, "Failed to resolve membership for announcement",
				"user_id", userID,
				"error", err)
		}
		return
	}

	event := amqp.NewEvent(amqp.EventAchievementEarned, membership.GroupID)
	event.UserID = userID
	event.EntityID = a.ID
	if err := s.amqpClient.PublishEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", event.Type,
			"group_id", event.GroupID,
			"error", err)
	}
}
