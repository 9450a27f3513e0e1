package services

import (
	"context"
	"log/slog"

	"hearth/internal/amqp"
	"hearth/internal/core"
	"hearth/internal/metrics"
	"hearth/internal/storage"
)

// RewardService manages the reward catalog and the redemption flow.
type RewardService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	metrics    *metrics.Metrics
}

func NewRewardService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, m *metrics.Metrics) *RewardService {
	return &RewardService{
		storage:    storage,
		amqpClient: amqpClient,
		metrics:    m,
	}
}

// CreateReward adds a reward to the caller's group catalog.
func (s *RewardService) CreateReward(ctx context.Context, callerID string, reward core.Reward) (*core.Reward, error) {
	membership, err := s.storage.MembershipFor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	reward.GroupID = membership.GroupID
	if err := reward.Validate(); err != nil {
		return nil, err
	}
	if err := s.storage.CreateReward(ctx, &reward); err != nil {
		return nil, err
	}
	return &reward, nil
}

// ListRewards returns the catalog of a group the caller belongs to.
func (s *RewardService) ListRewards(ctx context.Context, callerID, groupID string) ([]core.Reward, error) {
	if _, err := s.storage.MembershipIn(ctx, callerID, groupID); err != nil {
		return nil, err
	}
	return s.storage.ListRewards(ctx, groupID)
}

// Claim debits the caller's points and opens a pending redemption. The
// debit happens now; a later rejection refunds it.
func (s *RewardService) Claim(ctx context.Context, callerID, rewardID string) (*core.Redemption, error) {
	reward, err := s.storage.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.MembershipIn(ctx, callerID, reward.GroupID); err != nil {
		return nil, err
	}

	redemption, err := s.storage.ClaimReward(ctx, callerID, rewardID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil && reward.Cost > 0 {
		s.metrics.PointsSpent.Add(float64(reward.Cost))
	}

	event := amqp.NewEvent(amqp.EventRedemptionClaimed, reward.GroupID)
	event.UserID = callerID
	event.EntityID = redemption.ID
	event.Points = reward.Cost
	s.publish(ctx, event)

	return redemption, nil
}

// PendingRedemptions lists a group's open redemptions for review.
func (s *RewardService) PendingRedemptions(ctx context.Context, callerID, groupID string) ([]storage.RedemptionDetail, error) {
	if _, err := s.storage.MembershipIn(ctx, callerID, groupID); err != nil {
		return nil, err
	}
	return s.storage.ListPendingRedemptions(ctx, groupID)
}

// Resolve approves or rejects a redemption. Any member of the
// redemption's group may decide; rejection refunds the reward cost.
func (s *RewardService) Resolve(ctx context.Context, callerID, redemptionID string, approve bool) (*core.Redemption, error) {
	redemption, err := s.storage.GetRedemption(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.MembershipIn(ctx, callerID, redemption.GroupID); err != nil {
		return nil, err
	}

	decision := core.RedemptionRejected
	if approve {
		decision = core.RedemptionApproved
	}

	resolved, refunded, err := s.storage.ResolveRedemption(ctx, redemptionID, decision)
	if err != nil {
		return nil, err
	}

	// refunded is decided inside the storage transaction, so concurrent
	// rejects emit at most one refund event between them.
	if refunded {
		if reward, err := s.storage.GetReward(ctx, resolved.RewardID); err == nil {
			if s.metrics != nil {
				s.metrics.PointsRefunded.Add(float64(reward.Cost))
			}
			refund := amqp.NewEvent(amqp.EventPointsRefunded, resolved.GroupID)
			refund.UserID = resolved.UserID
			refund.EntityID = resolved.ID
			refund.Points = reward.Cost
			s.publish(ctx, refund)
		}
	}

	event := amqp.NewEvent(amqp.EventRedemptionResolved, resolved.GroupID)
	event.UserID = resolved.UserID
	event.EntityID = resolved.ID
	s.publish(ctx, event)

	slog.InfoContext(ctx, "Redemption resolved",
		"redemption_id", resolved.ID,
		"decision", decision,
		"resolved_by", callerID)

	return resolved, nil
}

func (s *RewardService) publish(ctx context.Context, event *amqp.Event) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", event.Type,
			"group_id", event.GroupID,
			"error", err)
	}
}
