package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hearth/internal/amqp"
	"hearth/internal/core"
	"hearth/internal/metrics"
	"hearth/internal/storage"
)

// BillingProcessor re-posts subscription expenses once per billing
// cycle. The newest posting of each subscription acts as the template;
// a subscription is due when the current month's billing date has
// passed and no posting exists for it yet.
type BillingProcessor struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	metrics    *metrics.Metrics
}

func NewBillingProcessor(storage *storage.SQLiteRepository, amqpClient *amqp.Client, m *metrics.Metrics) *BillingProcessor {
	return &BillingProcessor{
		storage:    storage,
		amqpClient: amqpClient,
		metrics:    m,
	}
}

// ProcessDueSubscriptions posts every subscription whose billing date
// has come around since its last posting. Returns how many were posted.
func (p *BillingProcessor) ProcessDueSubscriptions(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	subscriptions, err := p.storage.LatestSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}

	slog.InfoContext(ctx, "Processing subscriptions",
		"total", len(subscriptions),
		"processing_date", now.Format("2006-01-02"))

	posted := 0
	for _, sub := range subscriptions {
		if !isDue(sub, now) {
			continue
		}

		expense := core.Expense{
			Description:    sub.Description,
			Amount:         sub.Amount,
			Category:       sub.Category,
			IsSubscription: true,
			BillingDay:     sub.BillingDay,
			PaidByID:       sub.PaidByID,
			GroupID:        sub.GroupID,
			CreatedAt:      now,
		}
		if err := p.storage.CreateExpense(ctx, &expense); err != nil {
			slog.ErrorContext(ctx, "Failed to post subscription",
				"description", sub.Description,
				"group_id", sub.GroupID,
				"error", err)
			continue
		}

		posted++
		if p.metrics != nil {
			p.metrics.SubscriptionRun.Inc()
		}

		event := amqp.NewEvent(amqp.EventExpenseRecorded, expense.GroupID)
		event.UserID = expense.PaidByID
		event.EntityID = expense.ID
		event.Amount = expense.Amount
		p.publish(ctx, event)

		slog.InfoContext(ctx, "Posted subscription expense",
			"description", expense.Description,
			"amount", expense.Amount,
			"group_id", expense.GroupID)
	}

	slog.InfoContext(ctx, "Subscription processing complete",
		"posted", posted,
		"total_checked", len(subscriptions))

	return posted, nil
}

// isDue reports whether a subscription's billing date for the current
// month has arrived without a posting at or after it. Short months
// clamp the billing day to their last day.
func isDue(latest core.Expense, now time.Time) bool {
	if latest.BillingDay < 1 {
		return false
	}

	day := latest.BillingDay
	if last := lastDayOfMonth(now); day > last {
		day = last
	}
	billingDate := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC)

	if now.Before(billingDate) {
		return false
	}
	return latest.CreatedAt.Before(billingDate)
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (p *BillingProcessor) publish(ctx context.Context, event *amqp.Event) {
	if p.amqpClient == nil {
		return
	}
	if err := p.amqpClient.PublishEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", event.Type,
			"group_id", event.GroupID,
			"error", err)
	}
}
