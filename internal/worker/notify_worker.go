package worker

import (
	"context"
	"log/slog"

	"hearth/internal/amqp"
	"hearth/internal/hub"
)

// NotifyWorker consumes broker events and fans them out to in-process
// subscribers, typically the event stream endpoint.
type NotifyWorker struct {
	client *amqp.Client
	hub    *hub.Hub
}

func NewNotifyWorker(client *amqp.Client, h *hub.Hub) *NotifyWorker {
	return &NotifyWorker{
		client: client,
		hub:    h,
	}
}

// Run blocks consuming events until the context is cancelled.
func (w *NotifyWorker) Run(ctx context.Context) error {
	return w.client.ConsumeEvents(ctx, func(event *amqp.Event) error {
		delivered := w.hub.Broadcast(event)
		slog.InfoContext(ctx, "Event delivered",
			"type", event.Type,
			"group_id", event.GroupID,
			"subscribers", delivered)
		return nil
	})
}
