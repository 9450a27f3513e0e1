package amqp

import (
	"encoding/json"
	"time"
)

// Event types routed through the notification queue.
const (
	EventPointsAwarded      = "points.awarded"
	EventPointsRefunded     = "points.refunded"
	EventExpenseRecorded    = "expense.recorded"
	EventGroupSettled       = "group.settled"
	EventRedemptionClaimed  = "redemption.claimed"
	EventRedemptionResolved = "redemption.resolved"
	EventTaskCompleted      = "task.completed"
	EventAchievementEarned  = "achievement.earned"
)

// Event is a lightweight notification. Consumers that need the full
// record fetch it from the database by EntityID.
type Event struct {
	Type      string    `json:"type"`
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	Points    int       `json:"points,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time. Callers fill
// in the optional fields that apply to the event type.
func NewEvent(eventType, groupID string) *Event {
	return &Event{
		Type:      eventType,
		GroupID:   groupID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON creates an event from JSON bytes
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
