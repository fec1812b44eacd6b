// internal/domain/events.go
package domain

import "time"

// EventType names notification events
type EventType string

const (
	EventDepositCredited EventType = "deposit.credited"
	EventDepositExpired  EventType = "deposit.expired"
	EventDepositSettled  EventType = "deposit.settled"
)

// Notification is delivered to a user or the operations channel
type Notification struct {
	EventID   string            `json:"event_id"`
	Type      EventType         `json:"type"`
	UserID    string            `json:"user_id,omitempty"`
	OrderID   string            `json:"order_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
