package domain

import (
	"encoding/json"
	"time"
)

// EventType is the canonical vocabulary provider-specific event shapes are
// mapped onto. Events are facts; multiple events of the same type for the
// same message are expected and retained.
type EventType string

const (
	EventSending     EventType = "sending"
	EventSent        EventType = "sent"
	EventDelivered   EventType = "delivered"
	EventOpened      EventType = "opened"
	EventClicked     EventType = "clicked"
	EventSoftBounced EventType = "soft_bounced"
	EventBounced     EventType = "bounced"
	EventComplained  EventType = "complained"
	EventError       EventType = "error"
)

// StatusFor returns the message status a given event type writes, and
// whether it writes one at all. The sent transition is driven by the
// asynchronous Send notification, not by the synchronous provider accept.
func (t EventType) StatusFor() (MessageStatus, bool) {
	switch t {
	case EventSent:
		return StatusSent, true
	case EventDelivered:
		return StatusDelivered, true
	case EventOpened:
		return StatusOpened, true
	case EventClicked:
		return StatusClicked, true
	case EventSoftBounced:
		return StatusSoftBounced, true
	case EventBounced:
		return StatusBounced, true
	case EventComplained:
		return StatusComplained, true
	case EventError:
		return StatusError, true
	}
	return "", false
}

// Event is an immutable, append-only fact about a message. Timestamp is
// the provider's event time, never ingestion time; arrival order carries
// no meaning.
type Event struct {
	ID        string          `json:"id" db:"id"`
	MessageID string          `json:"message_id" db:"message_id"`
	Recipient string          `json:"recipient" db:"recipient"`
	Type      EventType       `json:"type" db:"type"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty" db:"payload"`
	UserAgent string          `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	LinkURL   string          `json:"link_url,omitempty" db:"link_url"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
