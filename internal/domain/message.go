package domain

import "time"

// MessageStatus enumerates the delivery lifecycle of a single message.
type MessageStatus string

const (
	StatusSending     MessageStatus = "sending"
	StatusSent        MessageStatus = "sent"
	StatusDelivered   MessageStatus = "delivered"
	StatusOpened      MessageStatus = "opened"
	StatusClicked     MessageStatus = "clicked"
	StatusSoftBounced MessageStatus = "soft_bounced"
	StatusBounced     MessageStatus = "bounced"
	StatusComplained  MessageStatus = "complained"
	StatusError       MessageStatus = "error"
)

// engagementRank orders the forward-only engagement path. Statuses outside
// this map (bounces, complaints, errors) are handled separately.
var engagementRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusOpened:    3,
	StatusClicked:   4,
}

// IsTerminal reports whether no further status writes are accepted.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusBounced || s == StatusComplained || s == StatusError
}

// NextStatus resolves a proposed status write against the current status
// and returns the status the message should hold afterwards. The lattice
// is monotonic: engagement states only advance, and bounce/complaint/error
// are sticky once reached. A soft bounce blocks later opens/clicks but may
// still resolve to delivered (retry succeeded) or escalate to a hard
// bounce or complaint.
func NextStatus(current, proposed MessageStatus) MessageStatus {
	if current.IsTerminal() {
		return current
	}
	if proposed.IsTerminal() {
		return proposed
	}
	if current == StatusSoftBounced {
		if proposed == StatusDelivered {
			return proposed
		}
		return current
	}
	if proposed == StatusSoftBounced {
		return proposed
	}
	if engagementRank[proposed] > engagementRank[current] {
		return proposed
	}
	return current
}

// Message is one outbound send attempt. ProviderMessageID is assigned at
// most once, immediately after the provider accepts the message.
type Message struct {
	ID                string        `json:"id" db:"id"`
	ProjectID         string        `json:"project_id" db:"project_id"`
	IdentityID        string        `json:"identity_id" db:"identity_id"`
	ProviderMessageID string        `json:"provider_message_id,omitempty" db:"provider_message_id"`
	From              string        `json:"from" db:"from_address"`
	To                string        `json:"to" db:"to_address"`
	Subject           string        `json:"subject" db:"subject"`
	TextBody          string        `json:"text_body,omitempty" db:"text_body"`
	HTMLBody          string        `json:"html_body,omitempty" db:"html_body"`
	Status            MessageStatus `json:"status" db:"status"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}
