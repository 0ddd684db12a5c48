package ingest

import (
	"encoding/json"
	"time"
)

// SNS envelope message types.
const (
	envelopeNotification = "Notification"
	envelopeConfirmation = "SubscriptionConfirmation"
	envelopeUnsubscribe  = "UnsubscribeConfirmation"
)

// Envelope is the SNS wrapper every webhook POST arrives in. Message holds
// the SES notification as a JSON string.
type Envelope struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	TopicARN         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
}

// notification is the SES event payload carried inside the envelope.
// Event publishing sets eventType; legacy feedback notifications set
// notificationType. Exactly one of the per-type blocks is present.
type notification struct {
	EventType        string           `json:"eventType"`
	NotificationType string           `json:"notificationType"`
	Mail             mailObject       `json:"mail"`
	Bounce           *bounceObject    `json:"bounce,omitempty"`
	Complaint        *complaintObject `json:"complaint,omitempty"`
	Delivery         *deliveryObject  `json:"delivery,omitempty"`
	Send             *struct{}        `json:"send,omitempty"`
	Reject           *rejectObject    `json:"reject,omitempty"`
	Open             *openObject      `json:"open,omitempty"`
	Click            *clickObject     `json:"click,omitempty"`
	DeliveryDelay    *delayObject     `json:"deliveryDelay,omitempty"`
}

func (n *notification) kind() string {
	if n.EventType != "" {
		return n.EventType
	}
	return n.NotificationType
}

type mailObject struct {
	Timestamp   time.Time `json:"timestamp"`
	MessageID   string    `json:"messageId"`
	Source      string    `json:"source"`
	Destination []string  `json:"destination"`
}

type bouncedRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Action         string `json:"action,omitempty"`
	Status         string `json:"status,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

type bounceObject struct {
	BounceType        string             `json:"bounceType"`
	BounceSubType     string             `json:"bounceSubType"`
	BouncedRecipients []bouncedRecipient `json:"bouncedRecipients"`
	Timestamp         time.Time          `json:"timestamp"`
	FeedbackID        string             `json:"feedbackId"`
}

type complainedRecipient struct {
	EmailAddress string `json:"emailAddress"`
}

type complaintObject struct {
	ComplainedRecipients  []complainedRecipient `json:"complainedRecipients"`
	Timestamp             time.Time             `json:"timestamp"`
	FeedbackID            string                `json:"feedbackId"`
	ComplaintFeedbackType string                `json:"complaintFeedbackType,omitempty"`
}

type deliveryObject struct {
	Timestamp    time.Time `json:"timestamp"`
	Recipients   []string  `json:"recipients"`
	SMTPResponse string    `json:"smtpResponse,omitempty"`
}

type rejectObject struct {
	Reason string `json:"reason"`
}

type openObject struct {
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
}

type clickObject struct {
	Timestamp time.Time       `json:"timestamp"`
	IPAddress string          `json:"ipAddress"`
	UserAgent string          `json:"userAgent"`
	Link      string          `json:"link"`
	LinkTags  json.RawMessage `json:"linkTags,omitempty"`
}

type delayObject struct {
	Timestamp         time.Time `json:"timestamp"`
	DelayType         string    `json:"delayType"`
	DelayedRecipients []struct {
		EmailAddress string `json:"emailAddress"`
	} `json:"delayedRecipients"`
}

// Hard bounce subtypes for bounceType Permanent. Everything else,
// including all Transient bounces, is treated as a soft bounce.
var hardBounceSubTypes = map[string]bool{
	"General":                  true,
	"NoEmail":                  true,
	"Suppressed":               true,
	"OnAccountSuppressionList": true,
}

func (b *bounceObject) isHard() bool {
	return b.BounceType == "Permanent" && hardBounceSubTypes[b.BounceSubType]
}
