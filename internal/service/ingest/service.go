package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/apperr"
	"github.com/ignite/courier/internal/pkg/httpretry"
	"github.com/ignite/courier/internal/pkg/logger"
)

// Repository is the slice of message storage the projector needs.
type Repository interface {
	FindByProviderID(ctx context.Context, providerMessageID, recipient string) (*domain.Message, error)
	AppendEvent(ctx context.Context, ev *domain.Event) error
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) error
}

// Service ingests provider notifications. A nil confirmer gets a default
// retrying client.
type Service struct {
	repo      Repository
	confirmer httpretry.HTTPDoer
}

func NewService(repo Repository, confirmer httpretry.HTTPDoer) *Service {
	if confirmer == nil {
		confirmer = httpretry.NewRetryClient(nil, 3)
	}
	return &Service{repo: repo, confirmer: confirmer}
}

// Ingest processes one webhook envelope. Malformed payloads, unknown
// event kinds, and events for unknown messages are swallowed after
// logging; the transport redelivers on errors, so only storage failures
// and failed subscription confirmations surface as errors.
func (s *Service) Ingest(ctx context.Context, env Envelope) error {
	switch env.Type {
	case envelopeConfirmation:
		return s.confirmSubscription(ctx, env)
	case envelopeUnsubscribe:
		logger.Warn("notification topic unsubscribed", "topic", env.TopicARN)
		return nil
	case envelopeNotification:
	default:
		logger.Warn("unknown envelope type dropped", "type", env.Type)
		return nil
	}

	var note notification
	if err := json.Unmarshal([]byte(env.Message), &note); err != nil {
		logger.Warn("malformed notification dropped", "error", err.Error())
		return nil
	}
	if note.Mail.MessageID == "" {
		logger.Warn("notification without provider message id dropped", "kind", note.kind())
		return nil
	}

	eventType, ok := canonicalType(&note)
	if !ok {
		logger.Warn("unknown notification kind dropped", "kind", note.kind())
		return nil
	}

	for _, recipient := range recipientsOf(&note) {
		if err := s.project(ctx, env, &note, eventType, recipient); err != nil {
			return err
		}
	}
	return nil
}

// project appends the event and advances the message's status projection
// for one recipient.
func (s *Service) project(ctx context.Context, env Envelope, note *notification, eventType domain.EventType, recipient string) error {
	msg, err := s.repo.FindByProviderID(ctx, note.Mail.MessageID, recipient)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			logger.Debug("notification for unknown message dropped",
				"provider_message_id", note.Mail.MessageID, "kind", note.kind())
			return nil
		}
		return err
	}

	ev := buildEvent(env, note, eventType, msg.ID, recipient)
	if err := s.repo.AppendEvent(ctx, ev); err != nil {
		return err
	}

	if proposed, writes := eventType.StatusFor(); writes {
		next := domain.NextStatus(msg.Status, proposed)
		if next != msg.Status {
			if err := s.repo.UpdateStatus(ctx, msg.ID, next); err != nil {
				return err
			}
			logger.Info("message status advanced",
				"message_id", msg.ID, "from", string(msg.Status), "to", string(next), "event", string(eventType))
		}
	}
	return nil
}

// confirmSubscription completes the topic handshake by fetching the
// subscribe URL. Failures are returned so the transport retries.
func (s *Service) confirmSubscription(ctx context.Context, env Envelope) error {
	if env.SubscribeURL == "" {
		logger.Warn("confirmation without subscribe url dropped", "topic", env.TopicARN)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.SubscribeURL, nil)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "bad subscribe url", err)
	}
	resp, err := s.confirmer.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Provider, "subscription confirmation failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Newf(apperr.Provider, "subscription confirmation returned %d", resp.StatusCode)
	}
	logger.Info("notification subscription confirmed", "topic", env.TopicARN)
	return nil
}

// canonicalType maps a provider notification onto the canonical event
// vocabulary. The Send event drives the sent transition; reject means the
// provider refused the already-accepted message. Delivery delays are
// treated as soft bounces.
func canonicalType(note *notification) (domain.EventType, bool) {
	switch note.kind() {
	case "Send":
		return domain.EventSent, true
	case "Delivery":
		return domain.EventDelivered, true
	case "Open":
		return domain.EventOpened, true
	case "Click":
		return domain.EventClicked, true
	case "Complaint":
		return domain.EventComplained, true
	case "Reject", "Rendering Failure":
		return domain.EventError, true
	case "DeliveryDelay":
		return domain.EventSoftBounced, true
	case "Bounce":
		if note.Bounce != nil && note.Bounce.isHard() {
			return domain.EventBounced, true
		}
		return domain.EventSoftBounced, true
	}
	return "", false
}

// recipientsOf returns the recipients the notification applies to,
// preferring the per-type recipient list over the mail destination.
func recipientsOf(note *notification) []string {
	switch {
	case note.Bounce != nil && len(note.Bounce.BouncedRecipients) > 0:
		out := make([]string, 0, len(note.Bounce.BouncedRecipients))
		for _, r := range note.Bounce.BouncedRecipients {
			out = append(out, r.EmailAddress)
		}
		return out
	case note.Complaint != nil && len(note.Complaint.ComplainedRecipients) > 0:
		out := make([]string, 0, len(note.Complaint.ComplainedRecipients))
		for _, r := range note.Complaint.ComplainedRecipients {
			out = append(out, r.EmailAddress)
		}
		return out
	case note.Delivery != nil && len(note.Delivery.Recipients) > 0:
		return note.Delivery.Recipients
	case note.DeliveryDelay != nil && len(note.DeliveryDelay.DelayedRecipients) > 0:
		out := make([]string, 0, len(note.DeliveryDelay.DelayedRecipients))
		for _, r := range note.DeliveryDelay.DelayedRecipients {
			out = append(out, r.EmailAddress)
		}
		return out
	}
	return note.Mail.Destination
}

// buildEvent constructs the stored event. Timestamp is the provider's
// per-type event time, falling back to the mail timestamp; the raw
// notification is retained as the payload.
func buildEvent(env Envelope, note *notification, eventType domain.EventType, messageID, recipient string) *domain.Event {
	ev := &domain.Event{
		ID:        uuid.New().String(),
		MessageID: messageID,
		Recipient: recipient,
		Type:      eventType,
		Timestamp: note.Mail.Timestamp,
		Payload:   json.RawMessage(env.Message),
	}
	switch {
	case note.Bounce != nil:
		ev.Timestamp = note.Bounce.Timestamp
	case note.Complaint != nil:
		ev.Timestamp = note.Complaint.Timestamp
	case note.Delivery != nil:
		ev.Timestamp = note.Delivery.Timestamp
	case note.DeliveryDelay != nil:
		ev.Timestamp = note.DeliveryDelay.Timestamp
	case note.Open != nil:
		ev.Timestamp = note.Open.Timestamp
		ev.IPAddress = note.Open.IPAddress
		ev.UserAgent = note.Open.UserAgent
	case note.Click != nil:
		ev.Timestamp = note.Click.Timestamp
		ev.IPAddress = note.Click.IPAddress
		ev.UserAgent = note.Click.UserAgent
		ev.LinkURL = note.Click.Link
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}
