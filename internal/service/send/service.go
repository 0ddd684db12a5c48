package send

import (
	"context"
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/apperr"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/ses"
)

// Request is one outbound send. To is a single recipient; fan-out to
// multiple recipients happens above this layer so every message keeps an
// independent delivery lifecycle.
type Request struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	TextBody string            `json:"text_body,omitempty"`
	HTMLBody string            `json:"html_body,omitempty"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Service runs the send pipeline.
type Service struct {
	repo       Repository
	identities IdentityResolver
	providers  ProviderResolver
	governor   Governor
}

func NewService(repo Repository, identities IdentityResolver, providers ProviderResolver, governor Governor) *Service {
	return &Service{repo: repo, identities: identities, providers: providers, governor: governor}
}

// Send validates the request, admits it through the governor, persists the
// message, and dispatches it. Validation failures leave no trace; once a
// slot is acquired the message row and its initial event exist whatever
// the provider says. The returned message carries status "sending" on
// provider accept; an async Send notification advances it to "sent".
func (s *Service) Send(ctx context.Context, projectID string, req Request) (*domain.Message, error) {
	from, err := mail.ParseAddress(req.From)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	to, err := mail.ParseAddress(req.To)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if req.TextBody == "" && req.HTMLBody == "" {
		return nil, ErrEmptyBody
	}

	senderDomain := domainOf(from.Address)
	ident, err := s.identities.GetByDomain(ctx, projectID, senderDomain)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	if !ident.IsVerified() {
		return nil, ErrIdentityNotVerified
	}

	provider, err := s.providers.ProviderFor(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if err := s.governor.AcquireSlot(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		IdentityID: ident.ID,
		From:       from.Address,
		To:         to.Address,
		Subject:    req.Subject,
		TextBody:   req.TextBody,
		HTMLBody:   req.HTMLBody,
		Status:     domain.StatusSending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	initial := &domain.Event{
		ID:        uuid.New().String(),
		MessageID: msg.ID,
		Recipient: to.Address,
		Type:      domain.EventSending,
		Timestamp: now,
	}
	if err := s.repo.Create(ctx, msg, initial); err != nil {
		return nil, err
	}

	providerID, sendErr := provider.Send(ctx, ses.SendParams{
		From:      from.Address,
		To:        to.Address,
		Subject:   req.Subject,
		TextBody:  req.TextBody,
		HTMLBody:  req.HTMLBody,
		ReplyTo:   req.ReplyTo,
		Headers:   req.Headers,
		ConfigSet: ident.ConfigurationSet,
	})

	// The counter tracks attempted provider calls, not accepted ones, so
	// it is advanced on the failure path too.
	recordCtx := context.WithoutCancel(ctx)
	if err := s.governor.RecordSend(recordCtx); err != nil {
		logger.Warn("send counter not advanced", "message_id", msg.ID, "error", err.Error())
	}

	if sendErr != nil {
		s.recordFailure(recordCtx, msg, sendErr)
		return nil, sendErr
	}

	if err := s.repo.SetProviderMessageID(ctx, msg.ID, providerID); err != nil {
		return nil, err
	}
	msg.ProviderMessageID = providerID

	logger.Info("message dispatched",
		"message_id", msg.ID, "provider_message_id", providerID, "identity_id", ident.ID)
	return msg, nil
}

// recordFailure marks the message terminal and appends the error event.
// Both writes are best effort: the provider error is what the caller sees.
func (s *Service) recordFailure(ctx context.Context, msg *domain.Message, sendErr error) {
	if err := s.repo.UpdateStatus(ctx, msg.ID, domain.StatusError); err != nil {
		logger.Error("message not marked failed", "message_id", msg.ID, "error", err.Error())
	}
	payload, _ := json.Marshal(map[string]string{"error": apperr.MessageOf(sendErr)})
	ev := &domain.Event{
		ID:        uuid.New().String(),
		MessageID: msg.ID,
		Recipient: msg.To,
		Type:      domain.EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := s.repo.AppendEvent(ctx, ev); err != nil {
		logger.Error("error event not recorded", "message_id", msg.ID, "error", err.Error())
	}
}

// Get returns a single message.
func (s *Service) Get(ctx context.Context, projectID, id string) (*domain.Message, error) {
	return s.repo.Get(ctx, projectID, id)
}

// List returns a page of messages for a project, newest first.
func (s *Service) List(ctx context.Context, projectID string, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, projectID, limit, offset)
}

// Events returns the full event stream of a message in insertion order.
func (s *Service) Events(ctx context.Context, projectID, messageID string) ([]domain.Event, error) {
	if _, err := s.repo.Get(ctx, projectID, messageID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, projectID, messageID)
}

func domainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
