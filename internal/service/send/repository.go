package send

import (
	"context"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/ses"
)

// Repository persists messages and their event streams. Create writes the
// message and its initial event atomically.
type Repository interface {
	Create(ctx context.Context, msg *domain.Message, initial *domain.Event) error
	Get(ctx context.Context, projectID, id string) (*domain.Message, error)
	List(ctx context.Context, projectID string, limit, offset int) ([]domain.Message, error)
	SetProviderMessageID(ctx context.Context, id, providerMessageID string) error
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) error
	AppendEvent(ctx context.Context, ev *domain.Event) error
	ListEvents(ctx context.Context, projectID, messageID string) ([]domain.Event, error)
}

// IdentityResolver looks up the provisioned identity covering a sender
// domain.
type IdentityResolver interface {
	GetByDomain(ctx context.Context, projectID, domain string) (*domain.Identity, error)
}

// Provider dispatches a single message and returns the provider-assigned
// message id.
type Provider interface {
	Send(ctx context.Context, params ses.SendParams) (string, error)
}

// Governor admits sends under the shared account-level rate limit.
// AcquireSlot blocks until a slot is free or ctx is done; RecordSend is
// called once per attempted provider dispatch.
type Governor interface {
	AcquireSlot(ctx context.Context) error
	RecordSend(ctx context.Context) error
}
