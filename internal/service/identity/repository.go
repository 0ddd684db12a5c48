package identity

import (
	"context"

	"github.com/ignite/courier/internal/domain"
)

// Repository defines the data access contract for identities.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single identity. Returns ErrNotFound if it doesn't
	// exist or belongs to another project.
	Get(ctx context.Context, projectID, id string) (*domain.Identity, error)

	// GetByDomain returns the identity for a (project, domain) pair.
	// Returns ErrNotFound when absent.
	GetByDomain(ctx context.Context, projectID, domainName string) (*domain.Identity, error)

	// List returns all identities for a project, ordered by created_at DESC.
	List(ctx context.Context, projectID string) ([]domain.Identity, error)

	// Create inserts a new identity.
	Create(ctx context.Context, ident *domain.Identity) error

	// Update persists the mutable fields: records, status, tracking
	// flags, mail-from domain, and configuration set.
	Update(ctx context.Context, ident *domain.Identity) error

	// Delete removes an identity. Returns ErrNotFound when absent.
	Delete(ctx context.Context, projectID, id string) error
}

// Provider is the mail-provider surface the identity engine consumes.
// *ses.Client satisfies it.
type Provider interface {
	VerifyDomainDKIM(ctx context.Context, domainName string) ([]string, error)
	SetMailFromDomain(ctx context.Context, domainName, mailFrom string) error
	ClearMailFromDomain(ctx context.Context, domainName string) error
	CreateConfigSet(ctx context.Context, name string) error
	DeleteConfigSet(ctx context.Context, name string) error
	DeleteIdentity(ctx context.Context, domainName string) error
	DKIMStatus(ctx context.Context, domainName string) (domain.VerificationStatus, error)
	MailFromStatus(ctx context.Context, domainName string) (domain.VerificationStatus, error)
	PutTrackingOptions(ctx context.Context, configSet, redirectDomain string) error
	VerifyRedirectDomain(ctx context.Context, redirectDomain, expected string) (bool, error)
}
