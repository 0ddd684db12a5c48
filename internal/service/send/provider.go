package send

import (
	"context"

	"github.com/ignite/courier/internal/pkg/apperr"
	"github.com/ignite/courier/internal/ses"
)

// ProviderResolver yields a provider client bound to a project's own
// sending credentials.
type ProviderResolver interface {
	ProviderFor(ctx context.Context, projectID string) (Provider, error)
}

// Credentials are a project's stored provider access keys.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// CredentialSource looks up stored provider credentials for a project.
type CredentialSource interface {
	ProjectCredentials(ctx context.Context, projectID string) (Credentials, error)
}

// SESResolver builds a per-project SES client and confirms the stored
// credentials against the provider before handing the client out.
type SESResolver struct {
	source      CredentialSource
	region      string
	snsTopicARN string
}

func NewSESResolver(source CredentialSource, region, snsTopicARN string) *SESResolver {
	return &SESResolver{source: source, region: region, snsTopicARN: snsTopicARN}
}

func (r *SESResolver) ProviderFor(ctx context.Context, projectID string) (Provider, error) {
	creds, err := r.source.ProjectCredentials(ctx, projectID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil, ErrProjectNotConfigured
		}
		return nil, err
	}
	client, err := ses.NewClientWithCredentials(ctx, creds.AccessKey, creds.SecretKey, r.region, r.snsTopicARN)
	if err != nil {
		return nil, err
	}
	// A quota fetch is the cheapest call that fails on bad keys.
	if _, err := client.GetSendQuota(ctx); err != nil {
		return nil, err
	}
	return client, nil
}
