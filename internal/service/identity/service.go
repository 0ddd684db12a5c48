package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/apperr"
	"github.com/ignite/courier/internal/pkg/distlock"
	"github.com/ignite/courier/internal/pkg/logger"
)

// DNS record templates for the SES infrastructure the records must point
// at. The redirect domain label is the region code, which is why the
// region is a reserved mail-from subdomain.
const (
	dkimValueSuffix   = "dkim.amazonses.com"
	feedbackMXFormat  = "feedback-smtp.%s.amazonses.com"
	spfValue          = "v=spf1 include:amazonses.com ~all"
	trackingCNAMEHost = "r.%s.awstrack.me"
	mxPriority        = 10
	recordTTL         = 300
)

var domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// DeprovisionMode selects how much provider-side state deprovisioning
// removes.
type DeprovisionMode string

const (
	// DeprovisionSoft removes local state and the configuration set but
	// keeps the provider-side identity so it can be re-adopted.
	DeprovisionSoft DeprovisionMode = "soft"
	// DeprovisionStrict also deletes the provider-side identity,
	// irreversibly revoking sending capability for the domain.
	DeprovisionStrict DeprovisionMode = "strict"
)

// Service implements the identity verification engine. All public methods
// are safe for concurrent use if the repository is concurrency-safe.
type Service struct {
	repo     Repository
	provider Provider
	region   string
	locks    *distlock.Factory
}

// NewService creates an identity service. locks may be nil, in which case
// concurrent provisioning of the same domain is only guarded by the
// repository's uniqueness constraint.
func NewService(repo Repository, provider Provider, region string, locks *distlock.Factory) *Service {
	return &Service{repo: repo, provider: provider, region: region, locks: locks}
}

// Get returns a single identity with its record list.
func (s *Service) Get(ctx context.Context, projectID, id string) (*domain.Identity, error) {
	return s.repo.Get(ctx, projectID, id)
}

// List returns all identities for a project.
func (s *Service) List(ctx context.Context, projectID string) ([]domain.Identity, error) {
	return s.repo.List(ctx, projectID)
}

// Provision registers a sending domain: requests DKIM tokens, optionally
// configures a mail-from subdomain, synthesizes the DNS record list, and
// creates a configuration set bound to the feedback channel. Any provider
// failure unwinds all prior external side effects and the local row.
func (s *Service) Provision(ctx context.Context, projectID, domainName string, mailFrom *string) (*domain.Identity, error) {
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if !domainRegex.MatchString(domainName) {
		return nil, ErrInvalidDomain
	}
	if mailFrom != nil {
		mf := strings.ToLower(strings.TrimSpace(*mailFrom))
		if err := s.validateMailFrom(domainName, mf); err != nil {
			return nil, err
		}
		mailFrom = &mf
	}

	if _, err := s.repo.GetByDomain(ctx, projectID, domainName); err == nil {
		return nil, ErrDomainExists
	} else if apperr.KindOf(err) != apperr.NotFound {
		return nil, err
	}

	if s.locks != nil {
		lock := s.locks.For(fmt.Sprintf("identity:provision:%s:%s", projectID, domainName))
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "lock store unavailable", err)
		}
		if !acquired {
			return nil, ErrProvisioning
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	ident := &domain.Identity{
		ID:               uuid.New().String(),
		ProjectID:        projectID,
		Domain:           domainName,
		MailFromDomain:   mailFrom,
		Status:           domain.VerificationNotStarted,
		ConfigurationSet: fmt.Sprintf("courier-%s", uuid.New().String()[:8]),
	}

	var tokens []string

	sg := &saga{}
	sg.add("create identity row",
		func(ctx context.Context) error {
			return s.repo.Create(ctx, ident)
		},
		func(ctx context.Context) error {
			return s.repo.Delete(ctx, projectID, ident.ID)
		})
	sg.add("request dkim tokens",
		func(ctx context.Context) error {
			var err error
			tokens, err = s.provider.VerifyDomainDKIM(ctx, domainName)
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				return ErrNoDKIMTokens
			}
			return nil
		},
		func(ctx context.Context) error {
			return s.provider.DeleteIdentity(ctx, domainName)
		})
	if mailFrom != nil {
		sg.add("set mail-from domain",
			func(ctx context.Context) error {
				return s.provider.SetMailFromDomain(ctx, domainName, *mailFrom)
			},
			func(ctx context.Context) error {
				return s.provider.ClearMailFromDomain(ctx, domainName)
			})
	}
	sg.add("create configuration set",
		func(ctx context.Context) error {
			return s.provider.CreateConfigSet(ctx, ident.ConfigurationSet)
		},
		func(ctx context.Context) error {
			return s.provider.DeleteConfigSet(ctx, ident.ConfigurationSet)
		})
	sg.add("persist records",
		func(ctx context.Context) error {
			ident.Records = s.synthesizeRecords(domainName, mailFrom, tokens)
			ident.Status = domain.AggregateStatus(ident.Records)
			return s.repo.Update(ctx, ident)
		},
		nil)

	if err := sg.execute(ctx); err != nil {
		return nil, err
	}

	logger.Info("identity provisioned",
		"project_id", projectID, "domain", domainName, "records", len(ident.Records))
	return ident, nil
}

// validateMailFrom enforces that the mail-from domain is a strict,
// non-reserved subdomain of the sending domain. The region label is
// reserved: it is the redirect domain used for click tracking.
func (s *Service) validateMailFrom(domainName, mailFrom string) error {
	suffix := "." + domainName
	if !strings.HasSuffix(mailFrom, suffix) || mailFrom == domainName {
		return apperr.New(apperr.Validation, "mail-from domain must be a subdomain of the sending domain")
	}
	label := strings.TrimSuffix(mailFrom, suffix)
	if label == "" || !domainRegex.MatchString(mailFrom) {
		return apperr.New(apperr.Validation, "mail-from domain must be a subdomain of the sending domain")
	}
	if label == s.region {
		return apperr.Newf(apperr.Validation, "subdomain %q is reserved", label)
	}
	return nil
}

// synthesizeRecords builds the DNS record list the customer must publish:
// one CNAME per DKIM token, plus MX and SPF records when a mail-from
// subdomain is configured. All records start pending.
func (s *Service) synthesizeRecords(domainName string, mailFrom *string, tokens []string) []domain.DNSRecord {
	records := make([]domain.DNSRecord, 0, len(tokens)+2)
	for _, token := range tokens {
		records = append(records, domain.DNSRecord{
			Kind:   domain.RecordDKIM,
			Type:   "CNAME",
			Name:   fmt.Sprintf("%s._domainkey.%s", token, domainName),
			Value:  fmt.Sprintf("%s.%s", token, dkimValueSuffix),
			TTL:    recordTTL,
			Status: domain.VerificationPending,
		})
	}
	if mailFrom != nil {
		records = append(records,
			domain.DNSRecord{
				Kind:     domain.RecordMailFromMX,
				Type:     "MX",
				Name:     *mailFrom,
				Value:    fmt.Sprintf(feedbackMXFormat, s.region),
				Priority: mxPriority,
				TTL:      recordTTL,
				Status:   domain.VerificationPending,
			},
			domain.DNSRecord{
				Kind:   domain.RecordMailFromSPF,
				Type:   "TXT",
				Name:   *mailFrom,
				Value:  spfValue,
				TTL:    recordTTL,
				Status: domain.VerificationPending,
			})
	}
	return records
}

// TriggerVerification re-queries the provider for every proof the
// identity carries and recomputes the aggregate status. It only ever
// re-derives state, so repeated or concurrent calls are safe. Provider
// failures leave the stored state untouched.
func (s *Service) TriggerVerification(ctx context.Context, projectID, id string) (*domain.Identity, error) {
	ident, err := s.repo.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}

	dkimStatus, err := s.provider.DKIMStatus(ctx, ident.Domain)
	if err != nil {
		return nil, err
	}

	var mailFromStatus domain.VerificationStatus
	if ident.MailFromDomain != nil {
		mailFromStatus, err = s.provider.MailFromStatus(ctx, ident.Domain)
		if err != nil {
			return nil, err
		}
	}

	var trackingStatus domain.VerificationStatus
	if ident.OpenTracking || ident.ClickTracking {
		ok, err := s.provider.VerifyRedirectDomain(ctx,
			s.redirectDomain(ident.Domain), fmt.Sprintf(trackingCNAMEHost, s.region))
		if err != nil {
			return nil, err
		}
		trackingStatus = domain.VerificationPending
		if ok {
			trackingStatus = domain.VerificationSuccess
		}
	}

	for i, rec := range ident.Records {
		switch rec.Kind {
		case domain.RecordDKIM:
			ident.Records[i].Status = dkimStatus
		case domain.RecordMailFromMX, domain.RecordMailFromSPF:
			ident.Records[i].Status = mailFromStatus
		case domain.RecordTracking:
			if trackingStatus != "" {
				ident.Records[i].Status = trackingStatus
			}
		}
	}

	ident.Status = domain.AggregateStatus(ident.Records)
	if err := s.repo.Update(ctx, ident); err != nil {
		return nil, err
	}

	logger.Info("identity verification refreshed",
		"identity_id", ident.ID, "domain", ident.Domain, "status", ident.Status)
	return ident, nil
}

// ConfigureTracking toggles open/click tracking. Enabling tracking for
// the first time provisions a provider-side redirect domain and appends
// a pending DNS record, which downgrades the aggregate status until the
// next verification cycle proves it.
func (s *Service) ConfigureTracking(ctx context.Context, projectID, id string, openTracking, clickTracking *bool) (*domain.Identity, error) {
	ident, err := s.repo.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if ident.ConfigurationSet == "" {
		return nil, ErrNoConfigSet
	}

	hadTrackingRecord := false
	for _, rec := range ident.Records {
		if rec.Kind == domain.RecordTracking {
			hadTrackingRecord = true
			break
		}
	}

	if openTracking != nil {
		ident.OpenTracking = *openTracking
	}
	if clickTracking != nil {
		ident.ClickTracking = *clickTracking
	}

	enabling := (ident.OpenTracking || ident.ClickTracking) && !hadTrackingRecord
	if enabling {
		if !ident.IsVerified() {
			return nil, ErrNotVerified
		}
		redirect := s.redirectDomain(ident.Domain)
		if err := s.provider.PutTrackingOptions(ctx, ident.ConfigurationSet, redirect); err != nil {
			return nil, err
		}
		ident.Records = append(ident.Records, domain.DNSRecord{
			Kind:   domain.RecordTracking,
			Type:   "CNAME",
			Name:   redirect,
			Value:  fmt.Sprintf(trackingCNAMEHost, s.region),
			TTL:    recordTTL,
			Status: domain.VerificationPending,
		})
		ident.Status = domain.AggregateStatus(ident.Records)
	}

	if err := s.repo.Update(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

// Deprovision removes an identity. Soft mode keeps the provider-side
// identity; strict mode revokes it entirely. Provider deletions happen
// before the local row is removed so a failure never orphans provider
// state we can no longer find.
func (s *Service) Deprovision(ctx context.Context, projectID, id string, mode DeprovisionMode) error {
	if mode != DeprovisionSoft && mode != DeprovisionStrict {
		return apperr.Newf(apperr.Validation, "unknown deprovision mode %q", mode)
	}

	ident, err := s.repo.Get(ctx, projectID, id)
	if err != nil {
		return err
	}

	if ident.ConfigurationSet != "" {
		if err := s.provider.DeleteConfigSet(ctx, ident.ConfigurationSet); err != nil {
			return err
		}
	}
	if mode == DeprovisionStrict {
		if err := s.provider.DeleteIdentity(ctx, ident.Domain); err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, projectID, id); err != nil {
		return err
	}
	logger.Info("identity deprovisioned",
		"identity_id", id, "domain", ident.Domain, "mode", string(mode))
	return nil
}

// redirectDomain is the region-qualified subdomain used to mask tracked
// links, e.g. "us-east-1.example.com".
func (s *Service) redirectDomain(domainName string) string {
	return fmt.Sprintf("%s.%s", s.region, domainName)
}
