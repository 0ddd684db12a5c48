// Package ses wraps the AWS SES v2 API behind the narrow surface the
// delivery subsystem needs: identity provisioning, configuration sets,
// quota, and sending.
package ses

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/courier/internal/config"
	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/apperr"
)

// API is the subset of the SES v2 client this package uses. Declared as
// an interface so tests can substitute a fake without touching AWS.
type API interface {
	CreateEmailIdentity(ctx context.Context, params *sesv2.CreateEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.CreateEmailIdentityOutput, error)
	GetEmailIdentity(ctx context.Context, params *sesv2.GetEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.GetEmailIdentityOutput, error)
	DeleteEmailIdentity(ctx context.Context, params *sesv2.DeleteEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.DeleteEmailIdentityOutput, error)
	PutEmailIdentityMailFromAttributes(ctx context.Context, params *sesv2.PutEmailIdentityMailFromAttributesInput, optFns ...func(*sesv2.Options)) (*sesv2.PutEmailIdentityMailFromAttributesOutput, error)
	CreateConfigurationSet(ctx context.Context, params *sesv2.CreateConfigurationSetInput, optFns ...func(*sesv2.Options)) (*sesv2.CreateConfigurationSetOutput, error)
	DeleteConfigurationSet(ctx context.Context, params *sesv2.DeleteConfigurationSetInput, optFns ...func(*sesv2.Options)) (*sesv2.DeleteConfigurationSetOutput, error)
	CreateConfigurationSetEventDestination(ctx context.Context, params *sesv2.CreateConfigurationSetEventDestinationInput, optFns ...func(*sesv2.Options)) (*sesv2.CreateConfigurationSetEventDestinationOutput, error)
	PutConfigurationSetTrackingOptions(ctx context.Context, params *sesv2.PutConfigurationSetTrackingOptionsInput, optFns ...func(*sesv2.Options)) (*sesv2.PutConfigurationSetTrackingOptionsOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	ListEmailIdentities(ctx context.Context, params *sesv2.ListEmailIdentitiesInput, optFns ...func(*sesv2.Options)) (*sesv2.ListEmailIdentitiesOutput, error)
}

// Resolver looks up CNAME records for redirect-domain verification.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// Client is the SES v2 API client for the delivery subsystem.
type Client struct {
	api         API
	region      string
	snsTopicARN string
	resolver    Resolver
}

// NewClient creates an SES client from platform configuration.
func NewClient(ctx context.Context, cfg appconfig.SESConfig) (*Client, error) {
	return NewClientWithCredentials(ctx, cfg.AccessKey, cfg.SecretKey, cfg.Region, cfg.SNSTopicARN)
}

// NewClientWithCredentials creates an SES client with explicit static
// credentials, used for per-project sending credentials.
func NewClientWithCredentials(ctx context.Context, accessKey, secretKey, region, snsTopicARN string) (*Client, error) {
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Client{
		api:         sesv2.NewFromConfig(awsCfg),
		region:      region,
		snsTopicARN: snsTopicARN,
		resolver:    net.DefaultResolver,
	}, nil
}

// NewClientWithAPI wires an explicit API implementation; used by tests.
func NewClientWithAPI(api API, region, snsTopicARN string, resolver Resolver) *Client {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Client{api: api, region: region, snsTopicARN: snsTopicARN, resolver: resolver}
}

// Region returns the AWS region this client operates in.
func (c *Client) Region() string { return c.region }

// VerifyDomainDKIM registers the domain with SES (idempotently) and
// returns its Easy DKIM tokens.
func (c *Client) VerifyDomainDKIM(ctx context.Context, domainName string) ([]string, error) {
	out, err := c.api.CreateEmailIdentity(ctx, &sesv2.CreateEmailIdentityInput{
		EmailIdentity: aws.String(domainName),
	})
	if err != nil {
		var exists *types.AlreadyExistsException
		if !errors.As(err, &exists) {
			return nil, classify("CreateEmailIdentity", err)
		}
		// Identity already known to SES; fetch its tokens instead.
		got, gerr := c.api.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
			EmailIdentity: aws.String(domainName),
		})
		if gerr != nil {
			return nil, classify("GetEmailIdentity", gerr)
		}
		if got.DkimAttributes == nil {
			return nil, nil
		}
		return got.DkimAttributes.Tokens, nil
	}
	if out.DkimAttributes == nil {
		return nil, nil
	}
	return out.DkimAttributes.Tokens, nil
}

// SetMailFromDomain configures a custom MAIL FROM domain for the identity.
func (c *Client) SetMailFromDomain(ctx context.Context, domainName, mailFrom string) error {
	_, err := c.api.PutEmailIdentityMailFromAttributes(ctx, &sesv2.PutEmailIdentityMailFromAttributesInput{
		EmailIdentity:       aws.String(domainName),
		MailFromDomain:      aws.String(mailFrom),
		BehaviorOnMxFailure: types.BehaviorOnMxFailureUseDefaultValue,
	})
	if err != nil {
		return classify("PutEmailIdentityMailFromAttributes", err)
	}
	return nil
}

// ClearMailFromDomain removes the custom MAIL FROM configuration; used as
// the compensating action when provisioning fails partway.
func (c *Client) ClearMailFromDomain(ctx context.Context, domainName string) error {
	_, err := c.api.PutEmailIdentityMailFromAttributes(ctx, &sesv2.PutEmailIdentityMailFromAttributesInput{
		EmailIdentity: aws.String(domainName),
	})
	if err != nil {
		return classify("PutEmailIdentityMailFromAttributes", err)
	}
	return nil
}

// CreateConfigSet creates a configuration set and binds it to the SNS
// feedback topic so delivery events flow back to the webhook.
func (c *Client) CreateConfigSet(ctx context.Context, name string) error {
	_, err := c.api.CreateConfigurationSet(ctx, &sesv2.CreateConfigurationSetInput{
		ConfigurationSetName: aws.String(name),
	})
	if err != nil {
		return classify("CreateConfigurationSet", err)
	}

	_, err = c.api.CreateConfigurationSetEventDestination(ctx, &sesv2.CreateConfigurationSetEventDestinationInput{
		ConfigurationSetName: aws.String(name),
		EventDestinationName: aws.String(name + "-feedback"),
		EventDestination: &types.EventDestinationDefinition{
			Enabled: true,
			MatchingEventTypes: []types.EventType{
				types.EventTypeSend,
				types.EventTypeDelivery,
				types.EventTypeBounce,
				types.EventTypeComplaint,
				types.EventTypeOpen,
				types.EventTypeClick,
				types.EventTypeReject,
			},
			SnsDestination: &types.SnsDestination{
				TopicArn: aws.String(c.snsTopicARN),
			},
		},
	})
	if err != nil {
		// Leave no half-bound configuration set behind.
		c.api.DeleteConfigurationSet(ctx, &sesv2.DeleteConfigurationSetInput{
			ConfigurationSetName: aws.String(name),
		})
		return classify("CreateConfigurationSetEventDestination", err)
	}
	return nil
}

// DeleteConfigSet removes a configuration set. A set SES no longer knows
// about is treated as already deleted.
func (c *Client) DeleteConfigSet(ctx context.Context, name string) error {
	_, err := c.api.DeleteConfigurationSet(ctx, &sesv2.DeleteConfigurationSetInput{
		ConfigurationSetName: aws.String(name),
	})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return classify("DeleteConfigurationSet", err)
	}
	return nil
}

// DeleteIdentity removes the provider-side identity. Irreversible.
func (c *Client) DeleteIdentity(ctx context.Context, domainName string) error {
	_, err := c.api.DeleteEmailIdentity(ctx, &sesv2.DeleteEmailIdentityInput{
		EmailIdentity: aws.String(domainName),
	})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return classify("DeleteEmailIdentity", err)
	}
	return nil
}

// DKIMStatus returns the provider's DKIM verification state for a domain.
func (c *Client) DKIMStatus(ctx context.Context, domainName string) (domain.VerificationStatus, error) {
	out, err := c.api.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
		EmailIdentity: aws.String(domainName),
	})
	if err != nil {
		return "", classify("GetEmailIdentity", err)
	}
	if out.DkimAttributes == nil {
		return domain.VerificationNotStarted, nil
	}
	return mapDkimStatus(out.DkimAttributes.Status), nil
}

// MailFromStatus returns the provider's MAIL FROM verification state.
func (c *Client) MailFromStatus(ctx context.Context, domainName string) (domain.VerificationStatus, error) {
	out, err := c.api.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
		EmailIdentity: aws.String(domainName),
	})
	if err != nil {
		return "", classify("GetEmailIdentity", err)
	}
	if out.MailFromAttributes == nil {
		return domain.VerificationNotStarted, nil
	}
	return mapMailFromStatus(out.MailFromAttributes.MailFromDomainStatus), nil
}

// PutTrackingOptions points open/click tracking links at a custom
// redirect domain for the configuration set.
func (c *Client) PutTrackingOptions(ctx context.Context, configSet, redirectDomain string) error {
	_, err := c.api.PutConfigurationSetTrackingOptions(ctx, &sesv2.PutConfigurationSetTrackingOptionsInput{
		ConfigurationSetName: aws.String(configSet),
		CustomRedirectDomain: aws.String(redirectDomain),
	})
	if err != nil {
		return classify("PutConfigurationSetTrackingOptions", err)
	}
	return nil
}

// VerifyRedirectDomain checks that the redirect domain's CNAME points at
// the expected tracking endpoint. DNS lookups are how redirect domains
// are proven; SES has no status API for them.
func (c *Client) VerifyRedirectDomain(ctx context.Context, redirectDomain, expected string) (bool, error) {
	cname, err := c.resolver.LookupCNAME(ctx, redirectDomain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return false, nil
		}
		return false, apperr.Wrap(apperr.Provider, "redirect domain lookup failed", err)
	}
	return strings.TrimSuffix(cname, ".") == strings.TrimSuffix(expected, "."), nil
}

// GetSendQuota returns the account's sending quota. Also serves as
// credential validation: invalid credentials fail here.
func (c *Client) GetSendQuota(ctx context.Context) (SendQuota, error) {
	out, err := c.api.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return SendQuota{}, classify("GetAccount", err)
	}
	if out.SendQuota == nil {
		return SendQuota{}, nil
	}
	return SendQuota{
		Max24HourSend:   out.SendQuota.Max24HourSend,
		MaxSendRate:     out.SendQuota.MaxSendRate,
		SentLast24Hours: out.SendQuota.SentLast24Hours,
	}, nil
}

// Send submits one message and returns the provider-assigned message id.
func (c *Client) Send(ctx context.Context, params SendParams) (string, error) {
	var htmlContent *types.Content
	if params.HTMLBody != "" {
		htmlContent = &types.Content{Charset: aws.String(charSet), Data: aws.String(params.HTMLBody)}
	}
	var textContent *types.Content
	if params.TextBody != "" {
		textContent = &types.Content{Charset: aws.String(charSet), Data: aws.String(params.TextBody)}
	}

	var headers []types.MessageHeader
	for name, value := range params.Headers {
		headers = append(headers, types.MessageHeader{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	var configSet *string
	if params.ConfigSet != "" {
		configSet = aws.String(params.ConfigSet)
	}

	var replyTo []string
	if params.ReplyTo != "" {
		replyTo = []string{params.ReplyTo}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(params.From),
		Destination:      &types.Destination{ToAddresses: []string{params.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Charset: aws.String(charSet), Data: aws.String(params.Subject)},
				Body: &types.Body{
					Html: htmlContent,
					Text: textContent,
				},
				Headers: headers,
			},
		},
		ReplyToAddresses:     replyTo,
		ConfigurationSetName: configSet,
	}

	out, err := c.api.SendEmail(ctx, input)
	if err != nil {
		return "", classify("SendEmail", err)
	}
	if out.MessageId == nil {
		return "", apperr.New(apperr.Provider, "provider returned no message id")
	}
	return *out.MessageId, nil
}

// ListIdentities returns all identities registered with the account.
func (c *Client) ListIdentities(ctx context.Context) ([]string, error) {
	var names []string
	var next *string
	for {
		out, err := c.api.ListEmailIdentities(ctx, &sesv2.ListEmailIdentitiesInput{NextToken: next})
		if err != nil {
			return nil, classify("ListEmailIdentities", err)
		}
		for _, id := range out.EmailIdentities {
			if id.IdentityName != nil {
				names = append(names, *id.IdentityName)
			}
		}
		if out.NextToken == nil {
			break
		}
		next = out.NextToken
	}
	return names, nil
}
