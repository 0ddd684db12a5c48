package ses

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/apperr"
)

// fakeAPI scripts SES responses per method.
type fakeAPI struct {
	createIdentityErr error
	dkimTokens        []string
	dkimStatus        types.DkimStatus
	mailFromStatus    types.MailFromDomainStatus
	sendErr           error
	messageID         string
	destinationErr    error

	configSetsCreated []string
	configSetsDeleted []string
	identitiesDeleted []string
}

func (f *fakeAPI) CreateEmailIdentity(_ context.Context, params *sesv2.CreateEmailIdentityInput, _ ...func(*sesv2.Options)) (*sesv2.CreateEmailIdentityOutput, error) {
	if f.createIdentityErr != nil {
		return nil, f.createIdentityErr
	}
	return &sesv2.CreateEmailIdentityOutput{
		DkimAttributes: &types.DkimAttributes{Tokens: f.dkimTokens},
	}, nil
}

func (f *fakeAPI) GetEmailIdentity(_ context.Context, params *sesv2.GetEmailIdentityInput, _ ...func(*sesv2.Options)) (*sesv2.GetEmailIdentityOutput, error) {
	return &sesv2.GetEmailIdentityOutput{
		DkimAttributes:     &types.DkimAttributes{Tokens: f.dkimTokens, Status: f.dkimStatus},
		MailFromAttributes: &types.MailFromAttributes{MailFromDomainStatus: f.mailFromStatus},
	}, nil
}

func (f *fakeAPI) DeleteEmailIdentity(_ context.Context, params *sesv2.DeleteEmailIdentityInput, _ ...func(*sesv2.Options)) (*sesv2.DeleteEmailIdentityOutput, error) {
	f.identitiesDeleted = append(f.identitiesDeleted, aws.ToString(params.EmailIdentity))
	return &sesv2.DeleteEmailIdentityOutput{}, nil
}

func (f *fakeAPI) PutEmailIdentityMailFromAttributes(_ context.Context, params *sesv2.PutEmailIdentityMailFromAttributesInput, _ ...func(*sesv2.Options)) (*sesv2.PutEmailIdentityMailFromAttributesOutput, error) {
	return &sesv2.PutEmailIdentityMailFromAttributesOutput{}, nil
}

func (f *fakeAPI) CreateConfigurationSet(_ context.Context, params *sesv2.CreateConfigurationSetInput, _ ...func(*sesv2.Options)) (*sesv2.CreateConfigurationSetOutput, error) {
	f.configSetsCreated = append(f.configSetsCreated, aws.ToString(params.ConfigurationSetName))
	return &sesv2.CreateConfigurationSetOutput{}, nil
}

func (f *fakeAPI) DeleteConfigurationSet(_ context.Context, params *sesv2.DeleteConfigurationSetInput, _ ...func(*sesv2.Options)) (*sesv2.DeleteConfigurationSetOutput, error) {
	f.configSetsDeleted = append(f.configSetsDeleted, aws.ToString(params.ConfigurationSetName))
	return &sesv2.DeleteConfigurationSetOutput{}, nil
}

func (f *fakeAPI) CreateConfigurationSetEventDestination(_ context.Context, params *sesv2.CreateConfigurationSetEventDestinationInput, _ ...func(*sesv2.Options)) (*sesv2.CreateConfigurationSetEventDestinationOutput, error) {
	if f.destinationErr != nil {
		return nil, f.destinationErr
	}
	return &sesv2.CreateConfigurationSetEventDestinationOutput{}, nil
}

func (f *fakeAPI) PutConfigurationSetTrackingOptions(_ context.Context, params *sesv2.PutConfigurationSetTrackingOptionsInput, _ ...func(*sesv2.Options)) (*sesv2.PutConfigurationSetTrackingOptionsOutput, error) {
	return &sesv2.PutConfigurationSetTrackingOptionsOutput{}, nil
}

func (f *fakeAPI) GetAccount(_ context.Context, params *sesv2.GetAccountInput, _ ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	return &sesv2.GetAccountOutput{
		SendQuota: &types.SendQuota{Max24HourSend: 50000, MaxSendRate: 14, SentLast24Hours: 120},
	}, nil
}

func (f *fakeAPI) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String(f.messageID)}, nil
}

func (f *fakeAPI) ListEmailIdentities(_ context.Context, params *sesv2.ListEmailIdentitiesInput, _ ...func(*sesv2.Options)) (*sesv2.ListEmailIdentitiesOutput, error) {
	return &sesv2.ListEmailIdentitiesOutput{
		EmailIdentities: []types.IdentityInfo{{IdentityName: aws.String("example.com")}},
	}, nil
}

type fakeResolver struct {
	cname string
	err   error
}

func (f fakeResolver) LookupCNAME(context.Context, string) (string, error) {
	return f.cname, f.err
}

func TestVerifyDomainDKIMExistingIdentity(t *testing.T) {
	api := &fakeAPI{
		createIdentityErr: &types.AlreadyExistsException{},
		dkimTokens:        []string{"tok1", "tok2", "tok3"},
	}
	c := NewClientWithAPI(api, "us-east-1", "arn:topic", nil)

	tokens, err := c.VerifyDomainDKIM(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(tokens) != 3 {
		t.Errorf("tokens = %v, want 3 from existing identity", tokens)
	}
}

func TestCreateConfigSetRollsBackOnDestinationFailure(t *testing.T) {
	api := &fakeAPI{destinationErr: &types.BadRequestException{Message: aws.String("bad topic")}}
	c := NewClientWithAPI(api, "us-east-1", "arn:topic", nil)

	err := c.CreateConfigSet(context.Background(), "courier-test")
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(api.configSetsCreated) != 1 || len(api.configSetsDeleted) != 1 {
		t.Errorf("created=%v deleted=%v, want the orphan set removed",
			api.configSetsCreated, api.configSetsDeleted)
	}
}

func TestDKIMStatusMapping(t *testing.T) {
	cases := []struct {
		in   types.DkimStatus
		want domain.VerificationStatus
	}{
		{types.DkimStatusSuccess, domain.VerificationSuccess},
		{types.DkimStatusPending, domain.VerificationPending},
		{types.DkimStatusFailed, domain.VerificationFailed},
		{types.DkimStatusNotStarted, domain.VerificationNotStarted},
	}
	for _, cs := range cases {
		c := NewClientWithAPI(&fakeAPI{dkimStatus: cs.in}, "us-east-1", "", nil)
		got, err := c.DKIMStatus(context.Background(), "example.com")
		if err != nil {
			t.Fatalf("status(%s): %v", cs.in, err)
		}
		if got != cs.want {
			t.Errorf("status(%s) = %s, want %s", cs.in, got, cs.want)
		}
	}
}

func TestSendClassifiesRejection(t *testing.T) {
	api := &fakeAPI{sendErr: &types.MessageRejected{Message: aws.String("Email address is not verified")}}
	c := NewClientWithAPI(api, "us-east-1", "", nil)

	_, err := c.Send(context.Background(), SendParams{From: "a@b.com", To: "c@d.com", Subject: "s", TextBody: "t"})
	if apperr.KindOf(err) != apperr.Provider {
		t.Fatalf("err = %v, want provider kind", err)
	}
}

func TestSendReturnsMessageID(t *testing.T) {
	c := NewClientWithAPI(&fakeAPI{messageID: "msg-123"}, "us-east-1", "", nil)

	id, err := c.Send(context.Background(), SendParams{From: "a@b.com", To: "c@d.com", Subject: "s", TextBody: "t"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "msg-123" {
		t.Errorf("id = %q", id)
	}
}

func TestVerifyRedirectDomain(t *testing.T) {
	c := NewClientWithAPI(&fakeAPI{}, "us-east-1", "",
		fakeResolver{cname: "r.us-east-1.awstrack.me."})
	ok, err := c.VerifyRedirectDomain(context.Background(), "us-east-1.example.com", "r.us-east-1.awstrack.me")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want match", ok, err)
	}

	c = NewClientWithAPI(&fakeAPI{}, "us-east-1", "",
		fakeResolver{err: &net.DNSError{IsNotFound: true}})
	ok, err = c.VerifyRedirectDomain(context.Background(), "us-east-1.example.com", "r.us-east-1.awstrack.me")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v, want unpublished record to read as false", ok, err)
	}

	c = NewClientWithAPI(&fakeAPI{}, "us-east-1", "",
		fakeResolver{err: errors.New("servfail")})
	if _, err = c.VerifyRedirectDomain(context.Background(), "us-east-1.example.com", "r.us-east-1.awstrack.me"); err == nil {
		t.Fatal("transient DNS failure must surface")
	}
}

func TestListIdentities(t *testing.T) {
	c := NewClientWithAPI(&fakeAPI{}, "us-east-1", "", nil)
	names, err := c.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "example.com" {
		t.Errorf("names = %v", names)
	}
}

func TestGetSendQuota(t *testing.T) {
	c := NewClientWithAPI(&fakeAPI{}, "us-east-1", "", nil)
	q, err := c.GetSendQuota(context.Background())
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if q.MaxSendRate != 14 || q.Max24HourSend != 50000 {
		t.Errorf("quota = %+v", q)
	}
}
