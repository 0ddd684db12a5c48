package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/courier/internal/api"
	"github.com/ignite/courier/internal/auth"
	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/apperr"
	"github.com/ignite/courier/internal/service/identity"
	"github.com/ignite/courier/internal/service/ingest"
	"github.com/ignite/courier/internal/service/send"
	"github.com/ignite/courier/internal/ses"
)

// Compact in-memory fakes so handler tests can run the real services
// end to end through the router.

type identRepo struct {
	byID map[string]*domain.Identity
}

func (f *identRepo) Get(_ context.Context, projectID, id string) (*domain.Identity, error) {
	ident, ok := f.byID[id]
	if !ok || ident.ProjectID != projectID {
		return nil, identity.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (f *identRepo) GetByDomain(_ context.Context, projectID, domainName string) (*domain.Identity, error) {
	for _, ident := range f.byID {
		if ident.ProjectID == projectID && ident.Domain == domainName {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (f *identRepo) List(_ context.Context, projectID string) ([]domain.Identity, error) {
	var out []domain.Identity
	for _, ident := range f.byID {
		if ident.ProjectID == projectID {
			out = append(out, *ident)
		}
	}
	return out, nil
}

func (f *identRepo) Create(_ context.Context, ident *domain.Identity) error {
	cp := *ident
	f.byID[cp.ID] = &cp
	return nil
}

func (f *identRepo) Update(_ context.Context, ident *domain.Identity) error {
	cp := *ident
	f.byID[cp.ID] = &cp
	return nil
}

func (f *identRepo) Delete(_ context.Context, projectID, id string) error {
	delete(f.byID, id)
	return nil
}

type identProvider struct{}

func (identProvider) VerifyDomainDKIM(context.Context, string) ([]string, error) {
	return []string{"tok1", "tok2"}, nil
}
func (identProvider) SetMailFromDomain(context.Context, string, string) error { return nil }
func (identProvider) ClearMailFromDomain(context.Context, string) error       { return nil }
func (identProvider) CreateConfigSet(context.Context, string) error           { return nil }
func (identProvider) DeleteConfigSet(context.Context, string) error           { return nil }
func (identProvider) DeleteIdentity(context.Context, string) error            { return nil }
func (identProvider) DKIMStatus(context.Context, string) (domain.VerificationStatus, error) {
	return domain.VerificationSuccess, nil
}
func (identProvider) MailFromStatus(context.Context, string) (domain.VerificationStatus, error) {
	return domain.VerificationSuccess, nil
}
func (identProvider) PutTrackingOptions(context.Context, string, string) error { return nil }
func (identProvider) VerifyRedirectDomain(context.Context, string, string) (bool, error) {
	return true, nil
}

type msgRepo struct {
	byID   map[string]*domain.Message
	events map[string][]domain.Event
}

func newMsgRepo() *msgRepo {
	return &msgRepo{byID: make(map[string]*domain.Message), events: make(map[string][]domain.Event)}
}

func (f *msgRepo) Create(_ context.Context, msg *domain.Message, initial *domain.Event) error {
	cp := *msg
	f.byID[cp.ID] = &cp
	f.events[cp.ID] = append(f.events[cp.ID], *initial)
	return nil
}

func (f *msgRepo) Get(_ context.Context, projectID, id string) (*domain.Message, error) {
	msg, ok := f.byID[id]
	if !ok || msg.ProjectID != projectID {
		return nil, send.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (f *msgRepo) List(_ context.Context, projectID string, limit, offset int) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range f.byID {
		if msg.ProjectID == projectID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (f *msgRepo) SetProviderMessageID(_ context.Context, id, pmid string) error {
	f.byID[id].ProviderMessageID = pmid
	return nil
}

func (f *msgRepo) UpdateStatus(_ context.Context, id string, status domain.MessageStatus) error {
	f.byID[id].Status = status
	return nil
}

func (f *msgRepo) AppendEvent(_ context.Context, ev *domain.Event) error {
	f.events[ev.MessageID] = append(f.events[ev.MessageID], *ev)
	return nil
}

func (f *msgRepo) ListEvents(_ context.Context, projectID, messageID string) ([]domain.Event, error) {
	return append([]domain.Event(nil), f.events[messageID]...), nil
}

func (f *msgRepo) FindByProviderID(_ context.Context, pmid, recipient string) (*domain.Message, error) {
	for _, msg := range f.byID {
		if msg.ProviderMessageID == pmid && msg.To == recipient {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, send.ErrMessageNotFound
}

type msgProvider struct{ id string }

func (f msgProvider) Send(context.Context, ses.SendParams) (string, error) { return f.id, nil }

func (f msgProvider) ProviderFor(context.Context, string) (send.Provider, error) { return f, nil }

type noopGovernor struct{}

func (noopGovernor) AcquireSlot(context.Context) error { return nil }
func (noopGovernor) RecordSend(context.Context) error  { return nil }

type keyStore struct{ hash, project string }

func (f keyStore) ResolveKey(_ context.Context, keyHash string) (string, error) {
	if keyHash == f.hash {
		return f.project, nil
	}
	return "", apperr.New(apperr.NotFound, "api key not found")
}

type fixedUsage int64

func (f fixedUsage) Usage(context.Context) (int64, error) { return int64(f), nil }

type testEnv struct {
	router http.Handler
	rawKey string
	idents *identRepo
	msgs   *msgRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	raw, hash, err := auth.GenerateKey("ck_test")
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	idents := &identRepo{byID: make(map[string]*domain.Identity)}
	msgs := newMsgRepo()

	identitySvc := identity.NewService(idents, identProvider{}, "us-east-1", nil)
	sendSvc := send.NewService(msgs, idents, msgProvider{id: "ses-msg-1"}, noopGovernor{})
	ingestSvc := ingest.NewService(msgs, nil)

	h := api.NewHandlers(identitySvc, sendSvc, ingestSvc, fixedUsage(7))
	router := api.SetupRoutes(h, auth.NewManager(keyStore{hash: hash, project: "proj-1"}))
	return &testEnv{router: router, rawKey: raw, idents: idents, msgs: msgs}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.rawKey)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["sends_in_window"] != float64(7) {
		t.Errorf("body = %v", body)
	}
}

func TestAPIRequiresKey(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/identities", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestIdentityLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/identities",
		map[string]any{"domain": "example.com", "mail_from_domain": "send.example.com"}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var ident domain.Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &ident); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ident.Records) != 4 {
		t.Errorf("records = %d, want 2 DKIM + MX + SPF", len(ident.Records))
	}

	// Duplicate domain conflicts.
	rec = env.do(t, http.MethodPost, "/api/v1/identities", map[string]any{"domain": "example.com"}, true)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/identities/"+ident.ID+"/verify", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ident); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ident.Status != domain.VerificationSuccess {
		t.Errorf("status = %s, want success", ident.Status)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/identities/"+ident.ID+"?mode=strict", nil, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/identities/"+ident.ID, nil, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}

func TestSendAndIngestOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/identities", map[string]any{"domain": "example.com"}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create identity: %d", rec.Code)
	}
	var ident domain.Identity
	json.Unmarshal(rec.Body.Bytes(), &ident)
	env.do(t, http.MethodPost, "/api/v1/identities/"+ident.ID+"/verify", nil, true)

	rec = env.do(t, http.MethodPost, "/api/v1/send", map[string]any{
		"from": "news@example.com", "to": "alice@recipient.test",
		"subject": "hello", "text_body": "hi",
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send status = %d: %s", rec.Code, rec.Body.String())
	}
	var msg domain.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Status != domain.StatusSending || msg.ProviderMessageID != "ses-msg-1" {
		t.Errorf("unexpected message: %+v", msg)
	}

	// A sender domain with no identity is rejected.
	rec = env.do(t, http.MethodPost, "/api/v1/send", map[string]any{
		"from": "news@unknown.com", "to": "alice@recipient.test", "text_body": "hi",
	}, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown sender status = %d, want 404", rec.Code)
	}

	// A delivery notification lands unauthenticated and advances status.
	note := `{"eventType":"Delivery","mail":{"messageId":"ses-msg-1","destination":["alice@recipient.test"]},"delivery":{"recipients":["alice@recipient.test"]}}`
	envelope := map[string]string{"Type": "Notification", "Message": note}
	rec = env.do(t, http.MethodPost, "/webhooks/incoming", envelope, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/messages/"+msg.ID, nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get message: %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &msg)
	if msg.Status != domain.StatusDelivered {
		t.Errorf("status = %s, want delivered", msg.Status)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/messages/"+msg.ID+"/events", nil, true)
	var events struct {
		Events []domain.Event `json:"events"`
	}
	json.Unmarshal(rec.Body.Bytes(), &events)
	if len(events.Events) != 2 {
		t.Errorf("events = %d, want sending + delivered", len(events.Events))
	}
}
