package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/courier/internal/auth"
	"github.com/ignite/courier/internal/pkg/httputil"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/service/identity"
	"github.com/ignite/courier/internal/service/ingest"
	"github.com/ignite/courier/internal/service/send"
)

// UsageReporter exposes the current send-counter reading for the health
// endpoint.
type UsageReporter interface {
	Usage(ctx context.Context) (int64, error)
}

// Handlers carries the services the HTTP layer fronts.
type Handlers struct {
	identity *identity.Service
	send     *send.Service
	ingest   *ingest.Service
	usage    UsageReporter
}

func NewHandlers(identitySvc *identity.Service, sendSvc *send.Service, ingestSvc *ingest.Service, usage UsageReporter) *Handlers {
	return &Handlers{identity: identitySvc, send: sendSvc, ingest: ingestSvc, usage: usage}
}

// HealthCheck reports liveness plus the governor's current window usage.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.usage != nil {
		if used, err := h.usage.Usage(r.Context()); err == nil {
			resp["sends_in_window"] = used
		} else {
			resp["status"] = "degraded"
			logger.Warn("health: governor unreachable", "error", err.Error())
		}
	}
	httputil.OK(w, resp)
}

type provisionRequest struct {
	Domain         string  `json:"domain"`
	MailFromDomain *string `json:"mail_from_domain,omitempty"`
}

func (h *Handlers) CreateIdentity(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	ident, err := h.identity.Provision(r.Context(), auth.ProjectID(r.Context()), req.Domain, req.MailFromDomain)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.Created(w, ident)
}

func (h *Handlers) GetIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := h.identity.Get(r.Context(), auth.ProjectID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.OK(w, ident)
}

func (h *Handlers) ListIdentities(w http.ResponseWriter, r *http.Request) {
	idents, err := h.identity.List(r.Context(), auth.ProjectID(r.Context()))
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.OK(w, map[string]any{"identities": idents})
}

func (h *Handlers) VerifyIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := h.identity.TriggerVerification(r.Context(), auth.ProjectID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.OK(w, ident)
}

type trackingRequest struct {
	OpenTracking  *bool `json:"open_tracking,omitempty"`
	ClickTracking *bool `json:"click_tracking,omitempty"`
}

func (h *Handlers) ConfigureTracking(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	ident, err := h.identity.ConfigureTracking(r.Context(), auth.ProjectID(r.Context()),
		chi.URLParam(r, "id"), req.OpenTracking, req.ClickTracking)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.OK(w, ident)
}

func (h *Handlers) DeleteIdentity(w http.ResponseWriter, r *http.Request) {
	mode := identity.DeprovisionMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = identity.DeprovisionSoft
	}
	err := h.identity.Deprovision(r.Context(), auth.ProjectID(r.Context()), chi.URLParam(r, "id"), mode)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req send.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	msg, err := h.send.Send(r.Context(), auth.ProjectID(r.Context()), req)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.Created(w, msg)
}

func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.send.Get(r.Context(), auth.ProjectID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.OK(w, msg)
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	msgs, err := h.send.List(r.Context(), auth.ProjectID(r.Context()), limit, offset)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.OK(w, map[string]any{"messages": msgs, "limit": limit, "offset": offset})
}

func (h *Handlers) ListMessageEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.send.Events(r.Context(), auth.ProjectID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.OK(w, map[string]any{"events": events})
}

// IncomingWebhook accepts notification pushes. The transport posts JSON
// with a text/plain content type, so the body is decoded unconditionally.
// Unprocessable payloads are acknowledged so they are not redelivered
// forever; only storage failures ask for redelivery.
func (h *Handlers) IncomingWebhook(w http.ResponseWriter, r *http.Request) {
	var env ingest.Envelope
	if !httputil.Decode(w, r, &env) {
		return
	}
	if err := h.ingest.Ingest(r.Context(), env); err != nil {
		httputil.WriteErr(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "accepted"})
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
