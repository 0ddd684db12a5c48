// Package auth authenticates API requests with project-scoped bearer
// keys. Keys are stored hashed; the middleware resolves the presented key
// to a project id and attaches it to the request context.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ignite/courier/internal/pkg/apperr"
	"github.com/ignite/courier/internal/pkg/httputil"
)

type contextKey struct{}

var projectKey contextKey

// ErrUnauthorized is returned for missing, malformed, or unknown keys.
var ErrUnauthorized = apperr.New(apperr.Unauthorized, "invalid or missing api key")

// Store resolves a hashed API key to a project id.
type Store interface {
	ResolveKey(ctx context.Context, keyHash string) (string, error)
}

// Manager authenticates requests against the key store.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Middleware requires a valid bearer key and stores the resolved project
// id in the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := bearerToken(r)
		if !ok {
			httputil.WriteErr(w, ErrUnauthorized)
			return
		}

		projectID, err := m.store.ResolveKey(r.Context(), HashKey(key))
		if err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				httputil.WriteErr(w, ErrUnauthorized)
				return
			}
			httputil.WriteErr(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), projectKey, projectID)))
	})
}

// ProjectID returns the authenticated project id, or "" outside the
// middleware.
func ProjectID(ctx context.Context) string {
	id, _ := ctx.Value(projectKey).(string)
	return id
}

// HashKey is the storage form of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateKey creates a new random API key with the given prefix, e.g.
// "ck_live". The raw key is shown once; only the hash is stored.
func GenerateKey(prefix string) (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = prefix + "_" + base64.RawURLEncoding.EncodeToString(b)
	return raw, HashKey(raw), nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	const scheme = "bearer "
	if len(h) <= len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) {
		return "", false
	}
	token := strings.TrimSpace(h[len(scheme):])
	return token, token != ""
}
