package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/courier/internal/auth"
	"github.com/ignite/courier/internal/pkg/apperr"
)

type fakeStore struct {
	keys map[string]string // hash -> project id
}

func (f *fakeStore) ResolveKey(_ context.Context, keyHash string) (string, error) {
	id, ok := f.keys[keyHash]
	if !ok {
		return "", apperr.New(apperr.NotFound, "api key not found")
	}
	return id, nil
}

func TestMiddleware(t *testing.T) {
	raw, hash, err := auth.GenerateKey("ck_test")
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	mgr := auth.NewManager(&fakeStore{keys: map[string]string{hash: "proj-1"}})

	var gotProject string
	handler := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotProject = auth.ProjectID(r.Context())
	}))

	cases := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid key", "Bearer " + raw, http.StatusOK},
		{"case-insensitive scheme", "bearer " + raw, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + raw, http.StatusUnauthorized},
		{"unknown key", "Bearer ck_test_bogus", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gotProject = ""
			req := httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil)
			if c.authHeader != "" {
				req.Header.Set("Authorization", c.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != c.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, c.wantStatus)
			}
			if c.wantStatus == http.StatusOK && gotProject != "proj-1" {
				t.Errorf("project id = %q, want proj-1", gotProject)
			}
			if c.wantStatus != http.StatusOK && gotProject != "" {
				t.Error("handler ran without authentication")
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	raw1, hash1, err := auth.GenerateKey("ck_live")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	raw2, hash2, err := auth.GenerateKey("ck_live")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if raw1 == raw2 || hash1 == hash2 {
		t.Error("keys are not unique")
	}
	if auth.HashKey(raw1) != hash1 {
		t.Error("hash does not match raw key")
	}
}
