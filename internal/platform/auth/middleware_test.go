package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubTokenVerifier struct {
	identity *Identity
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyToken(_ context.Context, token string) (*Identity, error) {
	s.received = token
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func TestRequireBearer_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{identity: &Identity{Subject: "admin@examportal.test", Roles: []string{"ADMIN"}}}
	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireBearer(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if !identity.HasRole(RoleAdmin) {
			t.Fatalf("expected admin role, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer token-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if verifier.received != "token-1" {
		t.Fatalf("expected verifier to receive token, got %q", verifier.received)
	}
}

func TestRequireBearer_RejectsMissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})
	rr := httptest.NewRecorder()
	authn.RequireBearer(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestRequireBearer_MapsExpiredToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenExpired})
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rr := httptest.NewRecorder()
	authn.RequireBearer(RoleAdmin)(http.NotFoundHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired, got %v", body["error"])
	}
}

func TestRequireBearer_RejectsWrongRole(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{identity: &Identity{Subject: "x", Roles: []string{"viewer"}}})
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	authn.RequireBearer(RoleAdmin)(http.NotFoundHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOptionalBearer_PassesAnonymousThrough(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenInvalid})
	rr := httptest.NewRecorder()
	authn.OptionalBearer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("expected no identity")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/registration/users", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/registration/users", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rr = httptest.NewRecorder()
	authn.OptionalBearer()(http.NotFoundHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected invalid token to be rejected, got %d", rr.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
	}
	for header, want := range cases {
		got, ok := ExtractBearerToken(header)
		if !ok || got != want {
			t.Fatalf("ExtractBearerToken(%q) = %q, %v", header, got, ok)
		}
	}
	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		if _, ok := ExtractBearerToken(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}
