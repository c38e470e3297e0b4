package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

type recordingMetrics struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func TestJWKSCache_KeyCachesKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "key1", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	var mu sync.Mutex
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_000_000, 0)
	cache := NewJWKSCache(server.URL, WithJWKSLogger(noopLogger{}), WithJWKSClock(func() time.Time { return now }))

	got, err := cache.Key(context.Background(), "key1")
	if err != nil {
		t.Fatalf("cache.Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}
	if _, err := cache.Key(context.Background(), "key1"); err != nil {
		t.Fatalf("second call: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(context.Background(), "key1"); err != nil {
		t.Fatalf("after expiry: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if requests != 2 {
		t.Fatalf("expected a fetch per validity window, got %d", requests)
	}
}

func TestOIDCRequireOIDC_Success(t *testing.T) {
	validator, metrics, token := setupOIDCTest(t, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/internal/payments/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	validator.RequireOIDC("https://portal.example.com", []string{"https://accounts.google.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected service identity in context")
		}
		if identity.Email != "scheduler@example.iam.gserviceaccount.com" {
			t.Fatalf("unexpected email %q", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.records) != 1 || !metrics.records[0].success || metrics.records[0].kind != "oidc" {
		t.Fatalf("unexpected metric records: %+v", metrics.records)
	}
}

func TestOIDCRequireOIDC_AudienceMismatch(t *testing.T) {
	validator, metrics, token := setupOIDCTest(t, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/internal/payments/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	validator.RequireOIDC("https://other.example.com", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.records[len(metrics.records)-1].reason != "audience_mismatch" {
		t.Fatalf("expected audience_mismatch, got %+v", metrics.records)
	}
}

func TestOIDCRequireOIDC_IssuerMismatch(t *testing.T) {
	validator, _, token := setupOIDCTest(t, func(claims jwt.MapClaims) {
		claims["iss"] = "https://evil.example.com"
	})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/internal/payments/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	validator.RequireOIDC("https://portal.example.com", []string{"https://accounts.google.com"})(http.NotFoundHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOIDCRequireOIDC_MissingToken(t *testing.T) {
	validator, _, _ := setupOIDCTest(t, nil)
	rr := httptest.NewRecorder()
	validator.RequireOIDC("https://portal.example.com", nil)(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOIDCRequireOIDC_JWKSUnavailable(t *testing.T) {
	validator, metrics, token := setupOIDCTest(t, nil)
	validator.cache.url = "http://127.0.0.1:65535/invalid"

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/internal/payments/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	validator.RequireOIDC("https://portal.example.com", nil)(http.NotFoundHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.records[len(metrics.records)-1].reason != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable, got %+v", metrics.records)
	}
}

func setupOIDCTest(t *testing.T, mutateClaims func(jwt.MapClaims)) (*OIDCValidator, *recordingMetrics, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "svc-key", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	originalTimeFunc := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = originalTimeFunc })

	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(
		NewJWKSCache(server.URL, WithJWKSLogger(noopLogger{}), WithJWKSClock(func() time.Time { return now })),
		WithOIDCLogger(noopLogger{}),
		WithOIDCMetrics(metrics),
		WithOIDCClock(func() time.Time { return now }),
	)

	claims := jwt.MapClaims{
		"aud":   []string{"https://portal.example.com"},
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "scheduler@example.iam.gserviceaccount.com",
		"exp":   float64(now.Add(time.Hour).Unix()),
		"iat":   float64(now.Unix()),
	}
	if mutateClaims != nil {
		mutateClaims(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return validator, metrics, signed
}
