package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedTime = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func registerRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/registration/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), registerRequest(`{"name":"Asha"}`, ""))
	}
	if calls != 2 {
		t.Fatalf("expected both requests to run, got %d", calls)
	}
}

func TestMiddlewareRequiredKey(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithRequiredKey())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run without a key")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, registerRequest(`{}`, ""))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"applicationNumber":"CBT123456"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, registerRequest(`{"name":"Asha"}`, "key-1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, registerRequest(`{"name":"Asha"}`, "key-1"))

	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replayed 201, got %d %v", second.Code, second.Header())
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected body %s, got %s", first.Body.String(), second.Body.String())
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), registerRequest(`{"name":"Asha"}`, "key-2"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, registerRequest(`{"name":"Ravi"}`, "key-2"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewarePendingReservationConflicts(t *testing.T) {
	store := NewMemoryStore()
	req := registerRequest(`{"name":"Asha"}`, "key-3")
	body, err := bufferBody(req)
	if err != nil {
		t.Fatalf("buffer body: %v", err)
	}
	fingerprint := requestFingerprint(req, body, "anonymous")
	if _, err := store.Reserve(context.Background(), "key-3|anonymous", fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run while the key is pending")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareServerErrorsStayRetryable(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), registerRequest(`{}`, "key-4"))
	}
	if calls != 2 {
		t.Fatalf("expected retry after 503 to run again, got %d calls", calls)
	}
}

func TestMiddlewareSaveFailureReleasesKey(t *testing.T) {
	store := &stubStore{failSave: true}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, registerRequest(`{}`, "key-5"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !store.released {
		t.Fatal("expected the reservation to be released")
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Reserve(ctx, "a", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := store.Reserve(ctx, "b", "fp", fixedTime, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	removed, err := store.CleanupExpired(ctx, fixedTime.Add(2*time.Minute), 0)
	if err != nil || removed != 1 {
		t.Fatalf("expected one expired record, got %d (%v)", removed, err)
	}
	res, err := store.Reserve(ctx, "a", "other", fixedTime.Add(3*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired key to be reusable, got %+v (%v)", res, err)
	}
}

type stubStore struct {
	failSave bool
	released bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew}, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) { return 0, nil }

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error %s, got %s", expected, body.Error)
	}
}
