package portalclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobbygour30/admitcard/internal/adminauth"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/portalapi"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	keys := 0
	c, err := New(srv.URL, WithIdempotencyKeys(func() string {
		keys++
		return "key-" + string(rune('0'+keys))
	}))
	require.NoError(t, err)
	return c
}

func TestClientRegisterSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	var gotBody portalapi.RegisterRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/registration/register", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusCreated, portalapi.RegisterResponse{
			Message:           "Registration successful",
			ApplicationNumber: "CBT123456",
			ExamCenter:        "DAV Public School",
			ExamShift:         "A (9:00 AM - 10:00 AM, 12-06-2025)",
		})
	})
	c := newTestClient(t, mux)

	resp, err := c.Register(context.Background(), portalapi.RegisterRequest{
		PersonalInfo: domain.PersonalInfo{Union: domain.UnionHarit, Name: "Asha Devi"},
	})
	require.NoError(t, err)
	require.Equal(t, "CBT123456", resp.ApplicationNumber)
	require.Equal(t, "key-1", gotKey)
	require.Equal(t, "Asha Devi", gotBody.Name)
}

func TestClientNormalisesErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admit-card", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "CBT123456", r.URL.Query().Get("applicationNumber"))
		writeJSON(w, http.StatusForbidden, portalapi.ErrorResponse{
			Error:     "admit_card_not_released",
			Message:   "Admit cards for Tirhut Union will be available from 18 June 2025",
			Status:    http.StatusForbidden,
			RequestID: "req-1",
		})
	})
	mux.HandleFunc("/api/registration/user", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.FetchAdmitCard(context.Background(), " cbt123456 ")
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "admit_card_not_released", apiErr.Code)
	require.Equal(t, "req-1", apiErr.RequestID)
	require.Equal(t, "Admit cards for Tirhut Union will be available from 18 June 2025", Message(err))

	_, err = c.FetchRegistration(context.Background(), "CBT123456")
	require.True(t, IsStatus(err, http.StatusBadGateway))
	require.Equal(t, "Bad Gateway", Message(err))
}

func TestClientLoginAndAdminCalls(t *testing.T) {
	expires := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var creds portalapi.AdminCredentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "s3cret" {
			writeJSON(w, http.StatusUnauthorized, portalapi.ErrorResponse{Error: "unauthenticated", Message: "Invalid credentials", Status: 401})
			return
		}
		writeJSON(w, http.StatusOK, portalapi.AdminLoginResponse{Token: "tok", ExpiresAt: expires})
	})
	mux.HandleFunc("/api/registration/users", func(w http.ResponseWriter, r *http.Request) {
		var body portalapi.AdminListRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if r.Header.Get("Authorization") == "Bearer tok" {
			require.Empty(t, body.Password)
		} else {
			require.Equal(t, "s3cret", body.Password)
		}
		writeJSON(w, http.StatusOK, []portalapi.Registration{{ApplicationNumber: "CBT123456"}})
	})
	mux.HandleFunc("/api/registration/users/CBT123456", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, portalapi.MessageResponse{Message: "User deleted successfully"})
	})
	mux.HandleFunc("/api/admin/documents/CBT123456/photo", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, portalapi.DocumentURLResponse{URL: "https://storage.googleapis.com/signed", ExpiresAt: expires})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	gate := adminauth.NewGate(c.Verifier(), adminauth.WithGateClock(func() time.Time { return expires.Add(-time.Hour) }))
	require.False(t, gate.Login(ctx, "admin", "wrong"))
	require.False(t, gate.IsAdmin())

	_, err := c.Login(ctx, adminauth.Credentials{Username: "admin", Password: "wrong"})
	require.ErrorIs(t, err, adminauth.ErrInvalidCredentials)
	require.True(t, IsStatus(err, http.StatusUnauthorized))

	require.True(t, gate.Login(ctx, "admin", "s3cret"))
	session, ok := gate.Session()
	require.True(t, ok)
	require.Equal(t, "tok", session.Token)

	users, err := c.ListRegistrations(ctx, session, "asha", 0)
	require.NoError(t, err)
	require.Len(t, users, 1)

	legacy := adminauth.Session{Username: "admin", Credentials: adminauth.Credentials{Username: "admin", Password: "s3cret"}}
	_, err = c.ListRegistrations(ctx, legacy, "", 0)
	require.NoError(t, err)

	msg, err := c.DeleteRegistration(ctx, session, "cbt123456")
	require.NoError(t, err)
	require.Equal(t, "User deleted successfully", msg)

	view, err := c.DocumentURL(ctx, session, "CBT123456", domain.DocumentPhoto)
	require.NoError(t, err)
	require.Equal(t, "https://storage.googleapis.com/signed", view.URL)

	_, err = c.DocumentURL(ctx, legacy, "CBT123456", domain.DocumentPhoto)
	require.Error(t, err)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	_, err = New("ftp://portal.example.com")
	require.Error(t, err)

	c, err := New("https://portal.example.com/")
	require.NoError(t, err)
	require.Equal(t, "https://portal.example.com", c.BaseURL())
}
