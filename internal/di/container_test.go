package di

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobbygour30/admitcard/internal/admitcard"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/platform/config"
	"github.com/bobbygour30/admitcard/internal/platform/jobs"
	"github.com/bobbygour30/admitcard/internal/platform/storage"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/repositories/memory"
)

var pngDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG fake image"))

type recordingMailer struct {
	mu   sync.Mutex
	jobs []jobs.AdmitCardEmail
}

func (m *recordingMailer) PublishAdmitCardEmail(_ context.Context, job jobs.AdmitCardEmail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return "msg-1", nil
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: "0", PublicBaseURL: "https://portal.example.com"},
		Store:  config.StoreConfig{Driver: config.StoreMemory},
		Admin: config.AdminConfig{
			Username:    "admin",
			Password:    "s3cret",
			TokenSecret: strings.Repeat("k", 32),
			TokenTTL:    time.Hour,
		},
		Payments: config.PaymentsConfig{Provider: "none", Currency: "INR", ReconcileAfter: 30 * time.Minute},
		Idempotency: config.IdempotencyConfig{
			Header:           "Idempotency-Key",
			TTL:              time.Hour,
			CleanupInterval:  time.Hour,
			CleanupBatchSize: 10,
			Backend:          "memory",
		},
	}
}

type portal struct {
	container *Container
	handler   http.Handler
	mailer    *recordingMailer
}

func newPortal(t *testing.T) portal {
	t.Helper()
	renderer, err := admitcard.NewRenderer()
	require.NoError(t, err)
	mailer := &recordingMailer{}
	c, err := NewContainer(context.Background(), testConfig(), Infrastructure{
		Registry:  memory.NewRegistry(),
		Documents: storage.NewMemoryDocuments(),
		Mailer:    mailer,
		Renderer:  renderer,
		Clock:     func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return portal{container: c, handler: c.Router(RouterOptions{}), mailer: mailer}
}

func (p portal) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	p.handler.ServeHTTP(rr, req)
	return rr
}

func haritForm() portalapi.RegisterRequest {
	return portalapi.RegisterRequest{
		PersonalInfo: domain.PersonalInfo{
			Union:               "Harit Union",
			Name:                "Asha Devi",
			FatherName:          "Ram Prasad",
			MotherName:          "Sita Devi",
			DOB:                 "1998-04-12",
			Gender:              "Female",
			Email:               "asha@example.com",
			Mobile:              "9876543210",
			Address:             "Ward 4, Patna",
			AadhaarNumber:       "123412341234",
			SelectedPosts:       []string{"Supervisor"},
			DistrictPreferences: []string{"Patna"},
			HigherEducation:     "Graduate",
			Percentage:          "72.5",
		},
		Photo:     pngDataURL,
		Signature: pngDataURL,
		QualCert:  pngDataURL,
	}
}

func TestContainerRegistrationToAdmitCard(t *testing.T) {
	p := newPortal(t)

	rr := p.do(t, http.MethodPost, "/api/registration/register", haritForm())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var registered portalapi.RegisterResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &registered))
	require.True(t, domain.ValidApplicationNumber(registered.ApplicationNumber))
	require.Equal(t, "DAV Public School", registered.ExamCenter)
	require.Equal(t, "A (9:00 AM - 10:00 AM, 12-06-2025)", registered.ExamShift)

	rr = p.do(t, http.MethodGet, "/api/registration/user?applicationNumber="+registered.ApplicationNumber, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = p.do(t, http.MethodGet, "/api/admit-card?applicationNumber="+registered.ApplicationNumber, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var card portalapi.AdmitCardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &card))
	require.True(t, card.EmailSent)
	require.Equal(t, 60, card.User.GateEntryMinutes)
	require.Len(t, p.mailer.jobs, 1)
	require.Equal(t, "https://portal.example.com/api/admit-card/view?applicationNumber="+registered.ApplicationNumber, p.mailer.jobs[0].AdmitCardURL)

	rr = p.do(t, http.MethodGet, "/api/admit-card/view?applicationNumber="+registered.ApplicationNumber, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), registered.ApplicationNumber)
	require.Contains(t, rr.Body.String(), "Isha Protectional Security Guard Pvt Ltd")
}

func TestContainerIdempotentRegistration(t *testing.T) {
	p := newPortal(t)

	first := p.do(t, http.MethodPost, "/api/registration/register", haritForm(), "Idempotency-Key", "form-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := p.do(t, http.MethodPost, "/api/registration/register", haritForm(), "Idempotency-Key", "form-1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())

	centers, _, err := p.container.Repositories.Pools().Snapshot(context.Background())
	require.NoError(t, err)
	booked := 0
	for _, c := range centers {
		booked += c.CurrentBookings
	}
	require.Equal(t, 1, booked)
}

func TestContainerAdminFlow(t *testing.T) {
	p := newPortal(t)
	rr := p.do(t, http.MethodPost, "/api/registration/register", haritForm())
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = p.do(t, http.MethodPost, "/api/admin/login", map[string]string{"username": "admin", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = p.do(t, http.MethodPost, "/api/admin/login", map[string]string{"username": "admin", "password": "s3cret"})
	require.Equal(t, http.StatusOK, rr.Code)
	var login portalapi.AdminLoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	rr = p.do(t, http.MethodPost, "/api/registration/users", nil, "Authorization", "Bearer "+login.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var users []portalapi.Registration
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	require.Len(t, users, 1)

	rr = p.do(t, http.MethodDelete, "/api/registration/users/"+users[0].ApplicationNumber, nil, "Authorization", "Bearer "+login.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = p.do(t, http.MethodGet, "/api/registration/user?applicationNumber="+users[0].ApplicationNumber, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestContainerPaymentsDisabledAndProbes(t *testing.T) {
	p := newPortal(t)

	rr := p.do(t, http.MethodPost, "/api/payment/create-order", map[string]any{"applicationNumber": "CBT123456"})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "payments_disabled")

	rr = p.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = p.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
