package services

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/payments"
	"github.com/bobbygour30/admitcard/internal/platform/jobs"
	"github.com/bobbygour30/admitcard/internal/platform/storage"
	"github.com/bobbygour30/admitcard/internal/repositories/memory"
)

var pngDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG fake image"))

func validInfo(union domain.Union) domain.PersonalInfo {
	district := "Patna"
	return domain.PersonalInfo{
		Union:               union,
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
		DistrictPreferences: []string{district},
		HigherEducation:     "Graduate",
		Percentage:          "72.5",
	}
}

func validRegisterCommand(union domain.Union) RegisterCommand {
	return RegisterCommand{
		Info: validInfo(union),
		Uploads: domain.RegistrationUploads{
			Photo:     pngDataURL,
			Signature: pngDataURL,
			QualCert:  pngDataURL,
		},
	}
}

func seededRegistry(t *testing.T) *memory.Registry {
	t.Helper()
	cat := domain.DefaultCatalog()
	registry := memory.NewRegistry()
	require.NoError(t, registry.Pools().Seed(context.Background(), cat.InitialCenters(), cat.InitialShifts()))
	return registry
}

func sequenceIntn(values ...int) domain.RandomIntn {
	var mu sync.Mutex
	i := 0
	return func(int) int {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v
	}
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

type servicesFixture struct {
	registry *memory.Registry
	docs     *storage.MemoryDocuments
	metrics  *recordingMetrics
	reg      RegistrationService
}

func newServicesFixture(t *testing.T, intn domain.RandomIntn) servicesFixture {
	t.Helper()
	f := servicesFixture{
		registry: seededRegistry(t),
		docs:     storage.NewMemoryDocuments(),
		metrics:  newRecordingMetrics(),
	}
	svc, err := NewRegistrationService(RegistrationServiceDeps{
		Registrations: f.registry.Registrations(),
		Documents:     f.docs,
		Metrics:       f.metrics,
		Clock:         fixedClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Intn:          intn,
	})
	require.NoError(t, err)
	f.reg = svc
	return f
}

func (f servicesFixture) register(t *testing.T, union domain.Union) Registration {
	t.Helper()
	reg, err := f.reg.Register(context.Background(), validRegisterCommand(union))
	require.NoError(t, err)
	return reg
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: make(map[string]int)}
}

func (m *recordingMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

func (m *recordingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *recordingMetrics) IncRegistration(union string) { m.inc("registration:" + union) }
func (m *recordingMetrics) IncAllocationFailure(pool string) { m.inc("allocation:" + pool) }
func (m *recordingMetrics) IncPaymentVerification(result string) { m.inc("verify:" + result) }
func (m *recordingMetrics) IncWebhookEvent(event, result string) { m.inc("webhook:" + event + ":" + result) }
func (m *recordingMetrics) IncAdmitCardEmail(result string) { m.inc("email:" + result) }
func (m *recordingMetrics) IncReconciledOrder(result string) { m.inc("reconcile:" + result) }

type fakeGateway struct {
	mu        sync.Mutex
	created   []payments.CreateOrderRequest
	verifyErr error
	lookups   map[string]payments.PaymentDetails
	nextID    int
}

func (g *fakeGateway) CreateOrder(_ context.Context, _ payments.PaymentContext, req payments.CreateOrderRequest) (payments.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	g.nextID++
	return payments.Order{
		ID:       "order_" + string(rune('A'+g.nextID-1)),
		Provider: payments.ProviderRazorpay,
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		KeyID:    "rzp_test_key",
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, _ payments.PaymentContext, req payments.VerifyRequest) (payments.PaymentDetails, error) {
	if g.verifyErr != nil {
		return payments.PaymentDetails{}, g.verifyErr
	}
	return payments.PaymentDetails{Provider: payments.ProviderRazorpay, OrderID: req.OrderID, PaymentID: req.PaymentID, Status: payments.StatusSucceeded}, nil
}

func (g *fakeGateway) LookupOrder(_ context.Context, _ payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	details, ok := g.lookups[req.OrderID]
	if !ok {
		return payments.PaymentDetails{}, errors.New("lookup failed")
	}
	return details, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	jobs []jobs.AdmitCardEmail
	err  error
}

func (m *fakeMailer) PublishAdmitCardEmail(_ context.Context, job jobs.AdmitCardEmail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.jobs = append(m.jobs, job)
	return "msg-1", nil
}
