package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bobbygour30/admitcard/internal/payments"
	"github.com/bobbygour30/admitcard/internal/services"
)

type stubRegistrationService struct {
	registerFn func(context.Context, services.RegisterCommand) (services.Registration, error)
	uploadFn   func(context.Context, services.UploadDocumentCommand) (services.Registration, error)
	getFn      func(context.Context, string) (services.Registration, error)
}

func (s *stubRegistrationService) Register(ctx context.Context, cmd services.RegisterCommand) (services.Registration, error) {
	return s.registerFn(ctx, cmd)
}

func (s *stubRegistrationService) UploadDocument(ctx context.Context, cmd services.UploadDocumentCommand) (services.Registration, error) {
	return s.uploadFn(ctx, cmd)
}

func (s *stubRegistrationService) GetRegistration(ctx context.Context, appNo string) (services.Registration, error) {
	return s.getFn(ctx, appNo)
}

type stubPaymentService struct {
	createFn    func(context.Context, services.CreateOrderCommand) (services.PaymentCheckout, error)
	verifyFn    func(context.Context, services.VerifyPaymentCommand) (services.Registration, error)
	webhookFn   func(context.Context, payments.WebhookEvent) (services.WebhookOutcome, error)
	reconcileFn func(context.Context, services.ReconcileCommand) (services.ReconcileSummary, error)
}

func (s *stubPaymentService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.PaymentCheckout, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Registration, error) {
	return s.verifyFn(ctx, cmd)
}

func (s *stubPaymentService) HandleWebhookEvent(ctx context.Context, event payments.WebhookEvent) (services.WebhookOutcome, error) {
	return s.webhookFn(ctx, event)
}

func (s *stubPaymentService) Reconcile(ctx context.Context, cmd services.ReconcileCommand) (services.ReconcileSummary, error) {
	return s.reconcileFn(ctx, cmd)
}

type stubAdmitCardService struct {
	getFn    func(context.Context, string) (services.AdmitCardResult, error)
	renderFn func(context.Context, string) ([]byte, error)
	emailFn  func(context.Context, string) error
}

func (s *stubAdmitCardService) GetAdmitCard(ctx context.Context, appNo string) (services.AdmitCardResult, error) {
	return s.getFn(ctx, appNo)
}

func (s *stubAdmitCardService) RenderAdmitCard(ctx context.Context, appNo string) ([]byte, error) {
	return s.renderFn(ctx, appNo)
}

func (s *stubAdmitCardService) SendAdmitCardEmail(ctx context.Context, appNo string) error {
	return s.emailFn(ctx, appNo)
}

type stubAdminService struct {
	loginFn    func(context.Context, string, string) (services.AdminSession, error)
	listFn     func(context.Context, services.AdminListCommand) ([]services.Registration, error)
	deleteFn   func(context.Context, services.AdminDeleteCommand) (services.Registration, error)
	documentFn func(context.Context, services.AdminDocumentCommand) (services.ViewURL, error)
}

func (s *stubAdminService) Login(ctx context.Context, username, password string) (services.AdminSession, error) {
	return s.loginFn(ctx, username, password)
}

func (s *stubAdminService) ListRegistrations(ctx context.Context, cmd services.AdminListCommand) ([]services.Registration, error) {
	return s.listFn(ctx, cmd)
}

func (s *stubAdminService) DeleteRegistration(ctx context.Context, cmd services.AdminDeleteCommand) (services.Registration, error) {
	return s.deleteFn(ctx, cmd)
}

func (s *stubAdminService) DocumentURL(ctx context.Context, cmd services.AdminDocumentCommand) (services.ViewURL, error) {
	return s.documentFn(ctx, cmd)
}

var (
	_ services.RegistrationService = (*stubRegistrationService)(nil)
	_ services.PaymentService      = (*stubPaymentService)(nil)
	_ services.AdmitCardService    = (*stubAdmitCardService)(nil)
	_ services.AdminService        = (*stubAdminService)(nil)
)

func mountRoutes(routes func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	routes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Fields  map[string]string `json:"fields"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return body
}
