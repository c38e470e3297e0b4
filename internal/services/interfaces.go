package services

import (
	"context"
	"io"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/payments"
	"github.com/bobbygour30/admitcard/internal/platform/auth"
	"github.com/bobbygour30/admitcard/internal/platform/jobs"
	"github.com/bobbygour30/admitcard/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Registration       = domain.Registration
	RegistrationFilter = domain.RegistrationFilter
	PaymentOrder       = domain.PaymentOrder
	AdmitCard          = domain.AdmitCard
	SystemHealthReport = domain.SystemHealthReport
	ViewURL            = storage.ViewURL
)

// RegistrationService accepts candidate registrations and their later uploads.
type RegistrationService interface {
	Register(ctx context.Context, cmd RegisterCommand) (Registration, error)
	UploadDocument(ctx context.Context, cmd UploadDocumentCommand) (Registration, error)
	GetRegistration(ctx context.Context, applicationNumber string) (Registration, error)
}

// PaymentService opens provider orders and records captured payments.
type PaymentService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (PaymentCheckout, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Registration, error)
	HandleWebhookEvent(ctx context.Context, event payments.WebhookEvent) (WebhookOutcome, error)
	Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileSummary, error)
}

// AdmitCardService assembles, renders and mails admit cards.
type AdmitCardService interface {
	GetAdmitCard(ctx context.Context, applicationNumber string) (AdmitCardResult, error)
	RenderAdmitCard(ctx context.Context, applicationNumber string) ([]byte, error)
	SendAdmitCardEmail(ctx context.Context, applicationNumber string) error
}

// AdminService guards the privileged registration operations. Every call
// re-checks the supplied authorization.
type AdminService interface {
	Login(ctx context.Context, username, password string) (AdminSession, error)
	ListRegistrations(ctx context.Context, cmd AdminListCommand) ([]Registration, error)
	DeleteRegistration(ctx context.Context, cmd AdminDeleteCommand) (Registration, error)
	DocumentURL(ctx context.Context, cmd AdminDocumentCommand) (ViewURL, error)
}

// SystemService exposes health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// RegisterCommand is a submitted registration form.
type RegisterCommand struct {
	Info    domain.PersonalInfo
	Uploads domain.RegistrationUploads
}

// UploadDocumentCommand carries one supporting document as a data URL.
type UploadDocumentCommand struct {
	ApplicationNumber string
	Kind              domain.DocumentKind
	DataURL           string
}

// CreateOrderCommand asks for a fee order. Amount and Union are optional
// client hints checked against the stored registration.
type CreateOrderCommand struct {
	ApplicationNumber string
	Amount            int64
	Union             domain.Union
}

// PaymentCheckout is an opened order plus what the checkout widget needs.
type PaymentCheckout struct {
	Order        PaymentOrder
	KeyID        string
	ClientSecret string
}

// VerifyPaymentCommand is the checkout result returned by the client.
type VerifyPaymentCommand struct {
	ApplicationNumber string
	OrderID           string
	PaymentID         string
	Signature         string
	Union             domain.Union
}

// WebhookOutcome reports what a webhook delivery changed.
type WebhookOutcome string

const (
	WebhookOutcomePaid    WebhookOutcome = "paid"
	WebhookOutcomeFailed  WebhookOutcome = "failed"
	WebhookOutcomeIgnored WebhookOutcome = "ignored"
)

// ReconcileCommand selects open orders older than OlderThan.
type ReconcileCommand struct {
	OlderThan time.Duration
	Limit     int
}

// ReconcileSummary counts what one reconciliation run did.
type ReconcileSummary struct {
	Checked int
	Paid    int
	Failed  int
}

// AdmitCardResult is an admit card and whether the email job was queued.
type AdmitCardResult struct {
	Card      AdmitCard
	EmailSent bool
}

// AdminAuthorization is either a session token or the credential pair.
type AdminAuthorization struct {
	Token    string
	Username string
	Password string
}

// AdminSession is an issued admin token.
type AdminSession struct {
	Username  string
	Token     string
	ExpiresAt time.Time
}

// AdminListCommand lists registrations for an authorized admin.
type AdminListCommand struct {
	Auth   AdminAuthorization
	Filter RegistrationFilter
}

// AdminDeleteCommand removes one registration.
type AdminDeleteCommand struct {
	Auth              AdminAuthorization
	ApplicationNumber string
}

// AdminDocumentCommand asks for a view URL of one stored document.
type AdminDocumentCommand struct {
	Auth              AdminAuthorization
	ApplicationNumber string
	Kind              domain.DocumentKind
}

// DocumentStore keeps uploaded blobs. storage.GCSDocuments and
// storage.MemoryDocuments implement it.
type DocumentStore interface {
	Put(ctx context.Context, object string, blob domain.Blob) (string, error)
	Delete(ctx context.Context, ref string) error
	ViewURL(ctx context.Context, ref string) (storage.ViewURL, error)
}

// PaymentGateway abstracts payments.Manager for easier testing.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CreateOrderRequest) (payments.Order, error)
	Verify(ctx context.Context, paymentCtx payments.PaymentContext, req payments.VerifyRequest) (payments.PaymentDetails, error)
	LookupOrder(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// AdmitCardMailer queues admit card emails.
type AdmitCardMailer interface {
	PublishAdmitCardEmail(ctx context.Context, job jobs.AdmitCardEmail) (string, error)
}

// AdmitCardRenderer writes a printable admit card.
type AdmitCardRenderer interface {
	Render(w io.Writer, card AdmitCard) error
}

// AdminTokens issues and verifies admin session tokens.
type AdminTokens interface {
	Issue(username string) (string, time.Time, error)
	VerifyToken(ctx context.Context, token string) (*auth.Identity, error)
}

// MetricsRecorder receives business counters. metrics.Metrics implements it.
type MetricsRecorder interface {
	IncRegistration(union string)
	IncAllocationFailure(pool string)
	IncPaymentVerification(result string)
	IncWebhookEvent(event, result string)
	IncAdmitCardEmail(result string)
	IncReconciledOrder(result string)
}

type noopMetrics struct{}

func (noopMetrics) IncRegistration(string) {}
func (noopMetrics) IncAllocationFailure(string) {}
func (noopMetrics) IncPaymentVerification(string) {}
func (noopMetrics) IncWebhookEvent(string, string) {}
func (noopMetrics) IncAdmitCardEmail(string) {}
func (noopMetrics) IncReconciledOrder(string) {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

func loggerOrNoop(logger func(context.Context, string, map[string]any)) func(context.Context, string, map[string]any) {
	if logger == nil {
		return func(context.Context, string, map[string]any) {}
	}
	return logger
}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}
