package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/payments"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

const (
	defaultReconcileAge   = 30 * time.Minute
	defaultReconcileLimit = 100
	receiptPrefix         = "rcpt_"
)

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid input parameters.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentsDisabled indicates no payment provider is configured.
	ErrPaymentsDisabled = errors.New("payment: payments disabled")
	// ErrAlreadyPaid indicates the registration fee is already recorded.
	ErrAlreadyPaid = errors.New("payment: already paid")
	// ErrFeeExempt indicates the candidate's union pays no fee.
	ErrFeeExempt = errors.New("payment: union is fee exempt")
	// ErrUnionMismatch indicates the client's union disagrees with the stored registration.
	ErrUnionMismatch = errors.New("payment: union mismatch")
	// ErrAmountMismatch indicates the client asked to pay a different amount than the fee.
	ErrAmountMismatch = errors.New("payment: amount mismatch")
	// ErrOrderNotFound indicates the order id is unknown.
	ErrOrderNotFound = errors.New("payment: order not found")
	// ErrOrderMismatch indicates the order belongs to another registration.
	ErrOrderMismatch = errors.New("payment: order does not belong to application")
	// ErrPaymentVerificationFailed indicates the checkout proof did not verify.
	ErrPaymentVerificationFailed = errors.New("payment: verification failed")
	// ErrPaymentProviderFailed indicates the provider call failed.
	ErrPaymentProviderFailed = errors.New("payment: provider failed")
	// ErrPaymentUnavailable indicates the store failed.
	ErrPaymentUnavailable = errors.New("payment: unavailable")
)

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Registrations repositories.RegistrationRepository
	Orders        repositories.PaymentOrderRepository
	// Gateway may be nil when payments are disabled.
	Gateway PaymentGateway
	Catalog *domain.Catalog
	Metrics MetricsRecorder
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	registrations repositories.RegistrationRepository
	orders        repositories.PaymentOrderRepository
	gateway       PaymentGateway
	catalog       *domain.Catalog
	metrics       MetricsRecorder
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Registrations == nil {
		return nil, errors.New("payment service: registration repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: payment order repository is required")
	}
	cat := deps.Catalog
	if cat == nil {
		cat = domain.DefaultCatalog()
	}
	return &paymentService{
		registrations: deps.Registrations,
		orders:        deps.Orders,
		gateway:       deps.Gateway,
		catalog:       cat,
		metrics:       metricsOrNoop(deps.Metrics),
		now:           utcClock(deps.Clock),
		logger:        loggerOrNoop(deps.Logger),
	}, nil
}

// CreateOrder opens a provider order for the union's fee. The amount is
// always taken from the catalogue; a differing client amount is rejected.
func (s *paymentService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (PaymentCheckout, error) {
	if s.gateway == nil {
		return PaymentCheckout{}, ErrPaymentsDisabled
	}
	reg, err := s.registration(ctx, cmd.ApplicationNumber, cmd.Union)
	if err != nil {
		return PaymentCheckout{}, err
	}
	if reg.PaymentStatus {
		return PaymentCheckout{}, ErrAlreadyPaid
	}
	union := reg.PersonalInfo.Union
	if domain.IsFeeExempt(union) {
		return PaymentCheckout{}, ErrFeeExempt
	}
	profile, err := s.catalog.Union(union)
	if err != nil {
		return PaymentCheckout{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	if profile.Fee <= 0 {
		return PaymentCheckout{}, ErrFeeExempt
	}
	if cmd.Amount != 0 && cmd.Amount != profile.Fee {
		return PaymentCheckout{}, fmt.Errorf("%w: fee for %s is %d", ErrAmountMismatch, union.DisplayName(), profile.Fee)
	}

	now := s.now()
	currency := s.catalog.Exam.Currency
	receipt := receiptPrefix + newULID(now)
	order, err := s.gateway.CreateOrder(ctx, payments.PaymentContext{Currency: currency}, payments.CreateOrderRequest{
		Amount:   profile.Fee,
		Currency: currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"applicationNumber": reg.ApplicationNumber,
			"union":             string(union),
		},
		IdempotencyKey: receipt,
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return PaymentCheckout{}, fmt.Errorf("%w: %w", ErrPaymentsDisabled, err)
		}
		return PaymentCheckout{}, fmt.Errorf("%w: %w", ErrPaymentProviderFailed, err)
	}

	record := PaymentOrder{
		ID:                order.ID,
		ApplicationNumber: reg.ApplicationNumber,
		Provider:          order.Provider,
		Union:             union,
		Amount:            chooseAmount(order.Amount, profile.Fee),
		Currency:          chooseFirstNonEmpty(order.Currency, currency),
		Receipt:           receipt,
		Status:            domain.PaymentOrderCreated,
		CreatedAt:         ensureTimestamp(order.CreatedAt, now),
	}
	if err := s.orders.Insert(ctx, record); err != nil {
		return PaymentCheckout{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}

	s.logger(ctx, "payment.order_created", map[string]any{
		"applicationNumber": reg.ApplicationNumber,
		"orderId":           record.ID,
		"provider":          record.Provider,
		"amount":            record.Amount,
	})
	return PaymentCheckout{Order: record, KeyID: order.KeyID, ClientSecret: order.ClientSecret}, nil
}

// VerifyPayment checks the checkout proof with the order's provider and
// marks the registration paid. Repeating a verified call succeeds again.
func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Registration, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if orderID == "" || paymentID == "" {
		return Registration{}, fmt.Errorf("%w: order and payment ids are required", ErrPaymentInvalidInput)
	}
	if s.gateway == nil {
		return Registration{}, ErrPaymentsDisabled
	}
	reg, err := s.registration(ctx, cmd.ApplicationNumber, cmd.Union)
	if err != nil {
		return Registration{}, err
	}
	order, err := s.order(ctx, orderID)
	if err != nil {
		return Registration{}, err
	}
	if order.ApplicationNumber != reg.ApplicationNumber {
		return Registration{}, ErrOrderMismatch
	}
	if reg.PaymentStatus {
		if reg.TransactionNumber == paymentID {
			return reg, nil
		}
		return Registration{}, ErrAlreadyPaid
	}

	details, err := s.gateway.Verify(ctx, payments.PaymentContext{PreferredProvider: order.Provider, Currency: order.Currency}, payments.VerifyRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: strings.TrimSpace(cmd.Signature),
	})
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) || errors.Is(err, payments.ErrPaymentNotCaptured) {
			s.metrics.IncPaymentVerification("rejected")
			s.logger(ctx, "payment.verification_rejected", map[string]any{
				"applicationNumber": reg.ApplicationNumber,
				"orderId":           orderID,
				"error":             err.Error(),
			})
			return Registration{}, fmt.Errorf("%w: %w", ErrPaymentVerificationFailed, err)
		}
		s.metrics.IncPaymentVerification("error")
		return Registration{}, fmt.Errorf("%w: %w", ErrPaymentProviderFailed, err)
	}

	paid, err := s.markPaid(ctx, order, chooseFirstNonEmpty(details.PaymentID, paymentID), capturedAt(details, s.now()), "verify")
	if err != nil {
		s.metrics.IncPaymentVerification("error")
		return Registration{}, err
	}
	s.metrics.IncPaymentVerification("verified")
	return paid, nil
}

// HandleWebhookEvent applies a signature-checked provider event.
func (s *paymentService) HandleWebhookEvent(ctx context.Context, event payments.WebhookEvent) (WebhookOutcome, error) {
	outcome, err := s.applyWebhook(ctx, event)
	result := string(outcome)
	if err != nil {
		result = "error"
	}
	s.metrics.IncWebhookEvent(event.Event, result)
	return outcome, err
}

func (s *paymentService) applyWebhook(ctx context.Context, event payments.WebhookEvent) (WebhookOutcome, error) {
	orderID := strings.TrimSpace(event.OrderID)
	if orderID == "" {
		return WebhookOutcomeIgnored, nil
	}

	switch event.Event {
	case payments.EventPaymentCaptured, payments.EventOrderPaid:
		order, err := s.order(ctx, orderID)
		if errors.Is(err, ErrOrderNotFound) {
			s.logger(ctx, "payment.webhook_unknown_order", map[string]any{"orderId": orderID, "event": event.Event})
			return WebhookOutcomeIgnored, nil
		}
		if err != nil {
			return "", err
		}
		paidAt := ensureTimestamp(event.CreatedAt, s.now())
		if _, err := s.markPaid(ctx, order, chooseFirstNonEmpty(event.PaymentID, order.PaymentID, orderID), paidAt, "webhook"); err != nil {
			return "", err
		}
		return WebhookOutcomePaid, nil
	case payments.EventPaymentFailed:
		updated, err := s.orders.UpdateStatus(ctx, orderID, domain.PaymentOrderFailed, event.PaymentID, s.now())
		if repositories.IsNotFound(err) {
			return WebhookOutcomeIgnored, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
		}
		if updated.Status != domain.PaymentOrderFailed {
			return WebhookOutcomeIgnored, nil
		}
		return WebhookOutcomeFailed, nil
	default:
		return WebhookOutcomeIgnored, nil
	}
}

// Reconcile asks the provider about open orders older than the threshold and
// records captured or failed payments the client never reported.
func (s *paymentService) Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileSummary, error) {
	if s.gateway == nil {
		return ReconcileSummary{}, ErrPaymentsDisabled
	}
	age := cmd.OlderThan
	if age <= 0 {
		age = defaultReconcileAge
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}

	open, err := s.orders.ListOpenBefore(ctx, s.now().Add(-age), limit)
	if err != nil {
		return ReconcileSummary{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}

	var summary ReconcileSummary
	for _, order := range open {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++
		details, err := s.gateway.LookupOrder(ctx, payments.PaymentContext{PreferredProvider: order.Provider, Currency: order.Currency}, payments.LookupRequest{OrderID: order.ID})
		if err != nil {
			s.metrics.IncReconciledOrder("error")
			s.logger(ctx, "payment.reconcile_lookup_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
			continue
		}
		switch details.Status {
		case payments.StatusSucceeded:
			if _, err := s.markPaid(ctx, order, chooseFirstNonEmpty(details.PaymentID, order.ID), capturedAt(details, s.now()), "reconcile"); err != nil {
				s.metrics.IncReconciledOrder("error")
				s.logger(ctx, "payment.reconcile_mark_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
				continue
			}
			summary.Paid++
			s.metrics.IncReconciledOrder("paid")
		case payments.StatusFailed:
			if _, err := s.orders.UpdateStatus(ctx, order.ID, domain.PaymentOrderFailed, details.PaymentID, s.now()); err != nil {
				s.metrics.IncReconciledOrder("error")
				continue
			}
			summary.Failed++
			s.metrics.IncReconciledOrder("failed")
		default:
			s.metrics.IncReconciledOrder("pending")
		}
	}

	s.logger(ctx, "payment.reconciled", map[string]any{
		"checked": summary.Checked,
		"paid":    summary.Paid,
		"failed":  summary.Failed,
	})
	return summary, nil
}

func (s *paymentService) markPaid(ctx context.Context, order PaymentOrder, paymentID string, paidAt time.Time, source string) (Registration, error) {
	if _, err := s.orders.UpdateStatus(ctx, order.ID, domain.PaymentOrderPaid, paymentID, paidAt); err != nil {
		return Registration{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	reg, changed, err := s.registrations.MarkPaid(ctx, order.ApplicationNumber, paymentID, paidAt)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Registration{}, fmt.Errorf("%w: %w", ErrRegistrationNotFound, err)
		}
		return Registration{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	if changed {
		s.logger(ctx, "payment.marked_paid", map[string]any{
			"applicationNumber": reg.ApplicationNumber,
			"orderId":           order.ID,
			"paymentId":         paymentID,
			"source":            source,
		})
	}
	return reg, nil
}

func (s *paymentService) registration(ctx context.Context, applicationNumber string, union domain.Union) (Registration, error) {
	appNo, err := normalizeApplicationNumber(applicationNumber)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: %w", ErrPaymentInvalidInput, err)
	}
	reg, err := s.registrations.FindByApplicationNumber(ctx, appNo)
	if err != nil {
		return Registration{}, mapRegistrationError(err)
	}
	if union != "" && !reg.PersonalInfo.Union.Equal(union) {
		return Registration{}, fmt.Errorf("%w: registration belongs to %s", ErrUnionMismatch, reg.PersonalInfo.Union.DisplayName())
	}
	return reg, nil
}

func (s *paymentService) order(ctx context.Context, orderID string) (PaymentOrder, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return PaymentOrder{}, fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		}
		return PaymentOrder{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	return order, nil
}

func capturedAt(details payments.PaymentDetails, fallback time.Time) time.Time {
	if details.CapturedAt != nil {
		return details.CapturedAt.UTC()
	}
	return fallback
}

func chooseAmount(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
