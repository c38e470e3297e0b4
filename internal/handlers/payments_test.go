package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/payments"
	"github.com/bobbygour30/admitcard/internal/platform/auth"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/services"
)

func TestPaymentHandlersCreateOrder(t *testing.T) {
	var got services.CreateOrderCommand
	svc := &stubPaymentService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.PaymentCheckout, error) {
			got = cmd
			return services.PaymentCheckout{
				Order: services.PaymentOrder{
					ID:       "order_A",
					Provider: payments.ProviderRazorpay,
					Union:    domain.UnionTirhut,
					Amount:   5000000,
					Currency: "INR",
				},
				KeyID: "rzp_test_key",
			}, nil
		},
	}
	router := mountRoutes(NewPaymentHandlers(svc).Routes)

	rr := doJSON(t, router, http.MethodPost, "/create-order", map[string]any{
		"applicationNumber": "CBT123456",
		"amount":            5000000,
		"union":             "Tirhut Union",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp portalapi.CreateOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "order_A" || resp.Order.ID != "order_A" || resp.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Amount != 5000000 || resp.Currency != "INR" || resp.Union != domain.UnionTirhut {
		t.Fatalf("unexpected amount fields %+v", resp)
	}
	if got.ApplicationNumber != "CBT123456" || got.Amount != 5000000 || got.Union != "Tirhut Union" {
		t.Fatalf("command not passed through: %+v", got)
	}
}

func TestPaymentHandlersCreateOrderErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
		{services.ErrFeeExempt, http.StatusConflict, "fee_exempt"},
		{fmt.Errorf("%w: registration belongs to Harit Union", services.ErrUnionMismatch), http.StatusConflict, "union_mismatch"},
		{fmt.Errorf("%w: fee is 5000000", services.ErrAmountMismatch), http.StatusBadRequest, "invalid_amount"},
		{fmt.Errorf("%w: timeout", services.ErrPaymentProviderFailed), http.StatusBadGateway, "payment_provider_error"},
		{services.ErrPaymentsDisabled, http.StatusServiceUnavailable, "payments_disabled"},
		{services.ErrRegistrationNotFound, http.StatusNotFound, "registration_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &stubPaymentService{
				createFn: func(context.Context, services.CreateOrderCommand) (services.PaymentCheckout, error) {
					return services.PaymentCheckout{}, tc.err
				},
			}
			router := mountRoutes(NewPaymentHandlers(svc).Routes)
			rr := doJSON(t, router, http.MethodPost, "/create-order", map[string]any{"applicationNumber": "CBT123456"})
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if body := decodeError(t, rr); body.Error != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error)
			}
		})
	}
}

func TestPaymentHandlersVerify(t *testing.T) {
	var got services.VerifyPaymentCommand
	svc := &stubPaymentService{
		verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.Registration, error) {
			got = cmd
			if cmd.Signature != "good" {
				return services.Registration{}, services.ErrPaymentVerificationFailed
			}
			return services.Registration{
				ApplicationNumber: cmd.ApplicationNumber,
				PersonalInfo:      domain.PersonalInfo{Union: domain.UnionTirhut},
				PaymentStatus:     true,
				TransactionNumber: cmd.PaymentID,
			}, nil
		},
	}
	router := mountRoutes(NewPaymentHandlers(svc).Routes)

	rr := doJSON(t, router, http.MethodPost, "/verify", map[string]any{
		"applicationNumber":   "CBT123456",
		"razorpay_order_id":   "order_A",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "good",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp portalapi.VerifyPaymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TransactionNumber != "pay_1" || resp.Union != domain.UnionTirhut {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.OrderID != "order_A" || got.PaymentID != "pay_1" {
		t.Fatalf("checkout fields not mapped: %+v", got)
	}

	rr = doJSON(t, router, http.MethodPost, "/verify", map[string]any{
		"applicationNumber":   "CBT123456",
		"razorpay_order_id":   "order_A",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "forged",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Error != "payment_verification_failed" {
		t.Fatalf("expected payment_verification_failed, got %s", body.Error)
	}
}

func TestWebhookHandlersRazorpay(t *testing.T) {
	var got payments.WebhookEvent
	svc := &stubPaymentService{
		webhookFn: func(_ context.Context, event payments.WebhookEvent) (services.WebhookOutcome, error) {
			got = event
			return services.WebhookOutcomePaid, nil
		},
	}
	secret := "whsec_test"
	validator := auth.NewHMACValidator(
		auth.StaticSecrets{"razorpay": secret},
		auth.NewInMemoryNonceStore(),
		auth.WithHMACHeaders("X-Razorpay-Signature", "X-Razorpay-Event-Id"),
	)
	router := NewRouter(
		WithWebhookMiddlewares(validator.RequireHMAC("razorpay")),
		WithWebhookRoutes(NewWebhookHandlers(svc).Routes),
	)

	payload := `{"event":"payment.captured","created_at":1749800000,"payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_A","amount":5000000,"currency":"inr","status":"captured"}}}}`
	signature := auth.SignPayload([]byte(secret), []byte(payload))

	rr := doJSON(t, router, http.MethodPost, "/api/webhooks/razorpay", payload,
		"X-Razorpay-Signature", signature, "X-Razorpay-Event-Id", "evt_1")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "order_A" || got.PaymentID != "pay_1" || got.Status != payments.StatusSucceeded {
		t.Fatalf("unexpected event %+v", got)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/webhooks/razorpay", payload,
		"X-Razorpay-Signature", signature, "X-Razorpay-Event-Id", "evt_1")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected replay to be rejected with 409, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/webhooks/razorpay", payload,
		"X-Razorpay-Signature", "00ff", "X-Razorpay-Event-Id", "evt_2")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected forged signature to be rejected with 401, got %d", rr.Code)
	}
}

func TestWebhookHandlersMalformedAndStoreFailure(t *testing.T) {
	svc := &stubPaymentService{
		webhookFn: func(context.Context, payments.WebhookEvent) (services.WebhookOutcome, error) {
			return "", fmt.Errorf("%w: firestore down", services.ErrPaymentUnavailable)
		},
	}
	router := mountRoutes(NewWebhookHandlers(svc).Routes)

	if rr := doJSON(t, router, http.MethodPost, "/razorpay", `{"payload":{}}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for event without a name, got %d", rr.Code)
	}
	rr := doJSON(t, router, http.MethodPost, "/razorpay", `{"event":"order.paid","payload":{}}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 so the provider redelivers, got %d", rr.Code)
	}
}

func TestInternalHandlersReconcile(t *testing.T) {
	var got services.ReconcileCommand
	svc := &stubPaymentService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileCommand) (services.ReconcileSummary, error) {
			got = cmd
			return services.ReconcileSummary{Checked: 3, Paid: 1, Failed: 1}, nil
		},
	}
	router := mountRoutes(NewInternalHandlers(svc, 45*time.Minute, 20).Routes)

	rr := doJSON(t, router, http.MethodPost, "/payments/reconcile", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp portalapi.ReconcileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Checked != 3 || resp.Paid != 1 || resp.Failed != 1 {
		t.Fatalf("unexpected summary %+v", resp)
	}
	if got.OlderThan != 45*time.Minute || got.Limit != 20 {
		t.Fatalf("unexpected command %+v", got)
	}

	svc.reconcileFn = func(context.Context, services.ReconcileCommand) (services.ReconcileSummary, error) {
		return services.ReconcileSummary{}, errors.New("boom")
	}
	if rr := doJSON(t, router, http.MethodPost, "/payments/reconcile", nil); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}
