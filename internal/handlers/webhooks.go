package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bobbygour30/admitcard/internal/payments"
	"github.com/bobbygour30/admitcard/internal/platform/httpx"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookHandlers accepts provider deliveries. Signature checks run in the
// group middleware before these handlers see the body.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs webhook handlers backed by the payment service.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/razorpay", h.razorpay)
}

func (h *WebhookHandlers) razorpay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	event, err := payments.ParseRazorpayEvent(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_event", "webhook payload is malformed", http.StatusBadRequest))
		return
	}

	// A non-2xx answer makes the provider redeliver, so only store failures surface here.
	if _, err := h.payments.HandleWebhookEvent(ctx, event); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InternalHandlers serves scheduler-triggered maintenance endpoints.
type InternalHandlers struct {
	payments  services.PaymentService
	olderThan time.Duration
	limit     int
}

// NewInternalHandlers constructs the /internal handlers. olderThan and limit
// bound each reconciliation run; zero values use the service defaults.
func NewInternalHandlers(payments services.PaymentService, olderThan time.Duration, limit int) *InternalHandlers {
	return &InternalHandlers{payments: payments, olderThan: olderThan, limit: limit}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/reconcile", h.reconcile)
}

func (h *InternalHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	summary, err := h.payments.Reconcile(ctx, services.ReconcileCommand{OlderThan: h.olderThan, Limit: h.limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, portalapi.ReconcileResponse{
		Checked: summary.Checked,
		Paid:    summary.Paid,
		Failed:  summary.Failed,
	})
}
