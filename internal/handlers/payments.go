package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/services"
)

const maxPaymentBodySize = 8 * 1024

// PaymentHandlers exposes order creation and checkout verification.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs handlers backed by the payment service.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes wires the /payment endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/create-order", h.createOrder)
	r.Post("/verify", h.verify)
}

func (h *PaymentHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	var req portalapi.CreateOrderRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}

	checkout, err := h.payments.CreateOrder(ctx, services.CreateOrderCommand{
		ApplicationNumber: req.ApplicationNumber,
		Amount:            req.Amount,
		Union:             req.Union,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	order := checkout.Order
	writeJSONResponse(w, http.StatusOK, portalapi.CreateOrderResponse{
		Order:        portalapi.Order{ID: order.ID, Amount: order.Amount, Currency: order.Currency},
		OrderID:      order.ID,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Union:        order.Union,
		KeyID:        checkout.KeyID,
		Provider:     order.Provider,
		ClientSecret: checkout.ClientSecret,
	})
}

func (h *PaymentHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeServiceUnavailable(ctx, w, "payment")
		return
	}
	var req portalapi.VerifyPaymentRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}

	reg, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		ApplicationNumber: req.ApplicationNumber,
		OrderID:           req.OrderID,
		PaymentID:         req.PaymentID,
		Signature:         req.Signature,
		Union:             req.Union,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, portalapi.VerifyPaymentResponse{
		Message:           "Payment verified successfully",
		Union:             reg.PersonalInfo.Union,
		TransactionNumber: reg.TransactionNumber,
	})
}
