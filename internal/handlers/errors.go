package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bobbygour30/admitcard/internal/allocation"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/platform/httpx"
	"github.com/bobbygour30/admitcard/internal/services"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

const maxJSONBodySize = 64 * 1024

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxJSONBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a bounded body into dst and writes the 4xx itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
}

// writeServiceError maps service errors onto the portal's status codes.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var (
		verr        *domain.ValidationError
		notReleased *services.AdmitCardNotReleasedError
	)
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", verr.Error(), http.StatusBadRequest).WithFields(verr.Fields))
	case errors.Is(err, services.ErrRegistrationInvalidInput), errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_amount", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "Payment verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrAdminUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("unauthorized", "Invalid admin credentials", http.StatusUnauthorized))
	case errors.As(err, &notReleased):
		httpx.WriteError(ctx, w, httpx.NewError("admit_card_not_released", notReleased.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrPaymentRequired):
		httpx.WriteError(ctx, w, httpx.NewError("payment_required", "Payment must be completed before the admit card is issued", http.StatusForbidden))
	case errors.Is(err, services.ErrRegistrationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("registration_not_found", "No registration found for this application number", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "payment order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDocumentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("document_not_found", "document not uploaded", http.StatusNotFound))
	case errors.Is(err, services.ErrAllocationExhausted):
		message := "No exam center has seats left"
		if errors.Is(err, allocation.ErrNoAvailableShifts) {
			message = "No exam shift has seats left"
		}
		httpx.WriteError(ctx, w, httpx.NewError("allocation_exhausted", message, http.StatusConflict))
	case errors.Is(err, services.ErrAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("already_paid", "Payment has already been completed", http.StatusConflict))
	case errors.Is(err, services.ErrFeeExempt):
		httpx.WriteError(ctx, w, httpx.NewError("fee_exempt", "No payment is required for this union", http.StatusConflict))
	case errors.Is(err, services.ErrUnionMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("union_mismatch", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("order_mismatch", "order does not belong to this application", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentProviderFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_error", "payment provider request failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrPaymentsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("payments_disabled", "online payments are not enabled", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrAdmitCardEmailUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("email_unavailable", "admit card email could not be queued", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrAdmitCardRenderUnavailable):
		writeServiceUnavailable(ctx, w, "admit_card")
	case errors.Is(err, services.ErrAdminUnavailable):
		writeServiceUnavailable(ctx, w, "admin")
	case errors.Is(err, services.ErrRegistrationUnavailable):
		writeServiceUnavailable(ctx, w, "registration")
	case errors.Is(err, services.ErrPaymentUnavailable):
		writeServiceUnavailable(ctx, w, "payment")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", fmt.Sprintf("request failed: %s", http.StatusText(http.StatusInternalServerError)), http.StatusInternalServerError))
	}
}
