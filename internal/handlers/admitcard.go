package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bobbygour30/admitcard/internal/platform/httpx"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/services"
)

// AdmitCardHandlers exposes admit card lookup, printing and email dispatch.
type AdmitCardHandlers struct {
	cards   services.AdmitCardService
	limiter rateLimiter
}

// NewAdmitCardHandlers constructs handlers backed by the admit card service.
// Email dispatch is budgeted per client IP by limit.
func NewAdmitCardHandlers(cards services.AdmitCardService, limit RateLimit) *AdmitCardHandlers {
	return &AdmitCardHandlers{
		cards:   cards,
		limiter: newSimpleRateLimiter(limit.Limit, limit.Window, nil),
	}
}

// Routes wires the /admit-card endpoints onto the provided router.
func (h *AdmitCardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(limitByClientIP(h.limiter, "admit-card")).Get("/", h.getAdmitCard)
	r.Get("/view", h.viewAdmitCard)
	r.With(limitByClientIP(h.limiter, "admit-card")).Post("/email", h.sendEmail)
}

func (h *AdmitCardHandlers) getAdmitCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cards == nil {
		writeServiceUnavailable(ctx, w, "admit_card")
		return
	}
	appNo, ok := applicationNumberQuery(w, r)
	if !ok {
		return
	}

	result, err := h.cards.GetAdmitCard(ctx, appNo)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, portalapi.AdmitCardResponse{
		User:      admitCardView(result.Card),
		EmailSent: result.EmailSent,
	})
}

func (h *AdmitCardHandlers) viewAdmitCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cards == nil {
		writeServiceUnavailable(ctx, w, "admit_card")
		return
	}
	appNo, ok := applicationNumberQuery(w, r)
	if !ok {
		return
	}

	page, err := h.cards.RenderAdmitCard(ctx, appNo)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src https: data:; style-src 'unsafe-inline'")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (h *AdmitCardHandlers) sendEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cards == nil {
		writeServiceUnavailable(ctx, w, "admit_card")
		return
	}
	var req portalapi.ApplicationNumberRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	if err := h.cards.SendAdmitCardEmail(ctx, req.ApplicationNumber); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, portalapi.MessageResponse{Message: "Admit card email queued"})
}

func applicationNumberQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	appNo := strings.TrimSpace(r.URL.Query().Get("applicationNumber"))
	if appNo == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "applicationNumber is required", http.StatusBadRequest))
		return "", false
	}
	return appNo, true
}

func admitCardView(card services.AdmitCard) portalapi.AdmitCard {
	view := portalapi.AdmitCard{
		Registration:     candidateView(card.Registration),
		ExamTitle:        card.ExamTitle,
		GateEntryMinutes: card.GateEntryMinutes,
		Issuer:           card.Issuer,
		Instructions:     card.Instructions,
	}
	view.Photo = card.PhotoURL
	view.Signature = card.SignatureURL
	return view
}
