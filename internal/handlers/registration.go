package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bobbygour30/admitcard/internal/platform/httpx"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/services"
)

// Registration forms carry every upload as a data URL, so the body budget is
// the sum of the per-kind limits plus base64 overhead.
const (
	maxRegisterBodySize = 8 << 20
	maxUploadBodySize   = 1 << 20
)

// RegistrationHandlers exposes the candidate registration endpoints.
type RegistrationHandlers struct {
	registrations services.RegistrationService
	limiter       rateLimiter
}

// NewRegistrationHandlers constructs handlers backed by the registration service.
// Registration submissions are budgeted per client IP by limit.
func NewRegistrationHandlers(registrations services.RegistrationService, limit RateLimit) *RegistrationHandlers {
	return &RegistrationHandlers{
		registrations: registrations,
		limiter:       newSimpleRateLimiter(limit.Limit, limit.Window, nil),
	}
}

// Routes wires the /registration endpoints onto the provided router.
func (h *RegistrationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(limitByClientIP(h.limiter, "register")).Post("/register", h.register)
	r.Post("/upload-document", h.uploadDocument)
	r.Get("/user", h.getUser)
}

func (h *RegistrationHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registrations == nil {
		writeServiceUnavailable(ctx, w, "registration")
		return
	}
	var req portalapi.RegisterRequest
	if !decodeJSONBody(w, r, maxRegisterBodySize, &req) {
		return
	}

	reg, err := h.registrations.Register(ctx, services.RegisterCommand{
		Info:    req.PersonalInfo,
		Uploads: req.Uploads(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, portalapi.RegisterResponse{
		Message:           "Registration successful",
		ApplicationNumber: reg.ApplicationNumber,
		ExamCenter:        reg.ExamCenter,
		ExamShift:         reg.ExamShift,
	})
}

func (h *RegistrationHandlers) uploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registrations == nil {
		writeServiceUnavailable(ctx, w, "registration")
		return
	}
	var req portalapi.UploadDocumentRequest
	if !decodeJSONBody(w, r, maxUploadBodySize, &req) {
		return
	}
	kind, document := req.Resolve()

	if _, err := h.registrations.UploadDocument(ctx, services.UploadDocumentCommand{
		ApplicationNumber: req.ApplicationNumber,
		Kind:              kind,
		DataURL:           document,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, portalapi.MessageResponse{Message: "Document uploaded successfully"})
}

func (h *RegistrationHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registrations == nil {
		writeServiceUnavailable(ctx, w, "registration")
		return
	}
	appNo := strings.TrimSpace(r.URL.Query().Get("applicationNumber"))
	if appNo == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "applicationNumber is required", http.StatusBadRequest))
		return
	}

	reg, err := h.registrations.GetRegistration(ctx, appNo)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, candidateView(reg))
}

// candidateView hides storage references from public responses.
func candidateView(reg services.Registration) portalapi.Registration {
	reg.Documents = nil
	return portalapi.FromDomain(reg, nil)
}
