package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/platform/auth"
	"github.com/bobbygour30/admitcard/internal/platform/httpx"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/services"
)

const maxAdminBodySize = 8 * 1024

// AdminHandlers exposes the privileged endpoints. Each request carries its own
// authorization, either a bearer session token or the credential pair.
type AdminHandlers struct {
	admin services.AdminService
}

// NewAdminHandlers constructs handlers backed by the admin service.
func NewAdminHandlers(admin services.AdminService) *AdminHandlers {
	return &AdminHandlers{admin: admin}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.login)
	r.Get("/documents/{applicationNumber}/{kind}", h.documentURL)
}

// RegistrationRoutes wires the admin listing and delete endpoints that live
// under /registration.
func (h *AdminHandlers) RegistrationRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/users", h.listUsers)
	r.Delete("/users/{applicationNumber}", h.deleteUser)
}

func (h *AdminHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeServiceUnavailable(ctx, w, "admin")
		return
	}
	var req portalapi.AdminCredentials
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	session, err := h.admin.Login(ctx, req.Username, req.Password)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, portalapi.AdminLoginResponse{Token: session.Token, ExpiresAt: session.ExpiresAt})
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeServiceUnavailable(ctx, w, "admin")
		return
	}
	var req portalapi.AdminListRequest
	if !decodeOptionalJSON(ctx, w, r, &req) {
		return
	}

	regs, err := h.admin.ListRegistrations(ctx, services.AdminListCommand{
		Auth:   authorizationFrom(r, req.Username, req.Password),
		Filter: services.RegistrationFilter{Search: req.Search, Limit: req.Limit},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	users := make([]portalapi.Registration, 0, len(regs))
	for _, reg := range regs {
		users = append(users, portalapi.FromDomain(reg, nil))
	}
	writeJSONResponse(w, http.StatusOK, users)
}

func (h *AdminHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeServiceUnavailable(ctx, w, "admin")
		return
	}
	var req portalapi.AdminCredentials
	if !decodeOptionalJSON(ctx, w, r, &req) {
		return
	}

	_, err := h.admin.DeleteRegistration(ctx, services.AdminDeleteCommand{
		Auth:              authorizationFrom(r, req.Username, req.Password),
		ApplicationNumber: chi.URLParam(r, "applicationNumber"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, portalapi.MessageResponse{Message: "User deleted successfully"})
}

func (h *AdminHandlers) documentURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeServiceUnavailable(ctx, w, "admin")
		return
	}
	view, err := h.admin.DocumentURL(ctx, services.AdminDocumentCommand{
		Auth:              authorizationFrom(r, "", ""),
		ApplicationNumber: chi.URLParam(r, "applicationNumber"),
		Kind:              domain.DocumentKind(chi.URLParam(r, "kind")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, portalapi.DocumentURLResponse{URL: view.URL, ExpiresAt: view.ExpiresAt})
}

// decodeOptionalJSON accepts an empty body, leaving dst untouched.
func decodeOptionalJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		if errors.Is(err, errEmptyBody) {
			return true
		}
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func authorizationFrom(r *http.Request, username, password string) services.AdminAuthorization {
	token, _ := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	return services.AdminAuthorization{
		Token:    strings.TrimSpace(token),
		Username: username,
		Password: password,
	}
}
