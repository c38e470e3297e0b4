package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/services"
)

func newAdminRouter(svc services.AdminService) chi.Router {
	h := NewAdminHandlers(svc)
	return NewRouter(
		WithAdminRoutes(h.Routes),
		WithRegistrationRoutes(h.RegistrationRoutes),
	)
}

func TestAdminHandlersLogin(t *testing.T) {
	expires := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	svc := &stubAdminService{
		loginFn: func(_ context.Context, username, password string) (services.AdminSession, error) {
			if username != "admin" || password != "s3cret" {
				return services.AdminSession{}, services.ErrAdminUnauthorized
			}
			return services.AdminSession{Username: username, Token: "tok", ExpiresAt: expires}, nil
		},
	}
	router := newAdminRouter(svc)

	rr := doJSON(t, router, http.MethodPost, "/api/admin/login", map[string]string{"username": "admin", "password": "s3cret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp portalapi.AdminLoginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token != "tok" || !resp.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected login response %+v", resp)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/admin/login", map[string]string{"username": "admin", "password": "s3creT"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestAdminHandlersListUsesBodyCredentialsOrBearer(t *testing.T) {
	var got []services.AdminListCommand
	svc := &stubAdminService{
		listFn: func(_ context.Context, cmd services.AdminListCommand) ([]services.Registration, error) {
			got = append(got, cmd)
			return []services.Registration{{
				ApplicationNumber: "CBT123456",
				PersonalInfo:      domain.PersonalInfo{Name: "Asha Devi", Email: "asha@example.com"},
			}}, nil
		},
	}
	router := newAdminRouter(svc)

	rr := doJSON(t, router, http.MethodPost, "/api/registration/users",
		map[string]string{"username": "admin", "password": "s3cret", "search": "asha"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var users []portalapi.Registration
	if err := json.Unmarshal(rr.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(users) != 1 || users[0].ApplicationNumber != "CBT123456" {
		t.Fatalf("unexpected users %+v", users)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/registration/users", nil, "Authorization", "Bearer tok")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with empty body and bearer token, got %d", rr.Code)
	}

	if len(got) != 2 {
		t.Fatalf("expected two calls, got %d", len(got))
	}
	if got[0].Auth.Username != "admin" || got[0].Auth.Password != "s3cret" || got[0].Filter.Search != "asha" {
		t.Fatalf("unexpected first command %+v", got[0])
	}
	if got[1].Auth.Token != "tok" {
		t.Fatalf("expected bearer token, got %+v", got[1].Auth)
	}
}

func TestAdminHandlersDelete(t *testing.T) {
	var got services.AdminDeleteCommand
	svc := &stubAdminService{
		deleteFn: func(_ context.Context, cmd services.AdminDeleteCommand) (services.Registration, error) {
			got = cmd
			if cmd.Auth.Token == "" && cmd.Auth.Password == "" {
				return services.Registration{}, services.ErrAdminUnauthorized
			}
			return services.Registration{ApplicationNumber: cmd.ApplicationNumber}, nil
		},
	}
	router := newAdminRouter(svc)

	rr := doJSON(t, router, http.MethodDelete, "/api/registration/users/CBT123456", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodDelete, "/api/registration/users/CBT123456",
		map[string]string{"username": "admin", "password": "s3cret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got.ApplicationNumber != "CBT123456" || got.Auth.Username != "admin" {
		t.Fatalf("unexpected delete command %+v", got)
	}
}

func TestAdminHandlersDocumentURL(t *testing.T) {
	expires := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)
	var got services.AdminDocumentCommand
	svc := &stubAdminService{
		documentFn: func(_ context.Context, cmd services.AdminDocumentCommand) (services.ViewURL, error) {
			got = cmd
			if cmd.Kind == domain.DocumentCV {
				return services.ViewURL{}, services.ErrDocumentNotFound
			}
			return services.ViewURL{URL: "https://storage.googleapis.com/signed", ExpiresAt: expires}, nil
		},
	}
	router := newAdminRouter(svc)

	rr := doJSON(t, router, http.MethodGet, "/api/admin/documents/CBT123456/photo", nil, "Authorization", "Bearer tok")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp portalapi.DocumentURLResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL != "https://storage.googleapis.com/signed" {
		t.Fatalf("unexpected url %s", resp.URL)
	}
	if got.Kind != domain.DocumentPhoto || got.ApplicationNumber != "CBT123456" || got.Auth.Token != "tok" {
		t.Fatalf("unexpected command %+v", got)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/admin/documents/CBT123456/cv", nil, "Authorization", "Bearer tok")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
