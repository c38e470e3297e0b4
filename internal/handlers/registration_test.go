package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bobbygour30/admitcard/internal/allocation"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/services"
)

func TestRegistrationHandlersRegister(t *testing.T) {
	var got services.RegisterCommand
	svc := &stubRegistrationService{
		registerFn: func(_ context.Context, cmd services.RegisterCommand) (services.Registration, error) {
			got = cmd
			return services.Registration{
				ApplicationNumber: "CBT123456",
				ExamCenter:        "DAV Public School",
				ExamShift:         "A (9:00 AM - 10:00 AM, 12-06-2025)",
			}, nil
		},
	}
	router := mountRoutes(NewRegistrationHandlers(svc, RateLimit{}).Routes)

	body := map[string]any{
		"union":     "Tirhut Union",
		"name":      "Asha Devi",
		"photo":     "data:image/png;base64,AAAA",
		"signature": "data:image/png;base64,BBBB",
		"qualCert":  "data:application/pdf;base64,CCCC",
	}
	rr := doJSON(t, router, http.MethodPost, "/register", body)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp portalapi.RegisterResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ApplicationNumber != "CBT123456" || resp.ExamCenter != "DAV Public School" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Info.Name != "Asha Devi" || got.Uploads.Photo != "data:image/png;base64,AAAA" || got.Uploads.QualCert == "" {
		t.Fatalf("form not passed through: %+v", got)
	}
}

func TestRegistrationHandlersRegisterErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "validation",
			err:    &domain.ValidationError{Fields: map[string]string{"mobile": "Mobile number must be 10 digits"}},
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
		{
			name:   "centers exhausted",
			err:    fmt.Errorf("%w: %w", services.ErrAllocationExhausted, allocation.ErrNoAvailableCenters),
			status: http.StatusConflict,
			code:   "allocation_exhausted",
		},
		{
			name:   "store down",
			err:    fmt.Errorf("%w: firestore timeout", services.ErrRegistrationUnavailable),
			status: http.StatusServiceUnavailable,
			code:   "registration_service_unavailable",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubRegistrationService{
				registerFn: func(context.Context, services.RegisterCommand) (services.Registration, error) {
					return services.Registration{}, tc.err
				},
			}
			router := mountRoutes(NewRegistrationHandlers(svc, RateLimit{}).Routes)
			rr := doJSON(t, router, http.MethodPost, "/register", map[string]any{"name": "x"})
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			body := decodeError(t, rr)
			if body.Error != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error)
			}
			if tc.code == "validation_failed" && body.Fields["mobile"] == "" {
				t.Fatalf("expected field message for mobile, got %v", body.Fields)
			}
		})
	}
}

func TestRegistrationHandlersRegisterRejectsBadJSON(t *testing.T) {
	router := mountRoutes(NewRegistrationHandlers(&stubRegistrationService{}, RateLimit{}).Routes)

	rr := doJSON(t, router, http.MethodPost, "/register", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodPost, "/register", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty body, got %d", rr.Code)
	}
}

func TestRegistrationHandlersRateLimit(t *testing.T) {
	svc := &stubRegistrationService{
		registerFn: func(context.Context, services.RegisterCommand) (services.Registration, error) {
			return services.Registration{ApplicationNumber: "CBT123456"}, nil
		},
	}
	router := mountRoutes(NewRegistrationHandlers(svc, RateLimit{Limit: 2, Window: time.Minute}).Routes)

	for i := 0; i < 2; i++ {
		if rr := doJSON(t, router, http.MethodPost, "/register", map[string]any{}); rr.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, rr.Code)
		}
	}
	rr := doJSON(t, router, http.MethodPost, "/register", map[string]any{})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if decodeError(t, rr).Error != "rate_limited" {
		t.Fatalf("expected rate_limited code")
	}
}

func TestRegistrationHandlersUploadDocument(t *testing.T) {
	var got []services.UploadDocumentCommand
	svc := &stubRegistrationService{
		uploadFn: func(_ context.Context, cmd services.UploadDocumentCommand) (services.Registration, error) {
			got = append(got, cmd)
			return services.Registration{}, nil
		},
	}
	router := mountRoutes(NewRegistrationHandlers(svc, RateLimit{}).Routes)

	rr := doJSON(t, router, http.MethodPost, "/upload-document", map[string]any{
		"applicationNumber": "CBT123456",
		"idProof":           "data:image/png;base64,AAAA",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodPost, "/upload-document", map[string]any{
		"applicationNumber": "CBT123456",
		"kind":              "addressProof",
		"document":          "data:application/pdf;base64,BBBB",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(got))
	}
	if got[0].Kind != domain.DocumentIDProof || got[0].DataURL != "data:image/png;base64,AAAA" {
		t.Fatalf("legacy idProof not resolved: %+v", got[0])
	}
	if got[1].Kind != domain.DocumentAddressProof {
		t.Fatalf("expected addressProof, got %s", got[1].Kind)
	}
}

func TestRegistrationHandlersGetUser(t *testing.T) {
	paidAt := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	svc := &stubRegistrationService{
		getFn: func(_ context.Context, appNo string) (services.Registration, error) {
			if appNo != "CBT123456" {
				return services.Registration{}, services.ErrRegistrationNotFound
			}
			return services.Registration{
				ApplicationNumber: appNo,
				PersonalInfo:      domain.PersonalInfo{Union: domain.UnionTirhut, Email: "asha@example.com", Mobile: "9876543210"},
				Documents:         map[domain.DocumentKind]string{domain.DocumentPhoto: "gs://bucket/registrations/x/photo.png"},
				PaymentStatus:     true,
				TransactionNumber: "pay_1",
				TransactionDate:   &paidAt,
			}, nil
		},
	}
	router := mountRoutes(NewRegistrationHandlers(svc, RateLimit{}).Routes)

	rr := doJSON(t, router, http.MethodGet, "/user?applicationNumber=CBT123456", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var user portalapi.Registration
	if err := json.Unmarshal(rr.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if user.Union != domain.UnionTirhut || !user.PaymentStatus || user.Email != "asha@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Photo != "" {
		t.Fatalf("storage reference leaked: %q", user.Photo)
	}

	if rr := doJSON(t, router, http.MethodGet, "/user?applicationNumber=CBT654321", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if rr := doJSON(t, router, http.MethodGet, "/user", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
