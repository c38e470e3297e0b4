package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobbygour30/admitcard/internal/adminauth"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/platform/auth"
	"github.com/bobbygour30/admitcard/internal/platform/storage"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

const maxAdminListLimit = 1000

var (
	// ErrAdminUnauthorized indicates missing or wrong admin credentials.
	ErrAdminUnauthorized = errors.New("admin: unauthorized")
	// ErrAdminUnavailable indicates admin sessions are not configured.
	ErrAdminUnavailable = errors.New("admin: unavailable")
	// ErrDocumentNotFound indicates the registration has no document of that kind.
	ErrDocumentNotFound = errors.New("admin: document not found")
)

// AdminServiceDeps wires the dependencies required by the admin service.
type AdminServiceDeps struct {
	Registrations repositories.RegistrationRepository
	Documents     DocumentStore
	Credentials   adminauth.Credentials
	// Tokens may be nil; then only the credential pair authorizes.
	Tokens AdminTokens
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type adminService struct {
	registrations repositories.RegistrationRepository
	documents     DocumentStore
	credentials   adminauth.Credentials
	tokens        AdminTokens
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

var _ AdminService = (*adminService)(nil)

// NewAdminService constructs an AdminService validating required dependencies.
func NewAdminService(deps AdminServiceDeps) (AdminService, error) {
	if deps.Registrations == nil {
		return nil, errors.New("admin service: registration repository is required")
	}
	if deps.Documents == nil {
		return nil, errors.New("admin service: document store is required")
	}
	return &adminService{
		registrations: deps.Registrations,
		documents:     deps.Documents,
		credentials:   deps.Credentials,
		tokens:        deps.Tokens,
		now:           utcClock(deps.Clock),
		logger:        loggerOrNoop(deps.Logger),
	}, nil
}

func (s *adminService) Login(ctx context.Context, username, password string) (AdminSession, error) {
	if !s.credentials.Match(username, password) {
		s.logger(ctx, "admin.login_rejected", nil)
		return AdminSession{}, ErrAdminUnauthorized
	}
	if s.tokens == nil {
		return AdminSession{}, ErrAdminUnavailable
	}
	token, expires, err := s.tokens.Issue(username)
	if err != nil {
		return AdminSession{}, fmt.Errorf("%w: %w", ErrAdminUnavailable, err)
	}
	s.logger(ctx, "admin.login", map[string]any{"username": username})
	return AdminSession{Username: username, Token: token, ExpiresAt: expires}, nil
}

func (s *adminService) ListRegistrations(ctx context.Context, cmd AdminListCommand) ([]Registration, error) {
	if _, err := s.authorize(ctx, cmd.Auth); err != nil {
		return nil, err
	}
	filter := cmd.Filter
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Limit < 0 || filter.Limit > maxAdminListLimit {
		filter.Limit = maxAdminListLimit
	}
	regs, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationUnavailable, err)
	}
	return regs, nil
}

// DeleteRegistration removes the record and its stored documents. The
// booked seat stays counted.
func (s *adminService) DeleteRegistration(ctx context.Context, cmd AdminDeleteCommand) (Registration, error) {
	actor, err := s.authorize(ctx, cmd.Auth)
	if err != nil {
		return Registration{}, err
	}
	appNo, err := normalizeApplicationNumber(cmd.ApplicationNumber)
	if err != nil {
		return Registration{}, err
	}
	removed, err := s.registrations.Delete(ctx, appNo)
	if err != nil {
		return Registration{}, mapRegistrationError(err)
	}

	for kind, ref := range removed.Documents {
		if err := s.documents.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger(ctx, "admin.document_cleanup_failed", map[string]any{
				"applicationNumber": appNo,
				"kind":              string(kind),
				"error":             err.Error(),
			})
		}
	}
	s.logger(ctx, "admin.registration_deleted", map[string]any{
		"applicationNumber": appNo,
		"actor":             actor,
		"centerId":          removed.CenterID,
		"shiftId":           removed.ShiftID,
		"paid":              removed.PaymentStatus,
	})
	return removed, nil
}

func (s *adminService) DocumentURL(ctx context.Context, cmd AdminDocumentCommand) (ViewURL, error) {
	if _, err := s.authorize(ctx, cmd.Auth); err != nil {
		return ViewURL{}, err
	}
	appNo, err := normalizeApplicationNumber(cmd.ApplicationNumber)
	if err != nil {
		return ViewURL{}, err
	}
	if _, ok := domain.BlobRules[cmd.Kind]; !ok {
		return ViewURL{}, fmt.Errorf("%w: unknown document kind %q", ErrRegistrationInvalidInput, cmd.Kind)
	}
	reg, err := s.registrations.FindByApplicationNumber(ctx, appNo)
	if err != nil {
		return ViewURL{}, mapRegistrationError(err)
	}
	ref := reg.Documents[cmd.Kind]
	if ref == "" {
		return ViewURL{}, ErrDocumentNotFound
	}
	view, err := s.documents.ViewURL(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ViewURL{}, fmt.Errorf("%w: %w", ErrDocumentNotFound, err)
		}
		return ViewURL{}, fmt.Errorf("%w: %w", ErrRegistrationUnavailable, err)
	}
	return view, nil
}

// authorize accepts a session token or the exact credential pair and returns
// the acting username.
func (s *adminService) authorize(ctx context.Context, authz AdminAuthorization) (string, error) {
	if token := strings.TrimSpace(authz.Token); token != "" {
		if s.tokens == nil {
			return "", ErrAdminUnauthorized
		}
		identity, err := s.tokens.VerifyToken(ctx, token)
		if err != nil || !identity.HasRole(auth.RoleAdmin) {
			return "", ErrAdminUnauthorized
		}
		return identity.Subject, nil
	}
	if s.credentials.Match(authz.Username, authz.Password) {
		return authz.Username, nil
	}
	return "", ErrAdminUnauthorized
}
