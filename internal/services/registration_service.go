package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/bobbygour30/admitcard/internal/allocation"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/platform/storage"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

const defaultApplicationNumberAttempts = 5

var (
	// ErrRegistrationInvalidInput indicates a malformed application number or upload kind.
	ErrRegistrationInvalidInput = errors.New("registration: invalid input")
	// ErrRegistrationNotFound indicates no registration exists for the application number.
	ErrRegistrationNotFound = errors.New("registration: not found")
	// ErrRegistrationUnavailable indicates the store or document storage failed.
	ErrRegistrationUnavailable = errors.New("registration: unavailable")
	// ErrAllocationExhausted indicates every center or every shift is full.
	ErrAllocationExhausted = errors.New("registration: allocation exhausted")
)

// RegistrationServiceDeps wires the dependencies required by the registration service.
type RegistrationServiceDeps struct {
	Registrations repositories.RegistrationRepository
	Documents     DocumentStore
	Catalog       *domain.Catalog
	Metrics       MetricsRecorder
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	// Intn draws application numbers. Defaults to crypto/rand.
	Intn domain.RandomIntn
	// MaxAttempts bounds application number regeneration on duplicates.
	MaxAttempts int
}

type registrationService struct {
	registrations repositories.RegistrationRepository
	documents     DocumentStore
	catalog       *domain.Catalog
	metrics       MetricsRecorder
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
	intn          domain.RandomIntn
	maxAttempts   int
	policy        *bluemonday.Policy
}

var _ RegistrationService = (*registrationService)(nil)

// NewRegistrationService constructs a RegistrationService validating required dependencies.
func NewRegistrationService(deps RegistrationServiceDeps) (RegistrationService, error) {
	if deps.Registrations == nil {
		return nil, errors.New("registration service: registration repository is required")
	}
	if deps.Documents == nil {
		return nil, errors.New("registration service: document store is required")
	}
	cat := deps.Catalog
	if cat == nil {
		cat = domain.DefaultCatalog()
	}
	intn := deps.Intn
	if intn == nil {
		intn = domain.CryptoIntn
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultApplicationNumberAttempts
	}
	return &registrationService{
		registrations: deps.Registrations,
		documents:     deps.Documents,
		catalog:       cat,
		metrics:       metricsOrNoop(deps.Metrics),
		now:           utcClock(deps.Clock),
		logger:        loggerOrNoop(deps.Logger),
		intn:          intn,
		maxAttempts:   attempts,
		policy:        bluemonday.StrictPolicy(),
	}, nil
}

// Register validates the form, stores the uploads and enrolls the candidate,
// booking a center and shift in the same store transaction.
func (s *registrationService) Register(ctx context.Context, cmd RegisterCommand) (Registration, error) {
	info := s.sanitize(cmd.Info)
	info.Union = domain.NormalizeUnion(string(info.Union))

	blobs, err := domain.ValidateRegistration(s.catalog, info, cmd.Uploads)
	if err != nil {
		return Registration{}, err
	}

	uploadID := newULID(s.now())
	refs, err := s.storeBlobs(ctx, uploadID, blobs)
	if err != nil {
		return Registration{}, err
	}

	var lastDuplicate error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		now := s.now()
		reg := Registration{
			ApplicationNumber: domain.NewApplicationNumber(s.intn),
			PersonalInfo:      info,
			Documents:         refs,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		enrolled, err := s.registrations.Enroll(ctx, reg)
		if err == nil {
			s.metrics.IncRegistration(string(info.Union))
			s.logger(ctx, "registration.enrolled", map[string]any{
				"applicationNumber": enrolled.ApplicationNumber,
				"union":             string(info.Union),
				"centerId":          enrolled.CenterID,
				"shiftId":           enrolled.ShiftID,
				"attempt":           attempt + 1,
			})
			return enrolled, nil
		}
		if repositories.HasCode(err, repositories.RegistrationErrorDuplicate) {
			lastDuplicate = err
			continue
		}

		s.discardBlobs(ctx, refs)
		if allocation.IsExhausted(err) {
			pool := "center"
			if errors.Is(err, allocation.ErrNoAvailableShifts) {
				pool = "shift"
			}
			s.metrics.IncAllocationFailure(pool)
			s.logger(ctx, "registration.allocation_exhausted", map[string]any{"pool": pool})
			return Registration{}, fmt.Errorf("%w: %w", ErrAllocationExhausted, err)
		}
		return Registration{}, fmt.Errorf("%w: %w", ErrRegistrationUnavailable, err)
	}

	s.discardBlobs(ctx, refs)
	return Registration{}, fmt.Errorf("%w: no free application number after %d attempts: %w", ErrRegistrationUnavailable, s.maxAttempts, lastDuplicate)
}

// UploadDocument stores one supporting document and attaches it to the registration.
func (s *registrationService) UploadDocument(ctx context.Context, cmd UploadDocumentCommand) (Registration, error) {
	appNo, err := normalizeApplicationNumber(cmd.ApplicationNumber)
	if err != nil {
		return Registration{}, err
	}
	if !domain.IsSupportingDocument(cmd.Kind) {
		return Registration{}, fmt.Errorf("%w: unsupported document kind %q", ErrRegistrationInvalidInput, cmd.Kind)
	}
	blob, err := domain.ValidateBlob(cmd.Kind, cmd.DataURL)
	if err != nil {
		return Registration{}, err
	}

	existing, err := s.find(ctx, appNo)
	if err != nil {
		return Registration{}, err
	}

	object := storage.ObjectPath(newULID(s.now()), cmd.Kind, blob)
	ref, err := s.documents.Put(ctx, object, blob)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: %w", ErrRegistrationUnavailable, err)
	}
	updated, err := s.registrations.AttachDocument(ctx, appNo, cmd.Kind, ref, s.now())
	if err != nil {
		s.discardBlobs(ctx, map[domain.DocumentKind]string{cmd.Kind: ref})
		return Registration{}, mapRegistrationError(err)
	}
	if previous := existing.Documents[cmd.Kind]; previous != "" && previous != ref {
		s.discardBlobs(ctx, map[domain.DocumentKind]string{cmd.Kind: previous})
	}

	s.logger(ctx, "registration.document_uploaded", map[string]any{
		"applicationNumber": appNo,
		"kind":              string(cmd.Kind),
		"bytes":             len(blob.Data),
	})
	return updated, nil
}

// GetRegistration returns the candidate record.
func (s *registrationService) GetRegistration(ctx context.Context, applicationNumber string) (Registration, error) {
	appNo, err := normalizeApplicationNumber(applicationNumber)
	if err != nil {
		return Registration{}, err
	}
	return s.find(ctx, appNo)
}

func (s *registrationService) find(ctx context.Context, appNo string) (Registration, error) {
	reg, err := s.registrations.FindByApplicationNumber(ctx, appNo)
	if err != nil {
		return Registration{}, mapRegistrationError(err)
	}
	return reg, nil
}

func (s *registrationService) storeBlobs(ctx context.Context, uploadID string, blobs map[domain.DocumentKind]domain.Blob) (map[domain.DocumentKind]string, error) {
	refs := make(map[domain.DocumentKind]string, len(blobs))
	for kind, blob := range blobs {
		ref, err := s.documents.Put(ctx, storage.ObjectPath(uploadID, kind, blob), blob)
		if err != nil {
			s.discardBlobs(ctx, refs)
			return nil, fmt.Errorf("%w: store %s: %w", ErrRegistrationUnavailable, kind, err)
		}
		refs[kind] = ref
	}
	return refs, nil
}

// discardBlobs is best effort; orphans are logged and left to bucket lifecycle rules.
func (s *registrationService) discardBlobs(ctx context.Context, refs map[domain.DocumentKind]string) {
	for kind, ref := range refs {
		if err := s.documents.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger(ctx, "registration.document_cleanup_failed", map[string]any{
				"kind":  string(kind),
				"ref":   ref,
				"error": err.Error(),
			})
		}
	}
}

func (s *registrationService) sanitize(info domain.PersonalInfo) domain.PersonalInfo {
	out := info.Clone()
	for _, field := range []*string{
		&out.Name, &out.FatherName, &out.MotherName, &out.Address,
		&out.PostDesignation, &out.OrganizationName,
	} {
		*field = strings.TrimSpace(s.policy.Sanitize(*field))
	}
	out.Email = strings.TrimSpace(out.Email)
	out.Mobile = strings.TrimSpace(out.Mobile)
	out.AadhaarNumber = strings.TrimSpace(out.AadhaarNumber)
	return out
}

func normalizeApplicationNumber(value string) (string, error) {
	appNo := domain.NormalizeApplicationNumber(value)
	if !domain.ValidApplicationNumber(appNo) {
		return "", fmt.Errorf("%w: application number must look like CBT123456", ErrRegistrationInvalidInput)
	}
	return appNo, nil
}

func mapRegistrationError(err error) error {
	switch {
	case err == nil:
		return nil
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %w", ErrRegistrationNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrRegistrationUnavailable, err)
	}
}

func newULID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
