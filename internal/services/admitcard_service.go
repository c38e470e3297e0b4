package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/platform/jobs"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

var (
	// ErrAdmitCardNotReleased indicates the union's admit cards are still withheld.
	ErrAdmitCardNotReleased = errors.New("admit card: not released yet")
	// ErrPaymentRequired indicates the fee is unpaid.
	ErrPaymentRequired = errors.New("admit card: payment required")
	// ErrAdmitCardEmailUnavailable indicates the email job could not be queued.
	ErrAdmitCardEmailUnavailable = errors.New("admit card: email unavailable")
	// ErrAdmitCardRenderUnavailable indicates no renderer is configured.
	ErrAdmitCardRenderUnavailable = errors.New("admit card: rendering unavailable")
)

// AdmitCardNotReleasedError names the union and release date.
type AdmitCardNotReleasedError struct {
	Union     domain.Union
	ReleaseAt time.Time
}

func (e *AdmitCardNotReleasedError) Error() string {
	return fmt.Sprintf("Admit cards for %s will be available from %s", e.Union.DisplayName(), e.ReleaseAt.In(domain.IST).Format("2 January 2006"))
}

// Is matches ErrAdmitCardNotReleased.
func (e *AdmitCardNotReleasedError) Is(target error) bool {
	return target == ErrAdmitCardNotReleased
}

// AdmitCardServiceDeps wires the dependencies required by the admit card service.
type AdmitCardServiceDeps struct {
	Registrations repositories.RegistrationRepository
	Documents     DocumentStore
	Catalog       *domain.Catalog
	// Mailer is optional; without it no email is queued.
	Mailer   AdmitCardMailer
	Renderer AdmitCardRenderer
	// PublicBaseURL prefixes the printable card link sent by email.
	PublicBaseURL string
	Metrics       MetricsRecorder
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type admitCardService struct {
	registrations repositories.RegistrationRepository
	documents     DocumentStore
	catalog       *domain.Catalog
	mailer        AdmitCardMailer
	renderer      AdmitCardRenderer
	baseURL       string
	metrics       MetricsRecorder
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

var _ AdmitCardService = (*admitCardService)(nil)

// NewAdmitCardService constructs an AdmitCardService validating required dependencies.
func NewAdmitCardService(deps AdmitCardServiceDeps) (AdmitCardService, error) {
	if deps.Registrations == nil {
		return nil, errors.New("admit card service: registration repository is required")
	}
	if deps.Documents == nil {
		return nil, errors.New("admit card service: document store is required")
	}
	cat := deps.Catalog
	if cat == nil {
		cat = domain.DefaultCatalog()
	}
	return &admitCardService{
		registrations: deps.Registrations,
		documents:     deps.Documents,
		catalog:       cat,
		mailer:        deps.Mailer,
		renderer:      deps.Renderer,
		baseURL:       strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		metrics:       metricsOrNoop(deps.Metrics),
		now:           utcClock(deps.Clock),
		logger:        loggerOrNoop(deps.Logger),
	}, nil
}

// GetAdmitCard returns the card and queues the notification email. A failed
// email never fails the lookup; EmailSent reports whether it was queued.
func (s *admitCardService) GetAdmitCard(ctx context.Context, applicationNumber string) (AdmitCardResult, error) {
	card, err := s.build(ctx, applicationNumber)
	if err != nil {
		return AdmitCardResult{}, err
	}
	sent := s.dispatch(ctx, card) == nil
	return AdmitCardResult{Card: card, EmailSent: sent}, nil
}

// RenderAdmitCard returns the printable HTML card.
func (s *admitCardService) RenderAdmitCard(ctx context.Context, applicationNumber string) ([]byte, error) {
	if s.renderer == nil {
		return nil, ErrAdmitCardRenderUnavailable
	}
	card, err := s.build(ctx, applicationNumber)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, card); err != nil {
		return nil, fmt.Errorf("admit card: render: %w", err)
	}
	return buf.Bytes(), nil
}

// SendAdmitCardEmail queues the email on request.
func (s *admitCardService) SendAdmitCardEmail(ctx context.Context, applicationNumber string) error {
	card, err := s.build(ctx, applicationNumber)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, card)
}

func (s *admitCardService) build(ctx context.Context, applicationNumber string) (AdmitCard, error) {
	appNo, err := normalizeApplicationNumber(applicationNumber)
	if err != nil {
		return AdmitCard{}, err
	}
	reg, err := s.registrations.FindByApplicationNumber(ctx, appNo)
	if err != nil {
		return AdmitCard{}, mapRegistrationError(err)
	}

	union := reg.PersonalInfo.Union
	profile, err := s.catalog.Union(union)
	if err != nil {
		return AdmitCard{}, fmt.Errorf("%w: %w", ErrRegistrationUnavailable, err)
	}
	if releaseAt := profile.ReleaseAt(); releaseAt != nil && s.now().Before(*releaseAt) {
		return AdmitCard{}, &AdmitCardNotReleasedError{Union: profile.Name, ReleaseAt: *releaseAt}
	}
	if !domain.IsFeeExempt(union) && !reg.PaymentStatus {
		return AdmitCard{}, ErrPaymentRequired
	}

	return AdmitCard{
		Registration:     reg,
		ExamTitle:        s.catalog.Exam.Title,
		GateEntryMinutes: s.catalog.Exam.GateEntryMinutes,
		Issuer:           profile.Issuer,
		PhotoURL:         s.viewURL(ctx, reg, domain.DocumentPhoto),
		SignatureURL:     s.viewURL(ctx, reg, domain.DocumentSignature),
		Instructions:     s.catalog.Instructions,
	}, nil
}

func (s *admitCardService) viewURL(ctx context.Context, reg Registration, kind domain.DocumentKind) string {
	ref := reg.Documents[kind]
	if ref == "" {
		return ""
	}
	view, err := s.documents.ViewURL(ctx, ref)
	if err != nil {
		s.logger(ctx, "admit_card.view_url_failed", map[string]any{
			"applicationNumber": reg.ApplicationNumber,
			"kind":              string(kind),
			"error":             err.Error(),
		})
		return ""
	}
	return view.URL
}

func (s *admitCardService) dispatch(ctx context.Context, card AdmitCard) error {
	reg := card.Registration
	if s.mailer == nil {
		s.metrics.IncAdmitCardEmail("disabled")
		return ErrAdmitCardEmailUnavailable
	}
	job := jobs.AdmitCardEmail{
		JobID:             newULID(s.now()),
		ApplicationNumber: reg.ApplicationNumber,
		Email:             reg.PersonalInfo.Email,
		Name:              reg.PersonalInfo.Name,
		Union:             reg.PersonalInfo.Union.DisplayName(),
		ExamCenter:        reg.ExamCenter,
		ExamShift:         reg.ExamShift,
		AdmitCardURL:      s.cardURL(reg.ApplicationNumber),
		QueuedAt:          s.now(),
	}
	messageID, err := s.mailer.PublishAdmitCardEmail(ctx, job)
	if err != nil {
		s.metrics.IncAdmitCardEmail("error")
		s.logger(ctx, "admit_card.email_failed", map[string]any{
			"applicationNumber": reg.ApplicationNumber,
			"error":             err.Error(),
		})
		return fmt.Errorf("%w: %w", ErrAdmitCardEmailUnavailable, err)
	}
	s.metrics.IncAdmitCardEmail("queued")
	s.logger(ctx, "admit_card.email_queued", map[string]any{
		"applicationNumber": reg.ApplicationNumber,
		"jobId":             job.JobID,
		"messageId":         messageID,
	})
	return nil
}

func (s *admitCardService) cardURL(appNo string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/api/admit-card/view?applicationNumber=" + url.QueryEscape(appNo)
}
