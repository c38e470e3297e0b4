package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bobbygour30/admitcard/internal/adminauth"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/handlers"
	"github.com/bobbygour30/admitcard/internal/platform/config"
	"github.com/bobbygour30/admitcard/internal/platform/idempotency"
	"github.com/bobbygour30/admitcard/internal/platform/metrics"
	"github.com/bobbygour30/admitcard/internal/platform/observability"
	"github.com/bobbygour30/admitcard/internal/repositories"
	"github.com/bobbygour30/admitcard/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Registrations services.RegistrationService
	Payments      services.PaymentService
	AdmitCards    services.AdmitCardService
	Admin         services.AdminService
	System        services.SystemService
}

// Infrastructure carries the backends built by the caller. Registry and
// Documents are required; the rest are optional.
type Infrastructure struct {
	Registry  repositories.Registry
	Documents services.DocumentStore
	// Gateway is nil when payments are disabled.
	Gateway  services.PaymentGateway
	Mailer   services.AdmitCardMailer
	Renderer services.AdmitCardRenderer
	// Idempotency defaults to an in-memory store.
	Idempotency idempotency.Store
	Metrics     *metrics.Metrics
	// Checks are extra readiness probes beyond the registry ping.
	Checks []repositories.DependencyCheck
	Logger *zap.Logger
	Build  services.BuildInfo
	Clock  func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Catalog      *domain.Catalog
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store
	Metrics      *metrics.Metrics

	logger *zap.Logger
	clock  func() time.Time
	build  services.BuildInfo
}

// NewContainer loads the catalogue, seeds the center and shift pools and
// builds every service.
func NewContainer(ctx context.Context, cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Documents == nil {
		return nil, errors.New("document store is required")
	}
	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	if infra.Metrics == nil {
		infra.Metrics = metrics.New()
	}
	if infra.Idempotency == nil {
		infra.Idempotency = idempotency.NewMemoryStore()
	}

	catalog, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	if err := infra.Registry.Pools().Seed(ctx, catalog.InitialCenters(), catalog.InitialShifts()); err != nil {
		return nil, fmt.Errorf("seed pools: %w", err)
	}

	svc, err := buildServices(cfg, catalog, infra, logger, clock)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Catalog:      catalog,
		Repositories: infra.Registry,
		Services:     svc,
		Idempotency:  infra.Idempotency,
		Metrics:      infra.Metrics,
		logger:       logger,
		clock:        clock,
		build:        infra.Build,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// RouterOptions adds the transport middlewares that depend on the deployment.
type RouterOptions struct {
	Middlewares         []func(http.Handler) http.Handler
	WebhookMiddlewares  []func(http.Handler) http.Handler
	InternalMiddlewares []func(http.Handler) http.Handler
}

// Router mounts every handler group on the /api router.
func (c *Container) Router(opts RouterOptions) http.Handler {
	cfg := c.Config
	perMinute := func(n int) handlers.RateLimit {
		return handlers.RateLimit{Limit: n, Window: time.Minute}
	}

	idem := idempotency.Middleware(c.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithClock(c.clock),
		idempotency.WithLogger(observability.NewPrintfAdapter(c.logger.Named("idempotency"))),
	)

	health := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(c.Services.System),
		handlers.WithHealthBuildInfo(c.build),
		handlers.WithHealthClock(c.clock),
	)
	registration := handlers.NewRegistrationHandlers(c.Services.Registrations, perMinute(cfg.RateLimits.RegisterPerMinute))
	paymentHandlers := handlers.NewPaymentHandlers(c.Services.Payments)
	admitCards := handlers.NewAdmitCardHandlers(c.Services.AdmitCards, perMinute(cfg.RateLimits.EmailPerMinute))
	admin := handlers.NewAdminHandlers(c.Services.Admin)
	webhooks := handlers.NewWebhookHandlers(c.Services.Payments)
	internal := handlers.NewInternalHandlers(c.Services.Payments, cfg.Payments.ReconcileAfter, reconcileBatch)

	middlewares := append([]func(http.Handler) http.Handler{c.Metrics.Middleware}, opts.Middlewares...)
	middlewares = append(middlewares, handlers.ClientRateLimit(perMinute(cfg.RateLimits.GeneralPerMinute), "general"))
	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(health),
		handlers.WithMetricsHandler(c.Metrics.Handler()),
		handlers.WithMutationMiddlewares(idem),
		handlers.WithRegistrationRoutes(func(r chi.Router) {
			registration.Routes(r)
			admin.RegistrationRoutes(r)
		}),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithAdmitCardRoutes(admitCards.Routes),
		handlers.WithAdminRoutes(admin.Routes),
		handlers.WithWebhookMiddlewares(opts.WebhookMiddlewares...),
		handlers.WithWebhookRoutes(webhooks.Routes),
		handlers.WithInternalMiddlewares(opts.InternalMiddlewares...),
		handlers.WithInternalRoutes(internal.Routes),
	)
}

// RunIdempotencyCleanup purges expired idempotency records until ctx ends.
func (c *Container) RunIdempotencyCleanup(ctx context.Context) {
	idempotency.RunCleanup(ctx, c.Idempotency,
		c.Config.Idempotency.CleanupInterval,
		c.Config.Idempotency.CleanupBatchSize,
		observability.NewPrintfAdapter(c.logger.Named("idempotency")))
}

const reconcileBatch = 50

func loadCatalog(cfg config.CatalogConfig) (*domain.Catalog, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return domain.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return domain.ParseCatalog(data)
}

func buildServices(cfg config.Config, catalog *domain.Catalog, infra Infrastructure, logger *zap.Logger, clock func() time.Time) (Services, error) {
	var svc Services
	reg := infra.Registry

	registrationSvc, err := services.NewRegistrationService(services.RegistrationServiceDeps{
		Registrations: reg.Registrations(),
		Documents:     infra.Documents,
		Catalog:       catalog,
		Metrics:       infra.Metrics,
		Clock:         clock,
		Logger:        observability.NewEventLogger(logger.Named("registration")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build registration service: %w", err)
	}
	svc.Registrations = registrationSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Registrations: reg.Registrations(),
		Orders:        reg.PaymentOrders(),
		Gateway:       infra.Gateway,
		Catalog:       catalog,
		Metrics:       infra.Metrics,
		Clock:         clock,
		Logger:        observability.NewEventLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	admitCardSvc, err := services.NewAdmitCardService(services.AdmitCardServiceDeps{
		Registrations: reg.Registrations(),
		Documents:     infra.Documents,
		Catalog:       catalog,
		Mailer:        infra.Mailer,
		Renderer:      infra.Renderer,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		Metrics:       infra.Metrics,
		Clock:         clock,
		Logger:        observability.NewEventLogger(logger.Named("admit_card")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build admit card service: %w", err)
	}
	svc.AdmitCards = admitCardSvc

	var tokens services.AdminTokens
	if secret := strings.TrimSpace(cfg.Admin.TokenSecret); secret != "" {
		issuer, err := adminauth.NewTokenIssuer(secret,
			adminauth.WithTokenTTL(cfg.Admin.TokenTTL),
			adminauth.WithTokenClock(clock),
		)
		if err != nil {
			return Services{}, fmt.Errorf("build admin token issuer: %w", err)
		}
		tokens = issuer
	}
	adminSvc, err := services.NewAdminService(services.AdminServiceDeps{
		Registrations: reg.Registrations(),
		Documents:     infra.Documents,
		Credentials:   adminauth.Credentials{Username: cfg.Admin.Username, Password: cfg.Admin.Password},
		Tokens:        tokens,
		Clock:         clock,
		Logger:        observability.NewEventLogger(logger.Named("admin")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build admin service: %w", err)
	}
	svc.Admin = adminSvc

	checks := append([]repositories.DependencyCheck{{
		Name:  "store",
		Check: reg.Ping,
	}}, infra.Checks...)
	healthRepo, err := repositories.NewDependencyHealthRepository(checks, clock)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Pools:            reg.Pools(),
		Clock:            clock,
		Build:            infra.Build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
