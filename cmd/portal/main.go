package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bobbygour30/admitcard/internal/admitcard"
	"github.com/bobbygour30/admitcard/internal/di"
	"github.com/bobbygour30/admitcard/internal/payments"
	"github.com/bobbygour30/admitcard/internal/platform/auth"
	"github.com/bobbygour30/admitcard/internal/platform/config"
	pfirestore "github.com/bobbygour30/admitcard/internal/platform/firestore"
	"github.com/bobbygour30/admitcard/internal/platform/idempotency"
	"github.com/bobbygour30/admitcard/internal/platform/jobs"
	"github.com/bobbygour30/admitcard/internal/platform/metrics"
	"github.com/bobbygour30/admitcard/internal/platform/observability"
	"github.com/bobbygour30/admitcard/internal/platform/postgres"
	platformredis "github.com/bobbygour30/admitcard/internal/platform/redis"
	"github.com/bobbygour30/admitcard/internal/platform/secrets"
	platformstorage "github.com/bobbygour30/admitcard/internal/platform/storage"
	"github.com/bobbygour30/admitcard/internal/repositories"
	firestoreRepo "github.com/bobbygour30/admitcard/internal/repositories/firestore"
	"github.com/bobbygour30/admitcard/internal/repositories/memory"
	postgresRepo "github.com/bobbygour30/admitcard/internal/repositories/postgres"
	"github.com/bobbygour30/admitcard/internal/services"
)

const webhookSecretName = "razorpay"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("portal")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	infra := di.Infrastructure{
		Logger:  logger,
		Metrics: metrics.New(),
		Build:   buildInfoFromEnv(envValues, cfg, startedAt),
	}
	infra.Checks = append(infra.Checks, secretManagerCheck(fetcher))

	var firestoreProvider *pfirestore.Provider
	if cfg.Store.Driver == config.StoreFirestore || cfg.Idempotency.Backend == "firestore" {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
	}

	registry, err := openRegistry(ctx, cfg, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise registration store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	infra.Registry = registry

	documents, closeDocuments, err := openDocuments(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise document store", zap.Error(err))
	}
	defer closeDocuments()
	if documents == nil {
		logger.Warn("storage: no documents bucket configured; keeping uploads in memory")
		infra.Documents = platformstorage.NewMemoryDocuments()
	} else {
		infra.Documents = documents
		infra.Checks = append(infra.Checks, repositories.DependencyCheck{Name: "storage", Optional: true, Check: documents.Ping})
	}

	publisher, closePublisher, err := openPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise pubsub publisher", zap.Error(err))
	}
	defer closePublisher()
	if publisher != nil {
		infra.Mailer = publisher
	} else {
		logger.Warn("pubsub: admit card emails disabled")
	}

	gateway, err := newPaymentGateway(cfg, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}
	if gateway != nil {
		infra.Gateway = gateway
	}

	renderer, err := admitcard.NewRenderer()
	if err != nil {
		logger.Fatal("failed to initialise admit card renderer", zap.Error(err))
	}
	infra.Renderer = renderer

	idemStore, redisClient, err := openIdempotencyStore(ctx, cfg, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		infra.Checks = append(infra.Checks, repositories.DependencyCheck{Name: "redis", Optional: true, Check: redisClient.Ping})
	}
	infra.Idempotency = idemStore

	container, err := di.NewContainer(ctx, cfg, infra)
	if err != nil {
		logger.Fatal("failed to initialise container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		container.RunIdempotencyCleanup(cleanupCtx)
	}()

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	router := container.Router(di.RouterOptions{
		Middlewares: []func(http.Handler) http.Handler{
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		},
		WebhookMiddlewares:  []func(http.Handler) http.Handler{buildHMACMiddleware(logger.Named("auth"), cfg)},
		InternalMiddlewares: []func(http.Handler) http.Handler{buildOIDCMiddleware(logger.Named("auth"), cfg)},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("store", cfg.Store.Driver))
	go func() {
		serverLogger.Info("admit card portal listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	<-cleanupDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openRegistry(ctx context.Context, cfg config.Config, provider *pfirestore.Provider) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case config.StoreFirestore:
		return firestoreRepo.NewRegistry(provider)
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		reg, err := postgresRepo.NewRegistry(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := reg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return reg, nil
	case config.StoreMemory:
		return memory.NewRegistry(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openDocuments(ctx context.Context, cfg config.Config) (*platformstorage.GCSDocuments, func(), error) {
	noop := func() {}
	if strings.TrimSpace(cfg.Storage.DocumentsBucket) == "" {
		return nil, noop, nil
	}
	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return nil, noop, err
	}
	opts := []platformstorage.GCSOption{platformstorage.WithViewTTL(cfg.Storage.SignedURLTTL)}
	if path := strings.TrimSpace(cfg.Storage.SignerKeyFile); path != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromFile(path)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		opts = append(opts, platformstorage.WithSigner(signer))
	} else if email := strings.TrimSpace(cfg.Storage.SignerEmail); email != "" {
		opts = append(opts, platformstorage.WithSignerEmail(email))
	}
	docs, err := platformstorage.NewGCSDocuments(client, cfg.Storage.DocumentsBucket, opts...)
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}
	return docs, func() { _ = client.Close() }, nil
}

func openPublisher(ctx context.Context, cfg config.Config) (*jobs.AdmitCardEmailPublisher, func(), error) {
	noop := func() {}
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if cfg.PubSub.DisablePublish || projectID == "" {
		return nil, noop, nil
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, noop, err
	}
	publisher, err := jobs.NewAdmitCardEmailPublisher(client.Topic(cfg.PubSub.AdmitCardTopic))
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}
	return publisher, func() {
		publisher.Stop()
		_ = client.Close()
	}, nil
}

func openIdempotencyStore(ctx context.Context, cfg config.Config, provider *pfirestore.Provider) (idempotency.Store, *platformredis.Client, error) {
	switch cfg.Idempotency.Backend {
	case "redis":
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, errors.New("redis url is required for the redis idempotency backend")
		}
		return idempotency.NewRedisStore(client.Client, "portal:idempotency:"), client, nil
	case "firestore":
		return idempotency.NewFirestoreStore(provider, "idempotency_keys"), nil, nil
	default:
		return idempotency.NewMemoryStore(), nil, nil
	}
}

func newPaymentGateway(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	eventLogger := observability.NewEventLogger(logger)
	var provider payments.Provider
	switch cfg.Payments.Provider {
	case payments.ProviderRazorpay:
		p, err := payments.NewRazorpayProvider(payments.RazorpayConfig{
			KeyID:     cfg.Payments.RazorpayKeyID,
			KeySecret: cfg.Payments.RazorpayKeySecret,
			BaseURL:   cfg.Payments.RazorpayBaseURL,
			Logger:    payments.RazorpayLogger(eventLogger),
			Clock:     time.Now,
		})
		if err != nil {
			return nil, err
		}
		provider = p
	case payments.ProviderStripe:
		p, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:         cfg.Payments.StripeAPIKey,
			PublishableKey: cfg.Payments.StripePublishableKey,
			Logger:         payments.StripeLogger(eventLogger),
			Clock:          time.Now,
		})
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		logger.Warn("payments disabled; fee collection endpoints will answer 503")
		return nil, nil
	}
	return payments.NewManager(
		map[string]payments.Provider{cfg.Payments.Provider: provider},
		payments.WithDefaultProvider(cfg.Payments.Provider),
	)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["PORTAL_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["PORTAL_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const secretHealthReference = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:     "secretManager",
		Timeout:  time.Second,
		Optional: true,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secrets := auth.StaticSecrets{}
	if secret := strings.TrimSpace(cfg.Payments.RazorpayWebhookSecret); secret != "" {
		secrets[webhookSecretName] = secret
	} else {
		logger.Warn("auth: razorpay webhook secret not configured; webhooks will be rejected")
	}
	validator := auth.NewHMACValidator(secrets, auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(observability.NewPrintfAdapter(logger)),
		auth.WithHMACNonceTTL(cfg.Security.WebhookNonceTTL),
	)
	return validator.RequireHMAC(webhookSecretName)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("PORTAL_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("PORTAL_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("PORTAL_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("PORTAL_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projects := parseKeyValueList(lookup("PORTAL_SECRET_PROJECT_IDS")); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := parseKeyValueList(lookup("PORTAL_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("PORTAL_GOOGLE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets the selected payment provider cannot run without.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Admin.Password"}
	switch strings.ToLower(strings.TrimSpace(env["PORTAL_PAYMENTS_PROVIDER"])) {
	case "", payments.ProviderRazorpay:
		required = append(required, "Payments.RazorpayKeySecret", "Payments.RazorpayWebhookSecret")
	case payments.ProviderStripe:
		required = append(required, "Payments.StripeAPIKey")
	}
	return required
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
