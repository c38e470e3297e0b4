// Package config assembles the portal's runtime configuration from a .env
// file, the process environment, explicit overrides and Secret Manager.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	envPrefix = "PORTAL_"

	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultStoreDriver          = StoreFirestore
	defaultPostgresMaxOpen      = 10
	defaultPostgresMaxIdle      = 5
	defaultPostgresLifetime     = 30 * time.Minute
	defaultSignedURLTTL         = 10 * time.Minute
	defaultEmailTopic           = "admit-card-email"
	defaultPaymentProvider      = "razorpay"
	defaultCurrency             = "INR"
	defaultRazorpayBaseURL      = "https://api.razorpay.com/v1"
	defaultReconcileAfter       = 30 * time.Minute
	defaultAdminTokenTTL        = 8 * time.Hour
	defaultRegisterPerMinute    = 20
	defaultEmailPerMinute       = 10
	defaultGeneralPerMinute     = 120
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultWebhookNonceTTL      = 24 * time.Hour
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultIdempotencyBackend   = "memory"
)

// Store drivers accepted by Store.Driver.
const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Firestore   FirestoreConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Payments    PaymentsConfig
	Admin       AdminConfig
	Catalog     CatalogConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// PublicBaseURL prefixes links to the printable admit card.
	PublicBaseURL string
}

// StoreConfig selects the registration store implementation.
type StoreConfig struct {
	Driver string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PostgresConfig configures the relational store.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig points at the idempotency cache.
type RedisConfig struct {
	URL string
}

// StorageConfig names the bucket holding uploaded documents.
type StorageConfig struct {
	DocumentsBucket string
	SignedURLTTL    time.Duration
	SignerEmail     string
	// SignerKeyFile is a service account JSON key used to sign view URLs
	// locally. Without it, signing goes through the IAM credentials API.
	SignerKeyFile string
}

// PubSubConfig configures the admit card email job topic.
type PubSubConfig struct {
	ProjectID      string
	AdmitCardTopic string
	DisablePublish bool
}

// PaymentsConfig collects payment provider settings and credentials.
type PaymentsConfig struct {
	Provider              string
	Currency              string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	StripeAPIKey          string
	StripePublishableKey  string
	ReconcileAfter        time.Duration
}

// AdminConfig holds the admin credentials and session token settings.
type AdminConfig struct {
	Username    string
	Password    string
	TokenSecret string
	TokenTTL    time.Duration
}

// CatalogConfig optionally replaces the embedded exam catalogue.
type CatalogConfig struct {
	Path string
}

// RateLimitConfig controls per-IP request throttling.
type RateLimitConfig struct {
	RegisterPerMinute int
	EmailPerMinute    int
	GeneralPerMinute  int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment     string
	OIDC            OIDCConfig
	WebhookNonceTTL time.Duration
}

// OIDCConfig controls Google-signed token verification on internal endpoints.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
	Backend          string
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func defaultOptions() loaderOptions {
	return loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
}

// WithEnvFile overrides the .env file path. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that win over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv stops Load from reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Payments.RazorpayKeySecret")
// that must resolve to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets makes Load panic instead of returning MissingSecretsError.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load combines defaults, the .env file, the process environment, explicit
// overrides and secret references into a validated Config.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.secret == nil {
		options.secret = SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		})
	}

	values, err := mergedValues(options)
	if err != nil {
		return Config{}, err
	}
	env := envReader{values: values}

	cfg := Config{
		Server: ServerConfig{
			Port:          env.str("SERVER_PORT", defaultPort),
			PublicBaseURL: env.str("SERVER_PUBLIC_BASE_URL", ""),
			ReadTimeout:   env.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:  env.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:   env.duration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(env.str("STORE_DRIVER", defaultStoreDriver)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			DSN:             env.str("POSTGRES_DSN", ""),
			MaxOpenConns:    env.integer("POSTGRES_MAX_OPEN_CONNS", defaultPostgresMaxOpen),
			MaxIdleConns:    env.integer("POSTGRES_MAX_IDLE_CONNS", defaultPostgresMaxIdle),
			ConnMaxLifetime: env.duration("POSTGRES_CONN_MAX_LIFETIME", defaultPostgresLifetime),
		},
		Redis: RedisConfig{
			URL: env.str("REDIS_URL", ""),
		},
		Storage: StorageConfig{
			DocumentsBucket: env.str("STORAGE_DOCUMENTS_BUCKET", ""),
			SignedURLTTL:    env.duration("STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			SignerEmail:     env.str("STORAGE_SIGNER_EMAIL", ""),
			SignerKeyFile:   env.str("STORAGE_SIGNER_KEY_FILE", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:      env.str("PUBSUB_PROJECT_ID", ""),
			AdmitCardTopic: env.str("PUBSUB_ADMIT_CARD_TOPIC", defaultEmailTopic),
			DisablePublish: env.boolean("PUBSUB_DISABLE_PUBLISH", false),
		},
		Payments: PaymentsConfig{
			Provider:              strings.ToLower(env.str("PAYMENTS_PROVIDER", defaultPaymentProvider)),
			Currency:              strings.ToUpper(env.str("PAYMENTS_CURRENCY", defaultCurrency)),
			RazorpayKeyID:         env.str("PAYMENTS_RAZORPAY_KEY_ID", ""),
			RazorpayKeySecret:     env.str("PAYMENTS_RAZORPAY_KEY_SECRET", ""),
			RazorpayWebhookSecret: env.str("PAYMENTS_RAZORPAY_WEBHOOK_SECRET", ""),
			RazorpayBaseURL:       env.str("PAYMENTS_RAZORPAY_BASE_URL", defaultRazorpayBaseURL),
			StripeAPIKey:          env.str("PAYMENTS_STRIPE_API_KEY", ""),
			StripePublishableKey:  env.str("PAYMENTS_STRIPE_PUBLISHABLE_KEY", ""),
			ReconcileAfter:        env.duration("PAYMENTS_RECONCILE_AFTER", defaultReconcileAfter),
		},
		Admin: AdminConfig{
			Username:    env.str("ADMIN_USERNAME", ""),
			Password:    env.str("ADMIN_PASSWORD", ""),
			TokenSecret: env.str("ADMIN_TOKEN_SECRET", ""),
			TokenTTL:    env.duration("ADMIN_TOKEN_TTL", defaultAdminTokenTTL),
		},
		Catalog: CatalogConfig{
			Path: env.str("CATALOG_PATH", ""),
		},
		RateLimits: RateLimitConfig{
			RegisterPerMinute: env.integer("RATELIMIT_REGISTER_PER_MIN", defaultRegisterPerMinute),
			EmailPerMinute:    env.integer("RATELIMIT_EMAIL_PER_MIN", defaultEmailPerMinute),
			GeneralPerMinute:  env.integer("RATELIMIT_GENERAL_PER_MIN", defaultGeneralPerMinute),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   env.str("SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  env.str("SECURITY_OIDC_AUDIENCE", ""),
				Audiences: env.keyValues("SECURITY_OIDC_AUDIENCES"),
				Issuers:   env.list("SECURITY_OIDC_ISSUERS"),
			},
			WebhookNonceTTL: env.duration("SECURITY_WEBHOOK_NONCE_TTL", defaultWebhookNonceTTL),
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.integer("IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
			Backend:          strings.ToLower(env.str("IDEMPOTENCY_BACKEND", defaultIdempotencyBackend)),
		},
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Security.Environment]
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.RazorpayKeySecret", &cfg.Payments.RazorpayKeySecret},
		{"Payments.RazorpayWebhookSecret", &cfg.Payments.RazorpayWebhookSecret},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Admin.Password", &cfg.Admin.Password},
		{"Admin.TokenSecret", &cfg.Admin.TokenSecret},
		{"Postgres.DSN", &cfg.Postgres.DSN},
		{"Redis.URL", &cfg.Redis.URL},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	require := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	switch cfg.Store.Driver {
	case StoreFirestore:
		require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	case StorePostgres:
		require(cfg.Postgres.DSN != "", "Postgres.DSN")
	case StoreMemory:
	default:
		invalid = append(invalid, "Store.Driver")
	}
	require(cfg.Admin.Username != "", "Admin.Username")
	require(cfg.Admin.Password != "", "Admin.Password")
	require(cfg.Admin.TokenSecret == "" || len(cfg.Admin.TokenSecret) >= 32, "Admin.TokenSecret")
	switch cfg.Payments.Provider {
	case "razorpay", "stripe", "none":
	default:
		invalid = append(invalid, "Payments.Provider")
	}
	require(len(cfg.Payments.Currency) == 3, "Payments.Currency")
	require(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	require(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")
	switch cfg.Idempotency.Backend {
	case "memory", "firestore":
	case "redis":
		require(cfg.Redis.URL != "", "Redis.URL")
	default:
		invalid = append(invalid, "Idempotency.Backend")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
