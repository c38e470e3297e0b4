// Package secrets resolves secret:// references for the portal configuration
// against Google Secret Manager, with an in-process cache and a local dotenv
// style fallback file for development.
package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/bobbygour30/admitcard/internal/platform/secrets"
	latestVersion       = "latest"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references. It is safe for concurrent use.
type Fetcher struct {
	client     secretManagerClient
	clientOpts []option.ClientOption
	ownsClient bool
	logger     *zap.Logger

	env         string
	project     string
	projectMap  map[string]string
	versionPins map[string]string
	cacheTTL    time.Duration
	now         func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cached

	latency metric.Float64Histogram
	hits    metric.Int64Counter
}

type cached struct {
	value     string
	canonical string
	storedAt  time.Time
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvironment selects the key used with WithProjectMap.
func WithEnvironment(env string) Option {
	return func(f *Fetcher) {
		if env = strings.ToLower(strings.TrimSpace(env)); env != "" {
			f.env = env
		}
	}
}

// WithDefaultProject sets the project used when no environment mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(f *Fetcher) {
		f.project = strings.TrimSpace(projectID)
	}
}

// WithProjectMap maps environments to Secret Manager projects.
func WithProjectMap(m map[string]string) Option {
	return func(f *Fetcher) {
		f.projectMap = cloneMap(m)
	}
}

// WithVersionPins pins canonical references (optionally "env:secret://name") to versions.
func WithVersionPins(pins map[string]string) Option {
	return func(f *Fetcher) {
		f.versionPins = cloneMap(pins)
	}
}

// WithFallbackFile overrides the local fallback file. An empty path disables it.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) {
		f.fallbackPath = strings.TrimSpace(path)
	}
}

// WithCacheTTL bounds how long resolved values are reused. Zero caches forever.
func WithCacheTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl >= 0 {
			f.cacheTTL = ttl
		}
	}
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.registerMetrics(m)
		}
	}
}

// WithSecretManagerClient injects a client, mostly for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(f *Fetcher) {
		f.clientOpts = append(f.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not an error:
// the fetcher then serves only the fallback file.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		projectMap:   map[string]string{},
		versionPins:  map[string]string{},
		fallbackPath: defaultFallbackPath,
		now:          time.Now,
		cache:        make(map[string]cached),
	}
	if env := strings.ToLower(strings.TrimSpace(os.Getenv("PORTAL_SECURITY_ENVIRONMENT"))); env != "" {
		f.env = env
	}
	f.registerMetrics(otel.GetMeterProvider().Meter(meterName))
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.client == nil {
		client, err := secretManagerClientFactory(ctx, f.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, serving fallback values only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

func (f *Fetcher) registerMetrics(m metric.Meter) {
	latency, err := m.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"))
	if err == nil {
		f.latency = latency
	}
	hits, err := m.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"))
	if err == nil {
		f.hits = hits
	}
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind ref, consulting the cache, Secret Manager
// and the fallback file in that order. Only permission, auth and availability
// errors from Secret Manager fall through to the fallback file.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := f.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	version := f.version(parsed)
	key := parsed.canonical + "#" + version

	if value, ok := f.cached(key); ok {
		if f.hits != nil {
			f.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", mask(parsed.canonical))))
		}
		f.observe(ctx, start, "cache")
		return value, nil
	}

	if project := f.projectFor(parsed); project != "" && f.client != nil {
		value, err := f.fetchRemote(ctx, project, parsed.name, version)
		if err == nil {
			f.store(key, parsed.canonical, value)
			f.observe(ctx, start, "remote")
			return value, nil
		}
		if !fallbackEligible(err) {
			f.observe(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.canonical, err)
		}
		f.logger.Debug("secrets: using fallback file", zap.String("secret", mask(parsed.canonical)), zap.Error(err))
	}

	value, ok := f.lookupFallback(parsed.canonical, version)
	if !ok {
		f.observe(ctx, start, "error")
		return "", fmt.Errorf("secrets: no value for %s", parsed.canonical)
	}
	f.store(key, parsed.canonical, value)
	f.observe(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops cached values for ref so the next Resolve fetches again.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.cache {
		if entry.canonical == parsed.canonical {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if f.cacheTTL > 0 && f.now().Sub(entry.storedAt) > f.cacheTTL {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, canonical, value string) {
	f.mu.Lock()
	f.cache[key] = cached{value: value, canonical: canonical, storedAt: f.now()}
	f.mu.Unlock()
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	elapsed := f.now().Sub(start)
	f.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) fetchRemote(ctx context.Context, project, name, version string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) projectFor(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	if id := strings.TrimSpace(f.projectMap[f.env]); id != "" {
		return id
	}
	return f.project
}

func (f *Fetcher) version(ref reference) string {
	if ref.version != "" {
		return ref.version
	}
	for _, key := range []string{f.env + ":" + ref.canonical, ref.canonical} {
		if pin := strings.TrimSpace(f.versionPins[key]); pin != "" {
			return pin
		}
	}
	return latestVersion
}

func (f *Fetcher) lookupFallback(canonical, version string) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback file unreadable", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallback[canonical+"#"+version]; ok {
		return value, true
	}
	value, ok := f.fallback[canonical]
	return value, ok
}

// loadFallback reads NAME=VALUE lines where NAME is the bare secret name,
// e.g. razorpay_key_secret. NAME.vN pins the value to version N.
func (f *Fetcher) loadFallback() {
	f.fallback = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	raw, err := godotenv.Read(f.fallbackPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.fallbackErr = fmt.Errorf("secrets: read fallback %s: %w", f.fallbackPath, err)
		return
	}
	for key, value := range raw {
		name, version := key, latestVersion
		if idx := strings.LastIndex(key, ".v"); idx > 0 && idx+2 < len(key) {
			name, version = key[:idx], key[idx+2:]
		}
		canonical := "secret://" + name
		f.fallback[canonical+"#"+version] = value
		if version == latestVersion {
			f.fallback[canonical] = value
		}
	}
}

type reference struct {
	canonical string
	name      string
	version   string
	project   string
}

func parseReference(ref string) (reference, error) {
	ref = normalizeScheme(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	return reference{
		canonical: "secret://" + name,
		name:      name,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func normalizeScheme(ref string) string {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "sm://"); ok {
		return "secret://" + rest
	}
	return ref
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func mask(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:8])
}

func cloneMap(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
