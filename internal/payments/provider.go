// Package payments talks to payment service providers. Razorpay is the
// default; Stripe is available for card payments in other currencies.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending means the provider has not captured the payment yet.
	StatusPending Status = "pending"
	// StatusSucceeded means the payment is captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the provider gave up on the payment.
	StatusFailed Status = "failed"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidSignature is returned when a checkout signature does not verify.
	ErrInvalidSignature = errors.New("payments: invalid payment signature")
	// ErrPaymentNotCaptured is returned when the provider has no captured payment for an order.
	ErrPaymentNotCaptured = errors.New("payments: payment not captured")
)

// ProviderError wraps a failed provider call. Status is the HTTP status the
// provider answered with, zero for transport failures.
type ProviderError struct {
	Provider string
	Op       string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Provider, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CreateOrderRequest opens a provider order for one application fee.
type CreateOrderRequest struct {
	// Amount is in the currency's minor unit (paise for INR).
	Amount         int64
	Currency       string
	Receipt        string
	Notes          map[string]string
	IdempotencyKey string
}

// Order is the provider order returned to the checkout client.
type Order struct {
	ID       string
	Provider string
	Amount   int64
	Currency string
	Receipt  string
	// KeyID is the public key the checkout widget needs.
	KeyID string
	// ClientSecret is set by providers that confirm on the client (Stripe).
	ClientSecret string
	CreatedAt    time.Time
}

// VerifyRequest carries what the checkout widget returned.
type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

// LookupRequest asks the provider for the state of an order.
type LookupRequest struct {
	OrderID string
}

// PaymentDetails normalises provider payment fields.
type PaymentDetails struct {
	Provider   string
	OrderID    string
	PaymentID  string
	Status     Status
	Amount     int64
	Currency   string
	CapturedAt *time.Time
}

// Provider is implemented by each payment service provider adapter.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	// Verify checks a completed checkout. It returns ErrInvalidSignature when
	// the proof does not match the order.
	Verify(ctx context.Context, req VerifyRequest) (PaymentDetails, error)
	LookupOrder(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when nothing else matches.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	if _, ok := registered[ProviderRazorpay]; ok {
		m.defaultProvider = ProviderRazorpay
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if providerKey, ok := m.currencyRoutes[currency]; ok && currency != "" {
		provider := strings.TrimSpace(strings.ToLower(providerKey))
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateOrder delegates to the resolved provider and stamps its name.
func (m *Manager) CreateOrder(ctx context.Context, paymentCtx PaymentContext, req CreateOrderRequest) (Order, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Order{}, err
	}
	order, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return Order{}, err
	}
	order.Provider = key
	return order, nil
}

// Verify delegates to the resolved provider.
func (m *Manager) Verify(ctx context.Context, paymentCtx PaymentContext, req VerifyRequest) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Verify(ctx, req)
}

// LookupOrder delegates to the resolved provider.
func (m *Manager) LookupOrder(ctx context.Context, paymentCtx PaymentContext, req LookupRequest) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupOrder(ctx, req)
}
