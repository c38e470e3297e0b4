package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ProviderStripe is the manager key of the Stripe adapter.
const ProviderStripe = "stripe"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey         string
	PublishableKey string
	AccountID      string
	Backends       *stripe.Backends
	Logger         StripeLogger
	Clock          func() time.Time

	intents stripePaymentIntentAPI
}

// StripeProvider maps portal orders onto Stripe PaymentIntents. The intent
// id doubles as the order id, and verification asks Stripe for the intent
// state since Stripe checkouts carry no client-side signature.
type StripeProvider struct {
	intents        stripePaymentIntentAPI
	publishableKey string
	account        string
	clock          func() time.Time
	logger         StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	intents := cfg.intents
	if intents == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		intents:        intents,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		account:        strings.TrimSpace(cfg.AccountID),
		clock:          func() time.Time { return clock().UTC() },
		logger:         logger,
	}, nil
}

// CreateOrder creates a PaymentIntent for the fee.
func (p *StripeProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if req.Amount <= 0 {
		return Order{}, errors.New("stripe: amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Receipt != "" {
		params.Description = stripe.String(req.Receipt)
		params.AddMetadata("receipt", req.Receipt)
	}
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Order{}, &ProviderError{Provider: ProviderStripe, Op: "create payment intent", Status: stripeStatus(err), Err: err}
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})
	created := p.clock()
	if intent.Created > 0 {
		created = time.Unix(intent.Created, 0).UTC()
	}
	return Order{
		ID:           intent.ID,
		Provider:     ProviderStripe,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Receipt:      req.Receipt,
		KeyID:        p.publishableKey,
		ClientSecret: intent.ClientSecret,
		CreatedAt:    created,
	}, nil
}

// Verify accepts the checkout only when Stripe reports the intent succeeded.
func (p *StripeProvider) Verify(ctx context.Context, req VerifyRequest) (PaymentDetails, error) {
	details, err := p.LookupOrder(ctx, LookupRequest{OrderID: req.OrderID})
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.Status != StatusSucceeded {
		return details, ErrPaymentNotCaptured
	}
	return details, nil
}

// LookupOrder retrieves the PaymentIntent behind an order.
func (p *StripeProvider) LookupOrder(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return PaymentDetails{}, errors.New("stripe: order id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.intents.Get(req.OrderID, params)
	if err != nil {
		return PaymentDetails{}, &ProviderError{Provider: ProviderStripe, Op: "lookup payment intent", Status: stripeStatus(err), Err: err}
	}
	return stripePaymentDetails(intent), nil
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}
	details := PaymentDetails{
		Provider: ProviderStripe,
		OrderID:  intent.ID,
		Status:   StatusPending,
		Amount:   intent.Amount,
		Currency: strings.ToUpper(string(intent.Currency)),
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		details.Status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		details.Status = StatusFailed
	}
	details.PaymentID = intent.ID
	if charge := intent.LatestCharge; charge != nil {
		if charge.ID != "" {
			details.PaymentID = charge.ID
		}
		if charge.Paid || charge.Captured {
			at := time.Unix(charge.Created, 0).UTC()
			details.CapturedAt = &at
		}
	}
	return details
}

func stripeStatus(err error) int {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode
	}
	return 0
}
