package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	order   Order
	payment PaymentDetails
	err     error
}

func (f *fakeProvider) CreateOrder(context.Context, CreateOrderRequest) (Order, error) {
	f.lastOp = "create"
	return f.order, f.err
}

func (f *fakeProvider) Verify(context.Context, VerifyRequest) (PaymentDetails, error) {
	f.lastOp = "verify"
	return f.payment, f.err
}

func (f *fakeProvider) LookupOrder(context.Context, LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func TestManagerCreateOrderUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{order: Order{ID: "order_rzp"}}
	stripe := &fakeProvider{order: Order{ID: "pi_stripe"}}

	mgr, err := NewManager(map[string]Provider{ProviderRazorpay: razorpay, ProviderStripe: stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	order, err := mgr.CreateOrder(ctx, PaymentContext{PreferredProvider: "Stripe"}, CreateOrderRequest{Amount: 100, Currency: "INR"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Provider != ProviderStripe || order.ID != "pi_stripe" {
		t.Fatalf("unexpected order %+v", order)
	}
	if razorpay.lastOp != "" {
		t.Fatalf("expected razorpay provider to remain unused")
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{}
	stripe := &fakeProvider{order: Order{ID: "pi_usd"}}

	mgr, err := NewManager(
		map[string]Provider{ProviderRazorpay: razorpay, ProviderStripe: stripe},
		WithCurrencyRoutes(map[string]string{"usd": ProviderStripe}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	order, err := mgr.CreateOrder(ctx, PaymentContext{Currency: "USD"}, CreateOrderRequest{Amount: 100, Currency: "USD"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Provider != ProviderStripe {
		t.Fatalf("expected stripe, got %q", order.Provider)
	}
}

func TestManagerDefaultsToRazorpay(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{payment: PaymentDetails{Provider: ProviderRazorpay, Status: StatusSucceeded}}
	mgr, err := NewManager(map[string]Provider{ProviderRazorpay: razorpay, ProviderStripe: &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	details, err := mgr.LookupOrder(ctx, PaymentContext{Currency: "INR"}, LookupRequest{OrderID: "order_1"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if razorpay.lastOp != "lookup" || details.Status != StatusSucceeded {
		t.Fatalf("expected razorpay lookup, got %q %+v", razorpay.lastOp, details)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[string]Provider{ProviderStripe: &fakeProvider{}, "paypal": &fakeProvider{}}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.Verify(ctx, PaymentContext{PreferredProvider: "unknown"}, VerifyRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if _, err := mgr.Verify(ctx, PaymentContext{}, VerifyRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider without default, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
