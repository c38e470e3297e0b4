package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bobbygour30/admitcard/internal/platform/auth"
)

// ProviderRazorpay is the manager key of the Razorpay adapter.
const ProviderRazorpay = "razorpay"

const (
	defaultRazorpayBaseURL = "https://api.razorpay.com/v1"
	razorpayTimeout        = 15 * time.Second
)

// RazorpayLogger receives provider events.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

// RazorpayConfig configures the Razorpay adapter.
type RazorpayConfig struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     RazorpayLogger
	Clock      func() time.Time
}

// RazorpayProvider calls the Razorpay Orders API over REST.
type RazorpayProvider struct {
	keyID   string
	secret  []byte
	baseURL string
	client  *http.Client
	logger  RazorpayLogger
	clock   func() time.Time
}

// NewRazorpayProvider validates cfg.
func NewRazorpayProvider(cfg RazorpayConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || secret == "" {
		return nil, errors.New("razorpay: key id and key secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: razorpayTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RazorpayProvider{
		keyID:   keyID,
		secret:  []byte(secret),
		baseURL: baseURL,
		client:  client,
		logger:  logger,
		clock:   func() time.Time { return clock().UTC() },
	}, nil
}

type razorpayOrder struct {
	ID         string            `json:"id"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  int64             `json:"created_at"`
}

type razorpayPayment struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayPaymentList struct {
	Count int               `json:"count"`
	Items []razorpayPayment `json:"items"`
}

type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens an order. Razorpay deduplicates nothing, so a retried
// call creates a second order; the caller stores every order it receives.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if req.Amount <= 0 {
		return Order{}, errors.New("razorpay: amount must be positive")
	}
	body := map[string]any{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}
	var out razorpayOrder
	if err := p.do(ctx, http.MethodPost, "/orders", body, &out); err != nil {
		return Order{}, &ProviderError{Provider: ProviderRazorpay, Op: "create order", Status: statusOf(err), Err: err}
	}
	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"orderId":  out.ID,
		"amount":   out.Amount,
		"currency": out.Currency,
		"receipt":  out.Receipt,
	})
	created := p.clock()
	if out.CreatedAt > 0 {
		created = time.Unix(out.CreatedAt, 0).UTC()
	}
	return Order{
		ID:        out.ID,
		Provider:  ProviderRazorpay,
		Amount:    out.Amount,
		Currency:  strings.ToUpper(out.Currency),
		Receipt:   out.Receipt,
		KeyID:     p.keyID,
		CreatedAt: created,
	}, nil
}

// Verify checks the checkout signature, the hex HMAC-SHA256 of
// "order_id|payment_id" under the key secret. No network call is made.
func (p *RazorpayProvider) Verify(ctx context.Context, req VerifyRequest) (PaymentDetails, error) {
	orderID := strings.TrimSpace(req.OrderID)
	paymentID := strings.TrimSpace(req.PaymentID)
	if orderID == "" || paymentID == "" || !auth.VerifyPayloadSignature(p.secret, []byte(orderID+"|"+paymentID), req.Signature) {
		p.logger(ctx, "payments.razorpay.signature.rejected", map[string]any{"orderId": orderID})
		return PaymentDetails{}, ErrInvalidSignature
	}
	at := p.clock()
	return PaymentDetails{
		Provider:   ProviderRazorpay,
		OrderID:    orderID,
		PaymentID:  paymentID,
		Status:     StatusSucceeded,
		CapturedAt: &at,
	}, nil
}

// LookupOrder lists the payments of an order and reports the captured one,
// if any. Otherwise the latest payment decides between pending and failed.
func (p *RazorpayProvider) LookupOrder(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return PaymentDetails{}, errors.New("razorpay: order id is required")
	}
	var list razorpayPaymentList
	if err := p.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID)+"/payments", nil, &list); err != nil {
		return PaymentDetails{}, &ProviderError{Provider: ProviderRazorpay, Op: "lookup order", Status: statusOf(err), Err: err}
	}
	details := PaymentDetails{Provider: ProviderRazorpay, OrderID: orderID, Status: StatusPending}
	var latest *razorpayPayment
	for i := range list.Items {
		payment := &list.Items[i]
		if payment.Status == "captured" {
			at := time.Unix(payment.CreatedAt, 0).UTC()
			details.PaymentID = payment.ID
			details.Status = StatusSucceeded
			details.Amount = payment.Amount
			details.Currency = strings.ToUpper(payment.Currency)
			details.CapturedAt = &at
			return details, nil
		}
		if latest == nil || payment.CreatedAt > latest.CreatedAt {
			latest = payment
		}
	}
	if latest != nil {
		details.PaymentID = latest.ID
		details.Amount = latest.Amount
		details.Currency = strings.ToUpper(latest.Currency)
		if latest.Status == "failed" {
			details.Status = StatusFailed
		}
	}
	return details, nil
}

type httpStatusError struct {
	status  int
	code    string
	message string
}

func (e *httpStatusError) Error() string {
	if e.code != "" {
		return e.code + ": " + e.message
	}
	return e.message
}

func statusOf(err error) int {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status
	}
	return 0
}

func (p *RazorpayProvider) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.keyID, string(p.secret))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr razorpayErrorBody
		_ = json.Unmarshal(data, &apiErr)
		message := apiErr.Error.Description
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &httpStatusError{status: resp.StatusCode, code: apiErr.Error.Code, message: message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
