// Package portalclient talks to the portal service over its JSON API. Client
// satisfies workflow.Backend and backs the admin gate with a remote verifier.
package portalclient

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

	"github.com/google/uuid"

	"github.com/bobbygour30/admitcard/internal/adminauth"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/portalapi"
)

const (
	defaultTimeout    = 20 * time.Second
	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 1 << 16
)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Error is a failed API call normalised to its status and display message.
type Error struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("portal: %s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("portal: %s (%d)", e.Message, e.Status)
}

// IsStatus reports whether err is an API error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Message returns the text a user should see for err.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Client is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   HTTPClient
	newKey func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 20s-timeout http.Client.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithIdempotencyKeys overrides how Idempotency-Key values are generated.
func WithIdempotencyKeys(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newKey = fn
		}
	}
}

// New builds a client for the service at baseURL, for example http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("portalclient: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("portalclient: parse base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("portalclient: unsupported scheme %q", parsed.Scheme)
	}
	c := &Client{
		base:   parsed,
		http:   &http.Client{Timeout: defaultTimeout},
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the service root the client was built with.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.base.String(), "/")
}

// Register submits the registration form.
func (c *Client) Register(ctx context.Context, req portalapi.RegisterRequest) (portalapi.RegisterResponse, error) {
	var resp portalapi.RegisterResponse
	err := c.call(ctx, http.MethodPost, "registration/register", nil, req, callOptions{idempotent: true}, &resp)
	return resp, err
}

// UploadDocument submits one supporting document.
func (c *Client) UploadDocument(ctx context.Context, req portalapi.UploadDocumentRequest) error {
	return c.call(ctx, http.MethodPost, "registration/upload-document", nil, req, callOptions{}, nil)
}

// FetchRegistration loads the candidate view of a registration.
func (c *Client) FetchRegistration(ctx context.Context, applicationNumber string) (portalapi.Registration, error) {
	var resp portalapi.Registration
	err := c.call(ctx, http.MethodGet, "registration/user", appNoQuery(applicationNumber), nil, callOptions{}, &resp)
	return resp, err
}

// CreateOrder asks the service for a payment order.
func (c *Client) CreateOrder(ctx context.Context, req portalapi.CreateOrderRequest) (portalapi.CreateOrderResponse, error) {
	var resp portalapi.CreateOrderResponse
	err := c.call(ctx, http.MethodPost, "payment/create-order", nil, req, callOptions{idempotent: true}, &resp)
	return resp, err
}

// VerifyPayment submits the signed checkout result.
func (c *Client) VerifyPayment(ctx context.Context, req portalapi.VerifyPaymentRequest) (portalapi.VerifyPaymentResponse, error) {
	var resp portalapi.VerifyPaymentResponse
	err := c.call(ctx, http.MethodPost, "payment/verify", nil, req, callOptions{}, &resp)
	return resp, err
}

// FetchAdmitCard loads the admit card. The service also dispatches the admit card email.
func (c *Client) FetchAdmitCard(ctx context.Context, applicationNumber string) (portalapi.AdmitCardResponse, error) {
	var resp portalapi.AdmitCardResponse
	err := c.call(ctx, http.MethodGet, "admit-card", appNoQuery(applicationNumber), nil, callOptions{}, &resp)
	return resp, err
}

// AdmitCardHTML downloads the printable admit card.
func (c *Client) AdmitCardHTML(ctx context.Context, applicationNumber string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "admit-card/view", appNoQuery(applicationNumber), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portalclient: admit-card/view: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}
	return io.ReadAll(resp.Body)
}

// SendAdmitCardEmail queues the admit card email again.
func (c *Client) SendAdmitCardEmail(ctx context.Context, applicationNumber string) (string, error) {
	var resp portalapi.MessageResponse
	body := portalapi.ApplicationNumberRequest{ApplicationNumber: applicationNumber}
	err := c.call(ctx, http.MethodPost, "admit-card/email", nil, body, callOptions{}, &resp)
	return resp.Message, err
}

// Login exchanges admin credentials for a session. A 401 is reported as
// adminauth.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, creds adminauth.Credentials) (adminauth.Session, error) {
	var resp portalapi.AdminLoginResponse
	body := portalapi.AdminCredentials{Username: creds.Username, Password: creds.Password}
	if err := c.call(ctx, http.MethodPost, "admin/login", nil, body, callOptions{}, &resp); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			return adminauth.Session{}, fmt.Errorf("%w: %w", adminauth.ErrInvalidCredentials, err)
		}
		return adminauth.Session{}, err
	}
	return adminauth.Session{
		Username:    creds.Username,
		Token:       resp.Token,
		ExpiresAt:   resp.ExpiresAt,
		Credentials: creds,
	}, nil
}

// Verifier returns an adminauth.Verifier that logs in against the service.
func (c *Client) Verifier() adminauth.Verifier {
	return adminauth.VerifierFunc(c.Login)
}

// ListRegistrations returns the admin listing, newest first.
func (c *Client) ListRegistrations(ctx context.Context, session adminauth.Session, search string, limit int) ([]portalapi.Registration, error) {
	body := portalapi.AdminListRequest{Search: strings.TrimSpace(search), Limit: limit}
	if session.Token == "" {
		body.Username = session.Credentials.Username
		body.Password = session.Credentials.Password
	}
	var resp []portalapi.Registration
	err := c.call(ctx, http.MethodPost, "registration/users", nil, body, callOptions{token: session.Token}, &resp)
	return resp, err
}

// DeleteRegistration removes a registration.
func (c *Client) DeleteRegistration(ctx context.Context, session adminauth.Session, applicationNumber string) (string, error) {
	var body any
	if session.Token == "" {
		body = portalapi.AdminCredentials{Username: session.Credentials.Username, Password: session.Credentials.Password}
	}
	var resp portalapi.MessageResponse
	endpoint := "registration/users/" + url.PathEscape(domain.NormalizeApplicationNumber(applicationNumber))
	err := c.call(ctx, http.MethodDelete, endpoint, nil, body, callOptions{token: session.Token}, &resp)
	return resp.Message, err
}

// DocumentURL returns a short-lived view URL for one stored document.
func (c *Client) DocumentURL(ctx context.Context, session adminauth.Session, applicationNumber string, kind domain.DocumentKind) (portalapi.DocumentURLResponse, error) {
	if session.Token == "" {
		return portalapi.DocumentURLResponse{}, errors.New("portalclient: document URLs need a session token")
	}
	endpoint := "admin/documents/" + url.PathEscape(domain.NormalizeApplicationNumber(applicationNumber)) + "/" + url.PathEscape(string(kind))
	var resp portalapi.DocumentURLResponse
	err := c.call(ctx, http.MethodGet, endpoint, nil, nil, callOptions{token: session.Token}, &resp)
	return resp, err
}

type callOptions struct {
	token      string
	idempotent bool
}

func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, payload any, opts callOptions, out any) error {
	var body io.Reader
	if payload != nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(payload); err != nil {
			return fmt.Errorf("portalclient: encode %s: %w", endpoint, err)
		}
		body = &buf
	}
	req, err := c.newRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.idempotent {
		req.Header.Set(idempotencyHeader, c.newKey())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portalclient: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("portalclient: decode %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	ref := &url.URL{Path: strings.TrimPrefix(portalapi.BasePath, "/") + "/" + strings.TrimPrefix(endpoint, "/")}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("portalclient: build request: %w", err)
	}
	return req, nil
}

func errorFromResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &Error{Status: resp.StatusCode}
	var payload portalapi.ErrorResponse
	if len(raw) > 0 && json.Unmarshal(raw, &payload) == nil {
		apiErr.Code = strings.TrimSpace(payload.Error)
		apiErr.Message = strings.TrimSpace(payload.Message)
		apiErr.RequestID = payload.RequestID
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func appNoQuery(applicationNumber string) url.Values {
	return url.Values{"applicationNumber": {domain.NormalizeApplicationNumber(applicationNumber)}}
}
