package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobbygour30/admitcard/internal/admitcard"
	"github.com/bobbygour30/admitcard/internal/di"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/payments"
	"github.com/bobbygour30/admitcard/internal/platform/config"
	"github.com/bobbygour30/admitcard/internal/platform/storage"
	"github.com/bobbygour30/admitcard/internal/repositories/memory"
)

type fakeGateway struct {
	orders atomic.Int64
}

func (g *fakeGateway) CreateOrder(_ context.Context, _ payments.PaymentContext, req payments.CreateOrderRequest) (payments.Order, error) {
	id := fmt.Sprintf("order_%d", g.orders.Add(1))
	return payments.Order{ID: id, Provider: "razorpay", Amount: req.Amount, Currency: req.Currency, KeyID: "rzp_test"}, nil
}

func (*fakeGateway) Verify(_ context.Context, _ payments.PaymentContext, req payments.VerifyRequest) (payments.PaymentDetails, error) {
	if req.Signature != "sig-ok" {
		return payments.PaymentDetails{}, payments.ErrInvalidSignature
	}
	return payments.PaymentDetails{Provider: "razorpay", OrderID: req.OrderID, PaymentID: req.PaymentID, Status: payments.StatusSucceeded}, nil
}

func (*fakeGateway) LookupOrder(context.Context, payments.PaymentContext, payments.LookupRequest) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{Status: payments.StatusPending}, nil
}

type harness struct {
	baseURL string
	state   string
	dir     string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	renderer, err := admitcard.NewRenderer()
	require.NoError(t, err)
	cfg := config.Config{
		Server: config.ServerConfig{PublicBaseURL: "https://portal.example.com"},
		Store:  config.StoreConfig{Driver: config.StoreMemory},
		Admin: config.AdminConfig{
			Username:    "admin",
			Password:    "s3cret",
			TokenSecret: strings.Repeat("k", 32),
			TokenTTL:    time.Hour,
		},
		Payments:    config.PaymentsConfig{Provider: "razorpay", Currency: "INR", ReconcileAfter: time.Hour},
		Idempotency: config.IdempotencyConfig{Header: "Idempotency-Key", TTL: time.Hour, Backend: "memory"},
	}
	container, err := di.NewContainer(context.Background(), cfg, di.Infrastructure{
		Registry:  memory.NewRegistry(),
		Documents: storage.NewMemoryDocuments(),
		Gateway:   &fakeGateway{},
		Renderer:  renderer,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(container.Router(di.RouterOptions{}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	return harness{baseURL: srv.URL, state: filepath.Join(dir, "state.db"), dir: dir}
}

func (h harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand("test", WithIO(strings.NewReader(stdin), &out, &out))
	cmd.SetArgs(append([]string{"--base-url", h.baseURL, "--state", h.state, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h harness) writeForm(t *testing.T, union domain.Union) string {
	t.Helper()
	info := domain.PersonalInfo{
		Union:               union,
		Name:                "Asha Devi",
		FatherName:          "Ram Prasad",
		MotherName:          "Sita Devi",
		DOB:                 "1998-04-12",
		Gender:              "Female",
		Email:               "asha@example.com",
		Mobile:              "9876543210",
		Address:             "Ward 4, Patna",
		AadhaarNumber:       "123412341234",
		SelectedPosts:       []string{"Supervisor"},
		DistrictPreferences: []string{"Patna"},
		HigherEducation:     "Graduate",
		Percentage:          "72.5",
	}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	path := filepath.Join(h.dir, string(union)+"-form.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func (h harness) writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n fake"), 0o600))
	return path
}

func (h harness) imageFlags(t *testing.T) []string {
	return []string{
		"--photo", h.writeImage(t, "photo.png"),
		"--signature", h.writeImage(t, "signature.png"),
		"--qual-cert", h.writeImage(t, "qual.png"),
	}
}

func TestApplyFeeExemptUnion(t *testing.T) {
	h := newHarness(t)
	args := append([]string{"apply", "--form", h.writeForm(t, domain.UnionHarit), "--id-proof", h.writeImage(t, "id.png")}, h.imageFlags(t)...)

	out, err := h.run(t, "", args...)
	require.NoError(t, err, out)
	require.Contains(t, out, "Registered. Application number CBT")
	require.Contains(t, out, "DAV Public School")
	require.Contains(t, out, "Harit Union")
	require.NotContains(t, out, "Payment")

	out, err = h.run(t, "", "status")
	require.NoError(t, err, out)
	require.Contains(t, out, "not required")
}

func TestRegisterThenUploadAndPay(t *testing.T) {
	h := newHarness(t)
	args := append([]string{"register", "--form", h.writeForm(t, domain.UnionTirhut)}, h.imageFlags(t)...)
	out, err := h.run(t, "", args...)
	require.NoError(t, err, out)
	require.Contains(t, out, "Next: portalctl upload")

	// A bad signature fails verification; the retry with the right one succeeds.
	stdin := "pay_1\nsig-bad\ny\npay_1\nsig-ok\n"
	out, err = h.run(t, stdin, "upload", "--file", h.writeImage(t, "id.png"))
	require.NoError(t, err, out)
	require.Contains(t, out, "INR 500.00")
	require.Contains(t, out, "Payment verified")
	require.Contains(t, out, "Transaction")

	out, err = h.run(t, "", "status")
	require.NoError(t, err, out)
	require.Contains(t, out, "paid pay_1")
}

func TestUploadCancelledCheckout(t *testing.T) {
	h := newHarness(t)
	args := append([]string{"register", "--form", h.writeForm(t, domain.UnionTirhut)}, h.imageFlags(t)...)
	_, err := h.run(t, "", args...)
	require.NoError(t, err)

	out, err := h.run(t, "\nn\n", "upload", "--file", h.writeImage(t, "id.png"))
	require.Error(t, err)
	require.Contains(t, out, "Payment cancelled")
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	args := append([]string{"register", "--form", h.writeForm(t, domain.UnionHarit)}, h.imageFlags(t)...)
	_, err := h.run(t, "", args...)
	require.NoError(t, err)

	_, err = h.run(t, "", "admin", "list")
	require.ErrorIs(t, err, errNotLoggedIn)

	_, err = h.run(t, "", "admin", "login", "--password", "nope")
	require.Error(t, err)

	out, err := h.run(t, "s3cret\n", "admin", "login")
	require.NoError(t, err, out)
	require.Contains(t, out, "Logged in as admin")

	out, err = h.run(t, "", "admin", "list", "--search", "asha")
	require.NoError(t, err, out)
	require.Contains(t, out, "Asha Devi")
	require.Contains(t, out, "exempt")

	out, err = h.run(t, "", "admin", "list", "--search", "nobody")
	require.NoError(t, err, out)
	require.Contains(t, out, "No registrations found")

	out, err = h.run(t, "", "status")
	require.NoError(t, err)
	var appNo string
	for _, field := range strings.Fields(out) {
		if domain.ValidApplicationNumber(field) {
			appNo = field
		}
	}
	require.NotEmpty(t, appNo, out)

	out, err = h.run(t, "y\n", "admin", "delete", appNo)
	require.NoError(t, err, out)

	_, err = h.run(t, "", "status", appNo)
	require.Error(t, err)

	_, err = h.run(t, "", "admin", "logout")
	require.NoError(t, err)
	_, err = h.run(t, "", "admin", "list")
	require.ErrorIs(t, err, errNotLoggedIn)
}
