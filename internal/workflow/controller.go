// Package workflow drives a candidate from registration through document
// upload, the fee decision and payment to the admit card.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/registration"
)

// State is one step of the candidate flow.
type State int

const (
	StateStart State = iota
	StateRegistering
	StateDocumentsPending
	StatePaymentDecision
	StatePaymentPending
	StatePaymentConfirmed
	StatePaymentSkipped
	StateAdmitCardReady
)

var stateNames = map[State]string{
	StateStart:            "start",
	StateRegistering:      "registering",
	StateDocumentsPending: "documents_pending",
	StatePaymentDecision:  "payment_decision",
	StatePaymentPending:   "payment_pending",
	StatePaymentConfirmed: "payment_confirmed",
	StatePaymentSkipped:   "payment_skipped",
	StateAdmitCardReady:   "admit_card_ready",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrBusy is returned when another transition is still waiting on the backend.
	ErrBusy = errors.New("workflow: another step is in progress")
	// ErrStaleResult is returned when a call completes after the flow was abandoned.
	ErrStaleResult = errors.New("workflow: result discarded after the flow was abandoned")
	// ErrInvalidTransition is returned when an operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("workflow: operation not allowed in the current state")
	// ErrUnresolvedApplication means the application number could not be resolved; the flow is back at start.
	ErrUnresolvedApplication = errors.New("workflow: application number could not be resolved")
	// ErrUnionMismatch means the backend reported a different union than the one carried in the flow.
	ErrUnionMismatch = errors.New("workflow: union does not match the registration")
	// ErrCheckoutCancelled is returned by a Checkout the candidate dismissed. It is not fatal.
	ErrCheckoutCancelled = errors.New("workflow: checkout cancelled")
)

// Backend is the portal service as seen by the flow.
type Backend interface {
	Register(ctx context.Context, req portalapi.RegisterRequest) (portalapi.RegisterResponse, error)
	UploadDocument(ctx context.Context, req portalapi.UploadDocumentRequest) error
	FetchRegistration(ctx context.Context, applicationNumber string) (portalapi.Registration, error)
	CreateOrder(ctx context.Context, req portalapi.CreateOrderRequest) (portalapi.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, req portalapi.VerifyPaymentRequest) (portalapi.VerifyPaymentResponse, error)
	FetchAdmitCard(ctx context.Context, applicationNumber string) (portalapi.AdmitCardResponse, error)
}

// CheckoutResult is what the payment provider's checkout hands back.
type CheckoutResult struct {
	PaymentID string
	OrderID   string
	Signature string
}

// Checkout runs the provider checkout for an order. Returning ErrCheckoutCancelled
// leaves the flow waiting for payment.
type Checkout interface {
	Run(ctx context.Context, applicationNumber string, order portalapi.CreateOrderResponse) (CheckoutResult, error)
}

// CheckoutFunc adapts a function to Checkout.
type CheckoutFunc func(context.Context, string, portalapi.CreateOrderResponse) (CheckoutResult, error)

// Run implements Checkout.
func (f CheckoutFunc) Run(ctx context.Context, applicationNumber string, order portalapi.CreateOrderResponse) (CheckoutResult, error) {
	return f(ctx, applicationNumber, order)
}

// Controller is the per-session state machine. It allows one backend call at a time.
type Controller struct {
	backend  Backend
	checkout Checkout
	store    *registration.Store
	catalog  *domain.Catalog
	logger   func(ctx context.Context, event string, fields map[string]any)

	mu         sync.Mutex
	state      State
	history    []State
	busy       bool
	generation uint64

	union         domain.Union
	paymentKnown  bool
	paymentStatus bool
	admitCard     *portalapi.AdmitCardResponse
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore shares an existing registration store.
func WithStore(store *registration.Store) Option {
	return func(c *Controller) {
		if store != nil {
			c.store = store
		}
	}
}

// WithCatalog overrides the catalogue used for local validation.
func WithCatalog(cat *domain.Catalog) Option {
	return func(c *Controller) {
		if cat != nil {
			c.catalog = cat
		}
	}
}

// WithLogger sets the structured event logger.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController builds a controller at StateStart.
func NewController(backend Backend, checkout Checkout, opts ...Option) (*Controller, error) {
	if backend == nil {
		return nil, errors.New("workflow: backend is required")
	}
	c := &Controller{
		backend:  backend,
		checkout: checkout,
		store:    registration.NewStore(),
		catalog:  domain.DefaultCatalog(),
		logger:   func(context.Context, string, map[string]any) {},
		state:    StateStart,
		history:  []State{StateStart},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns every state entered since construction, in order.
func (c *Controller) History() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]State(nil), c.history...)
}

// Store exposes the session's registration aggregate.
func (c *Controller) Store() *registration.Store {
	return c.store
}

// Union returns the union currently held by the flow.
func (c *Controller) Union() domain.Union {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.union
}

// AdmitCard returns the last fetched admit card.
func (c *Controller) AdmitCard() (portalapi.AdmitCardResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.admitCard == nil {
		return portalapi.AdmitCardResponse{}, false
	}
	return *c.admitCard, true
}

// Begin moves from Start to Registering.
func (c *Controller) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	if c.state != StateStart {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, c.state)
	}
	c.enter(StateRegistering)
	return nil
}

// Resume enters DocumentsPending for an application created earlier, as when
// a candidate follows a link. union is the value carried with the link and may be empty.
func (c *Controller) Resume(applicationNumber string, union domain.Union) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	appNo := domain.NormalizeApplicationNumber(applicationNumber)
	if appNo == "" {
		c.resetLocked()
		return ErrUnresolvedApplication
	}
	c.store.Reset()
	c.store.SetApplicationNumber(appNo)
	c.union = domain.NormalizeUnion(string(union))
	c.paymentKnown = false
	c.paymentStatus = false
	c.admitCard = nil
	c.enter(StateDocumentsPending)
	return nil
}

// SubmitRegistration validates the form locally, submits it and moves to
// DocumentsPending once the backend returns an application number.
func (c *Controller) SubmitRegistration(ctx context.Context, req portalapi.RegisterRequest) (portalapi.RegisterResponse, error) {
	req.Union = domain.NormalizeUnion(string(req.Union))
	if _, err := domain.ValidateRegistration(c.catalog, req.PersonalInfo, req.Uploads()); err != nil {
		return portalapi.RegisterResponse{}, err
	}

	gen, err := c.start(StateRegistering)
	if err != nil {
		return portalapi.RegisterResponse{}, err
	}
	resp, err := c.backend.Register(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finishLocked(gen); err != nil {
		return portalapi.RegisterResponse{}, err
	}
	if err != nil {
		c.logger(ctx, "workflow.register.failed", map[string]any{"error": err.Error()})
		return portalapi.RegisterResponse{}, err
	}
	if !domain.ValidApplicationNumber(resp.ApplicationNumber) {
		return portalapi.RegisterResponse{}, fmt.Errorf("workflow: backend returned application number %q", resp.ApplicationNumber)
	}

	c.store.UpdatePersonalInfo(registration.PatchFrom(req.PersonalInfo))
	c.store.UpdatePhoto(req.Photo)
	c.store.UpdateSignature(req.Signature)
	c.store.UpdateCV(optional(req.CV))
	c.store.UpdateWorkCert(optional(req.WorkCert))
	c.store.UpdateQualCert(optional(req.QualCert))
	c.store.SetApplicationNumber(resp.ApplicationNumber)
	c.store.RecordAllocation(resp.ExamCenter, resp.ExamShift)
	c.store.UpdatePaymentStatus(false, "")

	c.union = req.Union
	c.paymentKnown = true
	c.paymentStatus = false
	c.enter(StateDocumentsPending)
	c.logger(ctx, "workflow.register.accepted", map[string]any{"applicationNumber": resp.ApplicationNumber})
	return resp, nil
}

// UploadDocument submits a supporting document and then takes the fee decision.
func (c *Controller) UploadDocument(ctx context.Context, kind domain.DocumentKind, dataURL string) error {
	if !domain.IsSupportingDocument(kind) {
		return &domain.ValidationError{Fields: map[string]string{string(kind): fmt.Sprintf("Unsupported document kind %q", kind)}}
	}
	if _, err := domain.ValidateBlob(kind, dataURL); err != nil {
		return err
	}

	gen, err := c.start(StateDocumentsPending)
	if err != nil {
		return err
	}
	appNo := c.store.Snapshot().ApplicationNumber
	if appNo == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.finishLocked(gen); err != nil {
			return err
		}
		c.resetLocked()
		return ErrUnresolvedApplication
	}

	if err := c.backend.UploadDocument(ctx, portalapi.UploadDocumentRequest{ApplicationNumber: appNo, Kind: kind, Document: dataURL}); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if ferr := c.finishLocked(gen); ferr != nil {
			return ferr
		}
		return err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return ErrStaleResult
	}
	needFetch := c.union == "" || !c.paymentKnown
	c.mu.Unlock()

	var fetched *portalapi.Registration
	if needFetch {
		record, err := c.backend.FetchRegistration(ctx, appNo)
		if err != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
			if ferr := c.finishLocked(gen); ferr != nil {
				return ferr
			}
			c.resetLocked()
			return fmt.Errorf("%w: %v", ErrUnresolvedApplication, err)
		}
		fetched = &record
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finishLocked(gen); err != nil {
		return err
	}
	if _, err := c.store.UpdateDocuments(kind, dataURL); err != nil {
		return err
	}
	if fetched != nil {
		fetchedUnion := domain.NormalizeUnion(string(fetched.Union))
		if c.union != "" && fetchedUnion != "" && c.union != fetchedUnion {
			c.logger(ctx, "workflow.union.mismatch", map[string]any{"applicationNumber": appNo, "held": c.union, "fetched": fetchedUnion})
			c.resetLocked()
			return ErrUnionMismatch
		}
		if c.union == "" {
			c.union = fetchedUnion
		}
		c.paymentKnown = true
		c.paymentStatus = fetched.PaymentStatus
		c.store.UpdatePaymentStatus(fetched.PaymentStatus, fetched.TransactionNumber)
	}
	if c.union == "" {
		c.resetLocked()
		return ErrUnresolvedApplication
	}

	c.enter(StatePaymentDecision)
	if domain.IsFeeExempt(c.union) || c.paymentStatus {
		c.enter(StatePaymentSkipped)
		c.enter(StateAdmitCardReady)
		return nil
	}
	c.enter(StatePaymentPending)
	return nil
}

// Pay creates an order, runs the checkout and verifies the result. A cancelled
// checkout or a failed verification leaves the flow in PaymentPending.
func (c *Controller) Pay(ctx context.Context) error {
	if c.checkout == nil {
		return errors.New("workflow: checkout is not configured")
	}
	gen, err := c.start(StatePaymentPending)
	if err != nil {
		return err
	}
	appNo := c.store.Snapshot().ApplicationNumber
	union := c.Union()

	order, err := c.backend.CreateOrder(ctx, portalapi.CreateOrderRequest{ApplicationNumber: appNo, Union: union})
	if err != nil {
		return c.settle(gen, err)
	}
	if order.Union != "" && !order.Union.Equal(union) {
		return c.hardStop(ctx, gen, appNo, order.Union)
	}
	if !c.current(gen) {
		return ErrStaleResult
	}

	result, err := c.checkout.Run(ctx, appNo, order)
	if err != nil {
		if errors.Is(err, ErrCheckoutCancelled) {
			c.logger(ctx, "workflow.checkout.cancelled", map[string]any{"applicationNumber": appNo})
		}
		return c.settle(gen, err)
	}
	if !c.current(gen) {
		return ErrStaleResult
	}

	verified, err := c.backend.VerifyPayment(ctx, portalapi.VerifyPaymentRequest{
		ApplicationNumber: appNo,
		PaymentID:         result.PaymentID,
		OrderID:           result.OrderID,
		Signature:         result.Signature,
		Union:             union,
	})
	if err != nil {
		return c.settle(gen, err)
	}
	if verified.Union != "" && !verified.Union.Equal(union) {
		return c.hardStop(ctx, gen, appNo, verified.Union)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finishLocked(gen); err != nil {
		return err
	}
	txn := strings.TrimSpace(verified.TransactionNumber)
	if txn == "" {
		txn = result.PaymentID
	}
	c.store.UpdatePaymentStatus(true, txn)
	c.paymentKnown = true
	c.paymentStatus = true
	c.enter(StatePaymentConfirmed)
	c.enter(StateAdmitCardReady)
	c.logger(ctx, "workflow.payment.confirmed", map[string]any{"applicationNumber": appNo})
	return nil
}

// FetchAdmitCard loads the admit card for the application held by the flow.
func (c *Controller) FetchAdmitCard(ctx context.Context) (portalapi.AdmitCardResponse, error) {
	appNo := c.store.Snapshot().ApplicationNumber
	return c.lookup(ctx, appNo, StateAdmitCardReady)
}

// LookupAdmitCard is the standalone entry point: it needs no earlier state and
// moves from Start straight to AdmitCardReady.
func (c *Controller) LookupAdmitCard(ctx context.Context, applicationNumber string) (portalapi.AdmitCardResponse, error) {
	appNo := domain.NormalizeApplicationNumber(applicationNumber)
	if !domain.ValidApplicationNumber(appNo) {
		return portalapi.AdmitCardResponse{}, &domain.ValidationError{Fields: map[string]string{"applicationNumber": "Application number must look like CBT123456"}}
	}
	return c.lookup(ctx, appNo, StateStart, StateAdmitCardReady)
}

func (c *Controller) lookup(ctx context.Context, appNo string, allowed ...State) (portalapi.AdmitCardResponse, error) {
	gen, err := c.start(allowed...)
	if err != nil {
		return portalapi.AdmitCardResponse{}, err
	}
	resp, err := c.backend.FetchAdmitCard(ctx, appNo)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finishLocked(gen); err != nil {
		return portalapi.AdmitCardResponse{}, err
	}
	if err != nil {
		return portalapi.AdmitCardResponse{}, err
	}
	if c.store.Snapshot().ApplicationNumber != appNo {
		c.store.Reset()
		c.store.SetApplicationNumber(appNo)
	}
	c.store.UpdatePersonalInfo(registration.PatchFrom(resp.User.PersonalInfo))
	c.store.RecordAllocation(resp.User.ExamCenter, resp.User.ExamShift)
	c.store.UpdatePaymentStatus(resp.User.PaymentStatus, resp.User.TransactionNumber)
	c.union = domain.NormalizeUnion(string(resp.User.Union))
	c.paymentKnown = true
	c.paymentStatus = resp.User.PaymentStatus
	card := resp
	c.admitCard = &card
	if c.state != StateAdmitCardReady {
		c.enter(StateAdmitCardReady)
	}
	return resp, nil
}

// Abandon returns the flow to Start. Results of calls still in flight are discarded.
func (c *Controller) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) start(allowed ...State) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return 0, ErrBusy
	}
	permitted := false
	for _, s := range allowed {
		if c.state == s {
			permitted = true
			break
		}
	}
	if !permitted {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTransition, c.state)
	}
	c.busy = true
	return c.generation, nil
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// finishLocked ends the in-flight call. It reports ErrStaleResult when the flow
// moved on while the call was pending.
func (c *Controller) finishLocked(gen uint64) error {
	if c.generation != gen {
		return ErrStaleResult
	}
	c.busy = false
	return nil
}

func (c *Controller) settle(gen uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ferr := c.finishLocked(gen); ferr != nil {
		return ferr
	}
	return err
}

func (c *Controller) hardStop(ctx context.Context, gen uint64, appNo string, reported domain.Union) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.finishLocked(gen); err != nil {
		return err
	}
	c.logger(ctx, "workflow.union.mismatch", map[string]any{"applicationNumber": appNo, "held": c.union, "reported": reported})
	c.resetLocked()
	return ErrUnionMismatch
}

func (c *Controller) resetLocked() {
	c.generation++
	c.busy = false
	c.union = ""
	c.paymentKnown = false
	c.paymentStatus = false
	c.admitCard = nil
	c.store.Reset()
	c.enter(StateStart)
}

func (c *Controller) enter(s State) {
	c.state = s
	c.history = append(c.history, s)
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
