// Package memory keeps portal state in process memory. It backs local runs
// and tests; everything is lost on restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bobbygour30/admitcard/internal/allocation"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

// Registry implements repositories.Registry.
type Registry struct {
	mu            sync.Mutex
	pool          *allocation.Pool
	registrations map[string]domain.Registration
	orders        map[string]domain.PaymentOrder
}

// NewRegistry returns an empty registry with empty pools.
func NewRegistry() *Registry {
	return &Registry{
		pool:          allocation.NewPool(nil, nil),
		registrations: make(map[string]domain.Registration),
		orders:        make(map[string]domain.PaymentOrder),
	}
}

func (r *Registry) Registrations() repositories.RegistrationRepository { return registrationRepo{r} }
func (r *Registry) Pools() repositories.PoolRepository                 { return poolRepo{r} }
func (r *Registry) PaymentOrders() repositories.PaymentOrderRepository { return orderRepo{r} }

func (r *Registry) Ping(context.Context) error  { return nil }
func (r *Registry) Close(context.Context) error { return nil }

type registrationRepo struct{ r *Registry }

func (repo registrationRepo) Enroll(_ context.Context, reg domain.Registration) (domain.Registration, error) {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registrations[reg.ApplicationNumber]; exists {
		return domain.Registration{}, repositories.NewRegistrationError("registrations.enroll", repositories.RegistrationErrorDuplicate, "application number "+reg.ApplicationNumber+" already exists", nil)
	}
	// Registry.mu is held, so nothing can observe the seat before the insert.
	assignment, err := r.pool.Allocate()
	if err != nil {
		return domain.Registration{}, err
	}
	out := reg.Clone()
	out.ApplyAssignment(assignment)
	r.registrations[out.ApplicationNumber] = out
	return out.Clone(), nil
}

func (repo registrationRepo) FindByApplicationNumber(_ context.Context, applicationNumber string) (domain.Registration, error) {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[applicationNumber]
	if !ok {
		return domain.Registration{}, notFound("registrations.get", applicationNumber)
	}
	return reg.Clone(), nil
}

func (repo registrationRepo) List(_ context.Context, filter domain.RegistrationFilter) ([]domain.Registration, error) {
	r := repo.r
	r.mu.Lock()
	regs := make([]domain.Registration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		regs = append(regs, reg.Clone())
	}
	r.mu.Unlock()
	return repositories.ApplyFilter(regs, filter), nil
}

func (repo registrationRepo) AttachDocument(_ context.Context, applicationNumber string, kind domain.DocumentKind, ref string, now time.Time) (domain.Registration, error) {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[applicationNumber]
	if !ok {
		return domain.Registration{}, notFound("registrations.attach_document", applicationNumber)
	}
	reg = reg.Clone()
	if reg.Documents == nil {
		reg.Documents = make(map[domain.DocumentKind]string)
	}
	reg.Documents[kind] = ref
	reg.UpdatedAt = now.UTC()
	r.registrations[applicationNumber] = reg
	return reg.Clone(), nil
}

func (repo registrationRepo) MarkPaid(_ context.Context, applicationNumber, transactionNumber string, paidAt time.Time) (domain.Registration, bool, error) {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[applicationNumber]
	if !ok {
		return domain.Registration{}, false, notFound("registrations.mark_paid", applicationNumber)
	}
	if reg.PaymentStatus {
		return reg.Clone(), false, nil
	}
	at := paidAt.UTC()
	reg.PaymentStatus = true
	reg.TransactionNumber = transactionNumber
	reg.TransactionDate = &at
	reg.UpdatedAt = at
	r.registrations[applicationNumber] = reg
	return reg.Clone(), true, nil
}

func (repo registrationRepo) Delete(_ context.Context, applicationNumber string) (domain.Registration, error) {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[applicationNumber]
	if !ok {
		return domain.Registration{}, notFound("registrations.delete", applicationNumber)
	}
	delete(r.registrations, applicationNumber)
	return reg, nil
}

type poolRepo struct{ r *Registry }

func (repo poolRepo) Seed(_ context.Context, centers []domain.Center, shifts []domain.Shift) error {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()
	existingCenters, existingShifts := r.pool.Snapshot()
	seenCenters := make(map[string]bool, len(existingCenters))
	for _, c := range existingCenters {
		seenCenters[c.ID] = true
	}
	for _, c := range centers {
		if !seenCenters[c.ID] {
			existingCenters = append(existingCenters, c)
			seenCenters[c.ID] = true
		}
	}
	seenShifts := make(map[int]bool, len(existingShifts))
	for _, s := range existingShifts {
		seenShifts[s.ID] = true
	}
	for _, s := range shifts {
		if !seenShifts[s.ID] {
			existingShifts = append(existingShifts, s)
			seenShifts[s.ID] = true
		}
	}
	r.pool = allocation.NewPool(existingCenters, existingShifts)
	return nil
}

func (repo poolRepo) Snapshot(context.Context) ([]domain.Center, []domain.Shift, error) {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	centers, shifts := repo.r.pool.Snapshot()
	return centers, shifts, nil
}

type orderRepo struct{ r *Registry }

func (repo orderRepo) Insert(_ context.Context, order domain.PaymentOrder) error {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return repositories.NewRegistrationError("payment_orders.insert", repositories.PaymentOrderErrorDuplicate, "order "+order.ID+" already exists", nil)
	}
	r.orders[order.ID] = order
	return nil
}

func (repo orderRepo) FindByID(_ context.Context, orderID string) (domain.PaymentOrder, error) {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.PaymentOrder{}, orderNotFound("payment_orders.get", orderID)
	}
	return order, nil
}

func (repo orderRepo) UpdateStatus(_ context.Context, orderID string, status domain.PaymentOrderStatus, paymentID string, at time.Time) (domain.PaymentOrder, error) {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.PaymentOrder{}, orderNotFound("payment_orders.update_status", orderID)
	}
	order = repositories.TransitionOrder(order, status, paymentID, at)
	r.orders[orderID] = order
	return order, nil
}

func (repo orderRepo) ListOpenBefore(_ context.Context, before time.Time, limit int) ([]domain.PaymentOrder, error) {
	r := repo.r
	r.mu.Lock()
	var out []domain.PaymentOrder
	for _, order := range r.orders {
		if order.Status == domain.PaymentOrderCreated && order.CreatedAt.Before(before) {
			out = append(out, order)
		}
	}
	r.mu.Unlock()
	return repositories.OldestOrders(out, limit), nil
}

func notFound(op, applicationNumber string) error {
	return repositories.NewRegistrationError(op, repositories.RegistrationErrorNotFound, "registration "+strings.TrimSpace(applicationNumber)+" not found", nil)
}

func orderNotFound(op, orderID string) error {
	return repositories.NewRegistrationError(op, repositories.PaymentOrderErrorNotFound, "order "+orderID+" not found", nil)
}
