// Package repositories defines the persistence contracts of the portal
// service. Backends live in the firestore, postgres and memory subpackages.
package repositories

import (
	"context"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

// Registry bundles one backend's repositories.
type Registry interface {
	Registrations() RegistrationRepository
	Pools() PoolRepository
	PaymentOrders() PaymentOrderRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// RepositoryError classifies backend failures for the services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// RegistrationRepository stores candidate registrations.
type RegistrationRepository interface {
	// Enroll books the least-loaded center and shift and inserts reg in one
	// transaction. The returned registration carries the assignment. It fails
	// with allocation.ErrNoAvailableCenters or ErrNoAvailableShifts when a
	// pool is full and with a RegistrationErrorDuplicate error when the
	// application number is taken; nothing is written in either case.
	Enroll(ctx context.Context, reg domain.Registration) (domain.Registration, error)
	FindByApplicationNumber(ctx context.Context, applicationNumber string) (domain.Registration, error)
	// List returns registrations newest first.
	List(ctx context.Context, filter domain.RegistrationFilter) ([]domain.Registration, error)
	// AttachDocument sets the storage reference of one document kind.
	AttachDocument(ctx context.Context, applicationNumber string, kind domain.DocumentKind, ref string, now time.Time) (domain.Registration, error)
	// MarkPaid records the payment. Marking an already-paid registration is a
	// no-op that reports changed=false and keeps the first transaction number.
	MarkPaid(ctx context.Context, applicationNumber, transactionNumber string, paidAt time.Time) (reg domain.Registration, changed bool, err error)
	// Delete removes the registration and returns what was removed. Booked
	// seats are not released.
	Delete(ctx context.Context, applicationNumber string) (domain.Registration, error)
}

// PoolRepository manages the center and shift pools.
type PoolRepository interface {
	// Seed inserts catalogue entries that do not exist yet. Existing entries
	// keep their booking counts.
	Seed(ctx context.Context, centers []domain.Center, shifts []domain.Shift) error
	Snapshot(ctx context.Context) ([]domain.Center, []domain.Shift, error)
}

// PaymentOrderRepository stores provider orders.
type PaymentOrderRepository interface {
	Insert(ctx context.Context, order domain.PaymentOrder) error
	FindByID(ctx context.Context, orderID string) (domain.PaymentOrder, error)
	// UpdateStatus moves an order to status. Paid orders never change again.
	UpdateStatus(ctx context.Context, orderID string, status domain.PaymentOrderStatus, paymentID string, at time.Time) (domain.PaymentOrder, error)
	// ListOpenBefore returns created orders older than before, oldest first.
	ListOpenBefore(ctx context.Context, before time.Time, limit int) ([]domain.PaymentOrder, error)
}

// HealthRepository probes dependencies for readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
