// Package firestore implements the portal repositories on Cloud Firestore.
// Registrations are keyed by application number; every seat booking runs in
// a transaction that reads both pools before writing.
package firestore

import (
	"context"
	"errors"
	"strings"

	pfirestore "github.com/bobbygour30/admitcard/internal/platform/firestore"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

const (
	registrationsCollection = "registrations"
	centersCollection       = "examCenters"
	shiftsCollection        = "examShifts"
	paymentOrdersCollection = "paymentOrders"
)

// Registry implements repositories.Registry.
type Registry struct {
	provider      *pfirestore.Provider
	registrations *RegistrationRepository
	pools         *PoolRepository
	orders        *PaymentOrderRepository
}

// NewRegistry binds every repository to provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	pools := &PoolRepository{
		centers: pfirestore.NewCollection[centerDocument](provider, centersCollection),
		shifts:  pfirestore.NewCollection[shiftDocument](provider, shiftsCollection),
	}
	return &Registry{
		provider: provider,
		registrations: &RegistrationRepository{
			provider:      provider,
			registrations: pfirestore.NewCollection[registrationDocument](provider, registrationsCollection),
			pools:         pools,
		},
		pools: pools,
		orders: &PaymentOrderRepository{
			provider: provider,
			orders:   pfirestore.NewCollection[paymentOrderDocument](provider, paymentOrdersCollection),
		},
	}, nil
}

func (r *Registry) Registrations() repositories.RegistrationRepository { return r.registrations }
func (r *Registry) Pools() repositories.PoolRepository                 { return r.pools }
func (r *Registry) PaymentOrders() repositories.PaymentOrderRepository { return r.orders }

// Ping reads a sentinel document.
func (r *Registry) Ping(ctx context.Context) error { return r.provider.Ping(ctx) }

// Close releases the shared client.
func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func lower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
