// Package postgres implements the portal repositories on PostgreSQL through
// database/sql and lib/pq. Seat booking runs in SERIALIZABLE transactions
// that lock both pools with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	ppostgres "github.com/bobbygour30/admitcard/internal/platform/postgres"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

// Registry implements repositories.Registry over one *sql.DB.
type Registry struct {
	db *sql.DB
}

// NewRegistry wraps db. Call Migrate before first use.
func NewRegistry(db *sql.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry: db is required")
	}
	return &Registry{db: db}, nil
}

// Migrate creates missing tables.
func (r *Registry) Migrate(ctx context.Context) error {
	return ppostgres.Migrate(ctx, r.db)
}

func (r *Registry) Registrations() repositories.RegistrationRepository {
	return &RegistrationRepository{db: r.db}
}

func (r *Registry) Pools() repositories.PoolRepository {
	return &PoolRepository{db: r.db}
}

func (r *Registry) PaymentOrders() repositories.PaymentOrderRepository {
	return &PaymentOrderRepository{db: r.db}
}

func (r *Registry) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Registry) Close(context.Context) error { return r.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}
