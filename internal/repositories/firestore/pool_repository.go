package firestore

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"

	"github.com/bobbygour30/admitcard/internal/domain"
	pfirestore "github.com/bobbygour30/admitcard/internal/platform/firestore"
)

// PoolRepository stores one document per center and per shift.
type PoolRepository struct {
	centers *pfirestore.Collection[centerDocument]
	shifts  *pfirestore.Collection[shiftDocument]
}

func byPosition(q firestore.Query) firestore.Query {
	return q.OrderBy("position", firestore.Asc)
}

// Seed creates missing documents. Existing documents are left alone so that
// restarts never reset booking counts.
func (r *PoolRepository) Seed(ctx context.Context, centers []domain.Center, shifts []domain.Shift) error {
	for i, c := range centers {
		doc := centerDocument{ID: c.ID, Position: i, Name: c.Name, Location: c.Location, Capacity: c.Capacity, CurrentBookings: c.CurrentBookings}
		if err := r.centers.Create(ctx, c.ID, doc); err != nil && !pfirestore.IsAlreadyExists(err) {
			return fmt.Errorf("seed center %s: %w", c.ID, err)
		}
	}
	for i, s := range shifts {
		id := strconv.Itoa(s.ID)
		doc := shiftDocument{ID: s.ID, Position: i, Name: s.Name, Time: s.Time, Date: s.Date, Capacity: s.Capacity, CurrentBookings: s.CurrentBookings}
		if err := r.shifts.Create(ctx, id, doc); err != nil && !pfirestore.IsAlreadyExists(err) {
			return fmt.Errorf("seed shift %s: %w", id, err)
		}
	}
	return nil
}

// Snapshot returns both pools in catalogue order.
func (r *PoolRepository) Snapshot(ctx context.Context) ([]domain.Center, []domain.Shift, error) {
	centerDocs, err := r.centers.Query(ctx, byPosition)
	if err != nil {
		return nil, nil, err
	}
	shiftDocs, err := r.shifts.Query(ctx, byPosition)
	if err != nil {
		return nil, nil, err
	}
	return centersFrom(centerDocs), shiftsFrom(shiftDocs), nil
}

func (r *PoolRepository) txSnapshot(ctx context.Context, tx *firestore.Transaction) ([]domain.Center, []domain.Shift, error) {
	centerDocs, err := r.centers.TxQuery(ctx, tx, byPosition)
	if err != nil {
		return nil, nil, err
	}
	shiftDocs, err := r.shifts.TxQuery(ctx, tx, byPosition)
	if err != nil {
		return nil, nil, err
	}
	return centersFrom(centerDocs), shiftsFrom(shiftDocs), nil
}

func (r *PoolRepository) book(ctx context.Context, tx *firestore.Transaction, a domain.Assignment) error {
	centerRef, err := r.centers.Doc(ctx, a.Center.ID)
	if err != nil {
		return err
	}
	shiftRef, err := r.shifts.Doc(ctx, strconv.Itoa(a.Shift.ID))
	if err != nil {
		return err
	}
	increment := []firestore.Update{{Path: "current_bookings", Value: firestore.Increment(1)}}
	if err := tx.Update(centerRef, increment); err != nil {
		return err
	}
	return tx.Update(shiftRef, increment)
}

func centersFrom(docs []centerDocument) []domain.Center {
	out := make([]domain.Center, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out
}

func shiftsFrom(docs []shiftDocument) []domain.Shift {
	out := make([]domain.Shift, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out
}
