package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/bobbygour30/admitcard/internal/domain"
	pfirestore "github.com/bobbygour30/admitcard/internal/platform/firestore"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

// PaymentOrderRepository stores provider orders keyed by provider order id.
type PaymentOrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[paymentOrderDocument]
}

func (r *PaymentOrderRepository) Insert(ctx context.Context, order domain.PaymentOrder) error {
	err := r.orders.Create(ctx, order.ID, newPaymentOrderDocument(order))
	if pfirestore.IsAlreadyExists(err) {
		return repositories.NewRegistrationError("payment_orders.insert", repositories.PaymentOrderErrorDuplicate, fmt.Sprintf("order %s already exists", order.ID), nil)
	}
	return err
}

func (r *PaymentOrderRepository) FindByID(ctx context.Context, orderID string) (domain.PaymentOrder, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.PaymentOrder{}, orderNotFound("payment_orders.get", orderID)
		}
		return domain.PaymentOrder{}, err
	}
	return doc.toDomain(), nil
}

func (r *PaymentOrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.PaymentOrderStatus, paymentID string, at time.Time) (domain.PaymentOrder, error) {
	var out domain.PaymentOrder
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return orderNotFound("payment_orders.update_status", orderID)
			}
			return err
		}
		doc, err := pfirestore.Decode[paymentOrderDocument](snap)
		if err != nil {
			return err
		}
		current := doc.toDomain()
		out = repositories.TransitionOrder(current, status, paymentID, at)
		if out.Status == current.Status && out.PaymentID == current.PaymentID {
			return nil
		}
		return tx.Set(ref, newPaymentOrderDocument(out))
	})
	if err != nil {
		return domain.PaymentOrder{}, pfirestore.WrapError("payment_orders.update_status", err)
	}
	return out, nil
}

// ListOpenBefore needs a composite index on (status, created_at).
func (r *PaymentOrderRepository) ListOpenBefore(ctx context.Context, before time.Time, limit int) ([]domain.PaymentOrder, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.PaymentOrderCreated)).
			Where("created_at", "<", before.UTC()).
			OrderBy("created_at", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.PaymentOrder, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func orderNotFound(op, orderID string) error {
	return repositories.NewRegistrationError(op, repositories.PaymentOrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), nil)
}
