package repositories

import (
	"sort"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

// TransitionOrder applies a status change. Paid is terminal.
func TransitionOrder(order domain.PaymentOrder, status domain.PaymentOrderStatus, paymentID string, at time.Time) domain.PaymentOrder {
	if order.Status == domain.PaymentOrderPaid {
		return order
	}
	order.Status = status
	if paymentID != "" {
		order.PaymentID = paymentID
	}
	if status == domain.PaymentOrderPaid {
		paidAt := at.UTC()
		order.PaidAt = &paidAt
	}
	return order
}

// OldestOrders sorts orders by creation time and trims to limit.
func OldestOrders(orders []domain.PaymentOrder, limit int) []domain.PaymentOrder {
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders
}
