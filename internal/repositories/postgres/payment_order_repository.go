package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
	ppostgres "github.com/bobbygour30/admitcard/internal/platform/postgres"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

const orderColumns = `id, application_number, provider, union_name, amount, currency, receipt, status, payment_id, created_at, paid_at`

// PaymentOrderRepository stores provider orders.
type PaymentOrderRepository struct {
	db *sql.DB
}

func (r *PaymentOrderRepository) Insert(ctx context.Context, order domain.PaymentOrder) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)`,
		order.ID, order.ApplicationNumber, order.Provider, order.Union.String(), order.Amount, order.Currency,
		order.Receipt, string(order.Status), order.PaymentID, order.CreatedAt.UTC(), nullTime(order.PaidAt))
	if ppostgres.IsUniqueViolation(err) {
		return repositories.NewRegistrationError("payment_orders.insert", repositories.PaymentOrderErrorDuplicate, fmt.Sprintf("order %s already exists", order.ID), nil)
	}
	return err
}

func (r *PaymentOrderRepository) FindByID(ctx context.Context, orderID string) (domain.PaymentOrder, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentOrder{}, orderNotFound("payment_orders.get", orderID)
	}
	return order, err
}

func (r *PaymentOrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.PaymentOrderStatus, paymentID string, at time.Time) (domain.PaymentOrder, error) {
	var out domain.PaymentOrder
	err := ppostgres.RunSerializable(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		current, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1 FOR UPDATE`, orderID))
		if errors.Is(err, sql.ErrNoRows) {
			return orderNotFound("payment_orders.update_status", orderID)
		}
		if err != nil {
			return err
		}
		out = repositories.TransitionOrder(current, status, paymentID, at)
		_, err = tx.ExecContext(ctx, `UPDATE payment_orders SET status = $2, payment_id = NULLIF($3, ''), paid_at = $4 WHERE id = $1`,
			orderID, string(out.Status), out.PaymentID, nullTime(out.PaidAt))
		return err
	})
	if err != nil {
		return domain.PaymentOrder{}, err
	}
	return out, nil
}

func (r *PaymentOrderRepository) ListOpenBefore(ctx context.Context, before time.Time, limit int) ([]domain.PaymentOrder, error) {
	var max sql.NullInt64
	if limit > 0 {
		max = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM payment_orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, string(domain.PaymentOrderCreated), before.UTC(), max)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	defer rows.Close()
	var out []domain.PaymentOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

func scanOrder(row rowScanner) (domain.PaymentOrder, error) {
	var (
		order     domain.PaymentOrder
		union     string
		status    string
		paymentID sql.NullString
		paidAt    sql.NullTime
	)
	err := row.Scan(&order.ID, &order.ApplicationNumber, &order.Provider, &union, &order.Amount, &order.Currency,
		&order.Receipt, &status, &paymentID, &order.CreatedAt, &paidAt)
	if err != nil {
		return domain.PaymentOrder{}, err
	}
	order.Union = domain.NormalizeUnion(union)
	order.Status = domain.PaymentOrderStatus(status)
	order.PaymentID = paymentID.String
	order.CreatedAt = order.CreatedAt.UTC()
	if paidAt.Valid {
		at := paidAt.Time.UTC()
		order.PaidAt = &at
	}
	return order, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func orderNotFound(op, orderID string) error {
	return repositories.NewRegistrationError(op, repositories.PaymentOrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), nil)
}
