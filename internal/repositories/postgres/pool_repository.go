package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobbygour30/admitcard/internal/domain"
	ppostgres "github.com/bobbygour30/admitcard/internal/platform/postgres"
)

// PoolRepository stores centers and shifts with their booking counters.
type PoolRepository struct {
	db *sql.DB
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *PoolRepository) Seed(ctx context.Context, centers []domain.Center, shifts []domain.Shift) error {
	return ppostgres.RunSerializable(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		for i, c := range centers {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO exam_centers (id, position, name, location, capacity, current_bookings)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO NOTHING`,
				c.ID, i, c.Name, c.Location, c.Capacity, c.CurrentBookings)
			if err != nil {
				return fmt.Errorf("seed center %s: %w", c.ID, err)
			}
		}
		for i, s := range shifts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO exam_shifts (id, position, name, time_label, date_label, capacity, current_bookings)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO NOTHING`,
				s.ID, i, s.Name, s.Time, s.Date, s.Capacity, s.CurrentBookings)
			if err != nil {
				return fmt.Errorf("seed shift %d: %w", s.ID, err)
			}
		}
		return nil
	})
}

func (r *PoolRepository) Snapshot(ctx context.Context) ([]domain.Center, []domain.Shift, error) {
	return snapshot(ctx, r.db, "")
}

// snapshot reads both pools in catalogue order. lock is appended to each
// query, e.g. "FOR UPDATE".
func snapshot(ctx context.Context, q queryer, lock string) ([]domain.Center, []domain.Shift, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, location, capacity, current_bookings FROM exam_centers ORDER BY position `+lock)
	if err != nil {
		return nil, nil, fmt.Errorf("select centers: %w", err)
	}
	var centers []domain.Center
	for rows.Next() {
		var c domain.Center
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.Capacity, &c.CurrentBookings); err != nil {
			rows.Close()
			return nil, nil, err
		}
		centers = append(centers, c)
	}
	if err := closeRows(rows); err != nil {
		return nil, nil, err
	}

	rows, err = q.QueryContext(ctx, `SELECT id, name, time_label, date_label, capacity, current_bookings FROM exam_shifts ORDER BY position `+lock)
	if err != nil {
		return nil, nil, fmt.Errorf("select shifts: %w", err)
	}
	var shifts []domain.Shift
	for rows.Next() {
		var s domain.Shift
		if err := rows.Scan(&s.ID, &s.Name, &s.Time, &s.Date, &s.Capacity, &s.CurrentBookings); err != nil {
			rows.Close()
			return nil, nil, err
		}
		shifts = append(shifts, s)
	}
	if err := closeRows(rows); err != nil {
		return nil, nil, err
	}
	return centers, shifts, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
