// Package repotest holds behaviour checks shared by every registry backend.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobbygour30/admitcard/internal/allocation"
	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

// Centers returns n centers with the given capacity each.
func Centers(n, capacity int) []domain.Center {
	out := make([]domain.Center, n)
	for i := range out {
		out[i] = domain.Center{
			ID:       fmt.Sprintf("center-%d", i+1),
			Name:     fmt.Sprintf("Center %d", i+1),
			Location: "Ranchi",
			Capacity: capacity,
		}
	}
	return out
}

// Shifts returns n shifts with the given capacity each.
func Shifts(n, capacity int) []domain.Shift {
	out := make([]domain.Shift, n)
	for i := range out {
		out[i] = domain.Shift{
			ID:       i + 1,
			Name:     fmt.Sprintf("Shift %d", i+1),
			Time:     "10:00 AM - 12:00 PM",
			Date:     "15 March 2025",
			Capacity: capacity,
		}
	}
	return out
}

// Registration builds an unassigned registration.
func Registration(appNo string, createdAt time.Time) domain.Registration {
	return domain.Registration{
		ApplicationNumber: appNo,
		PersonalInfo: domain.PersonalInfo{
			Union:         domain.UnionTirhut,
			Name:          "Asha Kumari " + appNo,
			Email:         appNo + "@example.com",
			Mobile:        "9876543210",
			SelectedPosts: []string{"Supervisor"},
		},
		Documents: map[domain.DocumentKind]string{domain.DocumentPhoto: "mem://registrations/" + appNo + "/photo.jpg"},
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	}
}

// RunRegistryContract exercises newRegistry against the repository contracts.
// Each subtest gets a fresh registry.
func RunRegistryContract(t *testing.T, newRegistry func(t *testing.T) repositories.Registry) {
	t.Helper()
	base := time.Date(2025, time.February, 10, 9, 0, 0, 0, time.UTC)

	t.Run("enroll balances load", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(2, 5), Shifts(3, 5)))

		for i := 0; i < 6; i++ {
			_, err := reg.Registrations().Enroll(ctx, Registration(fmt.Sprintf("CBT10000%d", i), base.Add(time.Duration(i)*time.Minute)))
			require.NoError(t, err)
		}
		centers, shifts, err := reg.Pools().Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, centers[0].CurrentBookings)
		require.Equal(t, 3, centers[1].CurrentBookings)
		for _, s := range shifts {
			require.Equal(t, 2, s.CurrentBookings)
		}
	})

	t.Run("enroll records assignment", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(1, 2), Shifts(1, 2)))

		got, err := reg.Registrations().Enroll(ctx, Registration("CBT200001", base))
		require.NoError(t, err)
		require.Equal(t, "center-1", got.CenterID)
		require.Equal(t, "Center 1", got.ExamCenter)
		require.Equal(t, 1, got.ShiftID)
		require.Equal(t, "Shift 1 (10:00 AM - 12:00 PM, 15 March 2025)", got.ExamShift)

		stored, err := reg.Registrations().FindByApplicationNumber(ctx, "CBT200001")
		require.NoError(t, err)
		require.Equal(t, got.ExamShift, stored.ExamShift)
		require.Equal(t, "mem://registrations/CBT200001/photo.jpg", stored.Documents[domain.DocumentPhoto])
		require.False(t, stored.PaymentStatus)
	})

	t.Run("duplicate application number books nothing", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(1, 5), Shifts(1, 5)))

		_, err := reg.Registrations().Enroll(ctx, Registration("CBT300001", base))
		require.NoError(t, err)
		_, err = reg.Registrations().Enroll(ctx, Registration("CBT300001", base))
		require.True(t, repositories.HasCode(err, repositories.RegistrationErrorDuplicate), "got %v", err)

		centers, shifts, err := reg.Pools().Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, centers[0].CurrentBookings)
		require.Equal(t, 1, shifts[0].CurrentBookings)
	})

	t.Run("exhaustion leaves pools untouched", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(1, 1), Shifts(1, 3)))

		_, err := reg.Registrations().Enroll(ctx, Registration("CBT400001", base))
		require.NoError(t, err)
		_, err = reg.Registrations().Enroll(ctx, Registration("CBT400002", base))
		require.ErrorIs(t, err, allocation.ErrNoAvailableCenters)

		_, shifts, err := reg.Pools().Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, shifts[0].CurrentBookings)
		_, err = reg.Registrations().FindByApplicationNumber(ctx, "CBT400002")
		require.True(t, repositories.IsNotFound(err))
	})

	t.Run("shift exhaustion", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(1, 3), Shifts(1, 1)))

		_, err := reg.Registrations().Enroll(ctx, Registration("CBT500001", base))
		require.NoError(t, err)
		_, err = reg.Registrations().Enroll(ctx, Registration("CBT500002", base))
		require.ErrorIs(t, err, allocation.ErrNoAvailableShifts)

		centers, _, err := reg.Pools().Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, centers[0].CurrentBookings)
	})

	t.Run("concurrent enroll never overbooks", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(2, 3), Shifts(2, 3)))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			contended int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := reg.Registrations().Enroll(ctx, Registration(fmt.Sprintf("CBT6%05d", i), base))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case allocation.IsExhausted(err):
				case repositories.IsConflict(err) || repositories.IsUnavailable(err):
					// Backends with optimistic transactions may give up under contention.
					contended++
				default:
					t.Errorf("unexpected enroll error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if contended == 0 {
			require.Equal(t, 6, ok)
		}

		centers, shifts, err := reg.Pools().Snapshot(ctx)
		require.NoError(t, err)
		centerTotal, shiftTotal := 0, 0
		for _, c := range centers {
			require.LessOrEqual(t, c.CurrentBookings, c.Capacity)
			centerTotal += c.CurrentBookings
		}
		for _, s := range shifts {
			require.LessOrEqual(t, s.CurrentBookings, s.Capacity)
			shiftTotal += s.CurrentBookings
		}
		require.Equal(t, ok, centerTotal)
		require.Equal(t, ok, shiftTotal)

		listed, err := reg.Registrations().List(ctx, domain.RegistrationFilter{})
		require.NoError(t, err)
		require.Len(t, listed, ok)
	})

	t.Run("seed keeps existing counts", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(1, 5), Shifts(1, 5)))
		_, err := reg.Registrations().Enroll(ctx, Registration("CBT700001", base))
		require.NoError(t, err)

		require.NoError(t, reg.Pools().Seed(ctx, Centers(2, 5), Shifts(1, 5)))
		centers, _, err := reg.Pools().Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, centers, 2)
		require.Equal(t, 1, centers[0].CurrentBookings)
		require.Equal(t, 0, centers[1].CurrentBookings)
	})

	t.Run("list search and order", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(1, 10), Shifts(1, 10)))
		for i, appNo := range []string{"CBT800001", "CBT800002", "CBT800003"} {
			_, err := reg.Registrations().Enroll(ctx, Registration(appNo, base.Add(time.Duration(i)*time.Hour)))
			require.NoError(t, err)
		}

		all, err := reg.Registrations().List(ctx, domain.RegistrationFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, "CBT800003", all[0].ApplicationNumber)

		limited, err := reg.Registrations().List(ctx, domain.RegistrationFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)

		found, err := reg.Registrations().List(ctx, domain.RegistrationFilter{Search: "cbt800002@EXAMPLE"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, "CBT800002", found[0].ApplicationNumber)
	})

	t.Run("attach document and mark paid", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(1, 2), Shifts(1, 2)))
		_, err := reg.Registrations().Enroll(ctx, Registration("CBT900001", base))
		require.NoError(t, err)

		updated, err := reg.Registrations().AttachDocument(ctx, "CBT900001", domain.DocumentIDProof, "mem://registrations/x/idProof.pdf", base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, "mem://registrations/x/idProof.pdf", updated.Documents[domain.DocumentIDProof])
		require.Equal(t, "mem://registrations/CBT900001/photo.jpg", updated.Documents[domain.DocumentPhoto])

		paidAt := base.Add(2 * time.Hour)
		paid, changed, err := reg.Registrations().MarkPaid(ctx, "CBT900001", "pay_ABC123456789", paidAt)
		require.NoError(t, err)
		require.True(t, changed)
		require.True(t, paid.PaymentStatus)
		require.True(t, paid.TransactionDate.Equal(paidAt))

		again, changed, err := reg.Registrations().MarkPaid(ctx, "CBT900001", "pay_OTHER", paidAt.Add(time.Hour))
		require.NoError(t, err)
		require.False(t, changed)
		require.Equal(t, "pay_ABC123456789", again.TransactionNumber)

		_, _, err = reg.Registrations().MarkPaid(ctx, "CBT999999", "pay_X", paidAt)
		require.True(t, repositories.IsNotFound(err))
		_, err = reg.Registrations().AttachDocument(ctx, "CBT999999", domain.DocumentIDProof, "x", paidAt)
		require.True(t, repositories.IsNotFound(err))
	})

	t.Run("delete keeps seats booked", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(1, 2), Shifts(1, 2)))
		_, err := reg.Registrations().Enroll(ctx, Registration("CBT110001", base))
		require.NoError(t, err)

		removed, err := reg.Registrations().Delete(ctx, "CBT110001")
		require.NoError(t, err)
		require.Equal(t, "CBT110001", removed.ApplicationNumber)
		_, err = reg.Registrations().FindByApplicationNumber(ctx, "CBT110001")
		require.True(t, repositories.IsNotFound(err))
		_, err = reg.Registrations().Delete(ctx, "CBT110001")
		require.True(t, repositories.IsNotFound(err))

		centers, _, err := reg.Pools().Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, centers[0].CurrentBookings)
	})

	t.Run("delete removes only the matching registration", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		require.NoError(t, reg.Pools().Seed(ctx, Centers(2, 5), Shifts(2, 5)))
		appNos := []string{"CBT130001", "CBT130002", "CBT130003"}
		enrolled := make(map[string]domain.Registration, len(appNos))
		for i, appNo := range appNos {
			r, err := reg.Registrations().Enroll(ctx, Registration(appNo, base.Add(time.Duration(i)*time.Minute)))
			require.NoError(t, err)
			enrolled[appNo] = r
		}

		_, err := reg.Registrations().Delete(ctx, "CBT130002")
		require.NoError(t, err)

		listed, err := reg.Registrations().List(ctx, domain.RegistrationFilter{})
		require.NoError(t, err)
		require.Len(t, listed, 2)
		require.Equal(t, "CBT130003", listed[0].ApplicationNumber)
		require.Equal(t, "CBT130001", listed[1].ApplicationNumber)

		for _, appNo := range []string{"CBT130001", "CBT130003"} {
			got, err := reg.Registrations().FindByApplicationNumber(ctx, appNo)
			require.NoError(t, err)
			want := enrolled[appNo]
			require.Equal(t, want.PersonalInfo.Name, got.PersonalInfo.Name)
			require.Equal(t, want.ExamCenter, got.ExamCenter)
			require.Equal(t, want.ExamShift, got.ExamShift)
			require.Equal(t, want.Documents, got.Documents)
		}
		_, err = reg.Registrations().FindByApplicationNumber(ctx, "CBT130002")
		require.True(t, repositories.IsNotFound(err))
	})

	t.Run("payment orders", func(t *testing.T) {
		ctx := context.Background()
		reg := newRegistry(t)
		orders := reg.PaymentOrders()
		for i := 0; i < 3; i++ {
			require.NoError(t, orders.Insert(ctx, domain.PaymentOrder{
				ID:                fmt.Sprintf("order_%d", i),
				ApplicationNumber: "CBT120001",
				Provider:          "razorpay",
				Union:             domain.UnionTirhut,
				Amount:            50000,
				Currency:          "INR",
				Receipt:           "CBT120001",
				Status:            domain.PaymentOrderCreated,
				CreatedAt:         base.Add(time.Duration(i) * time.Minute),
			}))
		}
		err := orders.Insert(ctx, domain.PaymentOrder{ID: "order_0", Status: domain.PaymentOrderCreated, CreatedAt: base})
		require.True(t, repositories.IsConflict(err), "got %v", err)

		got, err := orders.FindByID(ctx, "order_1")
		require.NoError(t, err)
		require.Equal(t, int64(50000), got.Amount)
		_, err = orders.FindByID(ctx, "order_missing")
		require.True(t, repositories.IsNotFound(err))

		paid, err := orders.UpdateStatus(ctx, "order_0", domain.PaymentOrderPaid, "pay_1", base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, domain.PaymentOrderPaid, paid.Status)
		require.NotNil(t, paid.PaidAt)

		still, err := orders.UpdateStatus(ctx, "order_0", domain.PaymentOrderFailed, "", base.Add(2*time.Hour))
		require.NoError(t, err)
		require.Equal(t, domain.PaymentOrderPaid, still.Status)

		open, err := orders.ListOpenBefore(ctx, base.Add(10*time.Minute), 1)
		require.NoError(t, err)
		require.Len(t, open, 1)
		require.Equal(t, "order_1", open[0].ID)
	})
}
