package repositories

import (
	"testing"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

func TestApplyFilter(t *testing.T) {
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	regs := []domain.Registration{
		{ApplicationNumber: "CBT000001", PersonalInfo: domain.PersonalInfo{Name: "Ravi", Email: "ravi@example.com"}, CreatedAt: base},
		{ApplicationNumber: "CBT000002", PersonalInfo: domain.PersonalInfo{Name: "Sita", Email: "sita@example.com"}, CreatedAt: base.Add(time.Hour)},
		{ApplicationNumber: "CBT000003", PersonalInfo: domain.PersonalInfo{Name: "Ravindra", Email: "rk@example.com"}, CreatedAt: base.Add(2 * time.Hour)},
	}
	got := ApplyFilter(append([]domain.Registration(nil), regs...), domain.RegistrationFilter{Search: " RAVI "})
	if len(got) != 2 || got[0].ApplicationNumber != "CBT000003" {
		t.Fatalf("unexpected result %+v", got)
	}
	got = ApplyFilter(append([]domain.Registration(nil), regs...), domain.RegistrationFilter{Limit: 1})
	if len(got) != 1 || got[0].ApplicationNumber != "CBT000003" {
		t.Fatalf("unexpected limited result %+v", got)
	}
}

func TestTransitionOrderPaidIsTerminal(t *testing.T) {
	at := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	order := TransitionOrder(domain.PaymentOrder{Status: domain.PaymentOrderCreated}, domain.PaymentOrderPaid, "pay_1", at)
	if order.Status != domain.PaymentOrderPaid || order.PaidAt == nil || order.PaymentID != "pay_1" {
		t.Fatalf("unexpected order %+v", order)
	}
	if again := TransitionOrder(order, domain.PaymentOrderFailed, "pay_2", at); again.Status != domain.PaymentOrderPaid || again.PaymentID != "pay_1" {
		t.Fatalf("paid order changed: %+v", again)
	}
}
