package firestore

import (
	"testing"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

func TestRegistrationDocumentRoundTrip(t *testing.T) {
	paid := time.Date(2025, time.May, 2, 10, 0, 0, 0, domain.IST)
	reg := domain.Registration{
		ApplicationNumber: "CBT123456",
		PersonalInfo: domain.PersonalInfo{
			Union:         domain.UnionTirhut,
			Name:          "Asha Kumari",
			Email:         "Asha@Example.com",
			SelectedPosts: []string{"Supervisor"},
		},
		Documents:         map[domain.DocumentKind]string{domain.DocumentPhoto: "gs://bucket/registrations/x/photo.jpg"},
		CenterID:          "dav-ranchi",
		ShiftID:           2,
		PaymentStatus:     true,
		TransactionNumber: "pay_123",
		TransactionDate:   &paid,
	}

	doc := newRegistrationDocument(reg)
	if doc.SearchEmail != "asha@example.com" || doc.SearchName != "asha kumari" {
		t.Fatalf("unexpected search fields %q %q", doc.SearchName, doc.SearchEmail)
	}
	if doc.PersonalInfo.Union != "Tirhut" {
		t.Fatalf("expected canonical union, got %q", doc.PersonalInfo.Union)
	}
	back := doc.toDomain()
	if back.Documents[domain.DocumentPhoto] != reg.Documents[domain.DocumentPhoto] {
		t.Fatalf("documents lost: %+v", back.Documents)
	}
	if back.TransactionDate == nil || !back.TransactionDate.Equal(paid) || back.TransactionDate.Location() != time.UTC {
		t.Fatalf("unexpected transaction date %v", back.TransactionDate)
	}
}

func TestPaymentOrderDocumentKeepsStatus(t *testing.T) {
	order := domain.PaymentOrder{ID: "order_1", Union: domain.UnionTirhut, Amount: 50000, Status: domain.PaymentOrderFailed}
	back := newPaymentOrderDocument(order).toDomain()
	if back.Status != domain.PaymentOrderFailed || back.Amount != 50000 || back.Union != domain.UnionTirhut {
		t.Fatalf("unexpected order %+v", back)
	}
}
