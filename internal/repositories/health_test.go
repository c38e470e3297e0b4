package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

func TestDependencyHealthAllOK(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "storage", Check: func(context.Context) error { return nil }},
	}, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK || len(report.Checks) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !report.Checks["firestore"].CheckedAt.Equal(now) {
		t.Fatalf("expected injected clock, got %s", report.Checks["firestore"].CheckedAt)
	}
}

func TestDependencyHealthOptionalFailureDegrades(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "redis", Optional: true, Check: func(context.Context) error { return errors.New("connection refused") }},
	}, nil)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	report, _ := repo.Collect(context.Background())
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Checks["redis"].Error != "connection refused" {
		t.Fatalf("unexpected redis check %+v", report.Checks["redis"])
	}
}

func TestDependencyHealthRequiredTimeoutFails(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Timeout: 10 * time.Millisecond, Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}, nil)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	report, _ := repo.Collect(context.Background())
	if report.Status != domain.HealthStatusError || report.Checks["firestore"].Detail != "timeout" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestDependencyHealthRejectsUnnamedCheck(t *testing.T) {
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Check: func(context.Context) error { return nil }}}, nil); err == nil {
		t.Fatal("expected error for unnamed check")
	}
}

func TestErrorHelpers(t *testing.T) {
	err := NewRegistrationError("registrations.get", RegistrationErrorNotFound, "", nil)
	if !IsNotFound(err) || IsConflict(err) {
		t.Fatalf("unexpected classification for %v", err)
	}
	dup := NewRegistrationError("registrations.enroll", RegistrationErrorDuplicate, "application number taken", nil)
	if !IsConflict(dup) || !HasCode(dup, RegistrationErrorDuplicate) {
		t.Fatalf("unexpected classification for %v", dup)
	}
	if dup.Error() != "registrations.enroll: application number taken" {
		t.Fatalf("unexpected message %q", dup.Error())
	}
}
