package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/bobbygour30/admitcard/internal/platform/config"
)

func TestErrorClassification(t *testing.T) {
	serialization := fmt.Errorf("enroll: %w", &pq.Error{Code: "40001"})
	if !IsRetryable(serialization) {
		t.Fatal("expected serialization failure to be retryable")
	}
	if !IsRetryable(&pq.Error{Code: "40P01"}) {
		t.Fatal("expected deadlock to be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}

	dup := &pq.Error{Code: "23505", Constraint: "registrations_pkey"}
	if !IsUniqueViolation(dup) || ConstraintName(dup) != "registrations_pkey" {
		t.Fatalf("expected unique violation on registrations_pkey, got %v", dup)
	}
	if ConstraintName(errors.New("plain")) != "" {
		t.Fatal("expected no constraint for plain errors")
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), config.PostgresConfig{}); err == nil {
		t.Fatal("expected error without dsn")
	}
}
