package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error classifies a Firestore failure for the repository layer. It
// satisfies repositories.RepositoryError.
type Error struct {
	Op   string
	Code codes.Code
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e.Code == codes.NotFound }

// IsConflict reports a write that lost against existing data or a concurrent transaction.
func (e *Error) IsConflict() bool {
	switch e.Code {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return true
	}
	return false
}

// IsUnavailable reports a transient backend outage.
func (e *Error) IsUnavailable() bool {
	switch e.Code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// WrapError tags err with op and its gRPC code. Context errors and errors
// that already carry a domain meaning (no gRPC status) pass through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return &Error{Op: op, Code: st.Code(), Err: err}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// IsNotFound reports whether err is a Firestore NotFound, wrapped or raw.
func IsNotFound(err error) bool {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.IsNotFound()
	}
	return isNotFound(err)
}

// IsAlreadyExists reports whether err is a Create on an existing document.
func IsAlreadyExists(err error) bool {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Code == codes.AlreadyExists
	}
	return status.Code(err) == codes.AlreadyExists
}
