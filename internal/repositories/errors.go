package repositories

import (
	"errors"
	"fmt"
)

// RegistrationErrorCode enumerates registration store failures.
type RegistrationErrorCode string

const (
	RegistrationErrorNotFound  RegistrationErrorCode = "registration_not_found"
	RegistrationErrorDuplicate RegistrationErrorCode = "registration_duplicate"
	PaymentOrderErrorNotFound  RegistrationErrorCode = "payment_order_not_found"
	PaymentOrderErrorDuplicate RegistrationErrorCode = "payment_order_duplicate"
	// ErrorContended means the store kept aborting the transaction.
	ErrorContended RegistrationErrorCode = "store_contended"
)

// RegistrationError is a typed persistence error. It satisfies RepositoryError.
type RegistrationError struct {
	Op      string
	Code    RegistrationErrorCode
	Message string
	Err     error
}

// NewRegistrationError builds an error with code.
func NewRegistrationError(op string, code RegistrationErrorCode, message string, err error) *RegistrationError {
	if message == "" {
		message = string(code)
	}
	return &RegistrationError{Op: op, Code: code, Message: message, Err: err}
}

func (e *RegistrationError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// IsNotFound implements RepositoryError.
func (e *RegistrationError) IsNotFound() bool {
	return e.Code == RegistrationErrorNotFound || e.Code == PaymentOrderErrorNotFound
}

// IsConflict implements RepositoryError.
func (e *RegistrationError) IsConflict() bool {
	return e.Code == RegistrationErrorDuplicate || e.Code == PaymentOrderErrorDuplicate
}

// IsUnavailable implements RepositoryError.
func (e *RegistrationError) IsUnavailable() bool { return e.Code == ErrorContended }

// HasCode reports whether err carries code.
func HasCode(err error, code RegistrationErrorCode) bool {
	var regErr *RegistrationError
	return errors.As(err, &regErr) && regErr.Code == code
}

// IsNotFound reports whether any RepositoryError in err's chain is a not-found.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether any RepositoryError in err's chain is a conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether any RepositoryError in err's chain is transient.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
