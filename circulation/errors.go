package circulation

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrBookNotFound         = fmt.Errorf("book %w", ErrNotFound)
	ErrLoanNotFound         = fmt.Errorf("loan %w", ErrNotFound)
	ErrReservationNotFound  = fmt.Errorf("reservation %w", ErrNotFound)
	ErrInvalidState         = errors.New("invalid state")
	ErrBookUnavailable      = errors.New("book unavailable")
	ErrDuplicateLoan        = errors.New("duplicate loan")
	ErrDuplicateReservation = errors.New("duplicate reservation")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
	ErrStorage              = errors.New("storage error")
)

// Error is the tagged failure returned by every Engine operation.
type Error struct {
	Op     string
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func fail(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Message is the human readable part of err, without the operation prefix.
func Message(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Detail != "" {
			return ce.Detail
		}
		return ce.Kind.Error()
	}
	return err.Error()
}

// Code maps err to a stable snake_case identifier for API clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrBookNotFound):
		return "book_not_found"
	case errors.Is(err, ErrLoanNotFound):
		return "loan_not_found"
	case errors.Is(err, ErrReservationNotFound):
		return "reservation_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrBookUnavailable):
		return "book_unavailable"
	case errors.Is(err, ErrDuplicateLoan):
		return "duplicate_loan"
	case errors.Is(err, ErrDuplicateReservation):
		return "duplicate_reservation"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	default:
		return "storage_error"
	}
}
