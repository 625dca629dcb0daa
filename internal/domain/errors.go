package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the billing core wraps exactly one of
// these so callers can classify it with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrClientNotFound  = newError(ErrNotFound, "client not found")
	ErrProjectNotFound = newError(ErrNotFound, "project not found")
	ErrProjectInactive = newError(ErrBadRequest, "project is inactive or archived")

	ErrSessionNotFound      = newError(ErrNotFound, "time session not found")
	ErrSessionActive        = newError(ErrConflict, "another time session is already active")
	ErrSessionRunning       = newError(ErrBadRequest, "time session is running")
	ErrSessionStopped       = newError(ErrBadRequest, "time session is already stopped")
	ErrSessionNotStopped    = newError(ErrBadRequest, "time session is not stopped")
	ErrSessionBilled        = newError(ErrBadRequest, "time session is already billed")
	ErrSessionNotBillable   = newError(ErrBadRequest, "time session is not billable")
	ErrSessionChanged       = newError(ErrConflict, "time session was modified concurrently")
	ErrInvalidTransition    = newError(ErrBadRequest, "invalid time session transition")
	ErrClientMismatch       = newError(ErrBadRequest, "time sessions belong to a different client")
	ErrDuplicateSessionID   = newError(ErrBadRequest, "time session listed more than once")
	ErrNoSessionsSelected   = newError(ErrBadRequest, "at least one time session is required")
	ErrInvoiceNotFound      = newError(ErrNotFound, "invoice not found")
	ErrInvoiceItemNotFound  = newError(ErrNotFound, "invoice item not found")
	ErrInvoicePaid          = newError(ErrBadRequest, "invoice is paid")
	ErrInvoiceCancelled     = newError(ErrBadRequest, "invoice is cancelled")
	ErrInvoiceHasPayments   = newError(ErrBadRequest, "invoice has payments")
	ErrInvoiceNoItems       = newError(ErrBadRequest, "invoice requires at least one item")
	ErrInvalidInvoiceStatus = newError(ErrBadRequest, "invalid invoice status change")
	ErrSessionDerivedItem   = newError(ErrBadRequest, "invoice item is derived from time sessions")
	ErrTotalBelowPaid       = newError(ErrBadRequest, "invoice total cannot drop below amount already paid")
	ErrPaymentNotFound      = newError(ErrNotFound, "payment not found")
	ErrOverpayment          = newError(ErrBadRequest, "payment exceeds outstanding balance")
	ErrInvalidAmount        = newError(ErrBadRequest, "amount must be positive")
)

// kindError carries a user-facing message while unwrapping to its kind.
type kindError struct {
	kind error
	msg  string
}

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// NotFoundf returns a not-found error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return newError(ErrNotFound, fmt.Sprintf(format, args...))
}

// BadRequestf returns a bad-request error with a formatted message.
func BadRequestf(format string, args ...any) error {
	return newError(ErrBadRequest, fmt.Sprintf(format, args...))
}

// Conflictf returns a conflict error with a formatted message.
func Conflictf(format string, args ...any) error {
	return newError(ErrConflict, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsBadRequest reports whether err is a validation or business-rule error.
func IsBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }

// IsConflict reports whether err is a concurrent-state violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
