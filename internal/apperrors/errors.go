package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	KindNotFound              Kind = "NOT_FOUND"
	KindInvalidState          Kind = "INVALID_STATE"
	KindInsufficientInventory Kind = "INSUFFICIENT_INVENTORY"
	KindInsufficientPayment   Kind = "INSUFFICIENT_PAYMENT"
	KindDuplicateKey          Kind = "DUPLICATE_KEY"
	KindValidation            Kind = "VALIDATION_ERROR"
	KindInternal              Kind = "INTERNAL"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState          = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory, Message: "insufficient inventory"}
	ErrInsufficientPayment   = &Error{Kind: KindInsufficientPayment, Message: "insufficient payment"}
	ErrDuplicateKey          = &Error{Kind: KindDuplicateKey, Message: "duplicate key"}
	ErrValidation            = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrInternal              = &Error{Kind: KindInternal, Message: "internal error"}
)

// Error is the categorised error returned by every domain package.
// Message is safe to show to API clients; Err carries the internal cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels compare by category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) *Error {
	return newf(KindNotFound, op, format, args...)
}

func InvalidState(op, format string, args ...any) *Error {
	return newf(KindInvalidState, op, format, args...)
}

func InsufficientInventory(op, format string, args ...any) *Error {
	return newf(KindInsufficientInventory, op, format, args...)
}

func InsufficientPayment(op, format string, args ...any) *Error {
	return newf(KindInsufficientPayment, op, format, args...)
}

func DuplicateKey(op, format string, args ...any) *Error {
	return newf(KindDuplicateKey, op, format, args...)
}

func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

// Internal wraps an infrastructure failure. A nil err yields nil.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// Wrap attaches kind and op to err while keeping it unwrappable.
func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain.
// Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// PublicMessage returns the message safe for clients.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "internal server error"
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindInsufficientInventory, KindDuplicateKey:
		return http.StatusConflict
	case KindInsufficientPayment:
		return http.StatusPaymentRequired
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
