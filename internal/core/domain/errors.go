package domain

import "errors"

// Kind is the stable, machine-readable class of an Error.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindAlreadyExists      Kind = "ALREADY_EXISTS"
	KindInsufficientStock  Kind = "INSUFFICIENT_STOCK"
	KindInvalidState       Kind = "INVALID_STATE"
	KindAuth               Kind = "AUTH"
	KindForbidden          Kind = "FORBIDDEN"
	KindRateLimit          Kind = "RATE_LIMIT"
	KindTransientStore     Kind = "TRANSIENT_STORE"
	KindDeliveryFailed     Kind = "DELIVERY_FAILED"
	KindOTPNotFound        Kind = "OTP_NOT_FOUND"
	KindOTPExpired         Kind = "OTP_EXPIRED"
	KindOTPTooManyAttempts Kind = "OTP_TOO_MANY_ATTEMPTS"
	KindOTPMismatch        Kind = "OTP_MISMATCH"
)

// Error is the error type returned by the core. Two Errors match under
// errors.Is when their kinds are equal, so the sentinels below can be used
// to test the class of any error produced with NewError.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Details: details, cause: e.cause}
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates an Error of the given kind that unwraps to cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

var (
	ErrValidation         = NewError(KindValidation, "invalid input")
	ErrNotFound           = NewError(KindNotFound, "resource not found")
	ErrAlreadyExists      = NewError(KindAlreadyExists, "resource already exists")
	ErrInsufficientStock  = NewError(KindInsufficientStock, "insufficient stock")
	ErrInvalidState       = NewError(KindInvalidState, "operation not allowed in current state")
	ErrAuth               = NewError(KindAuth, "authentication required")
	ErrForbidden          = NewError(KindForbidden, "insufficient permissions")
	ErrRateLimit          = NewError(KindRateLimit, "too many requests")
	ErrTransientStore     = NewError(KindTransientStore, "storage temporarily unavailable")
	ErrDeliveryFailed     = NewError(KindDeliveryFailed, "notification delivery failed")
	ErrOTPNotFound        = NewError(KindOTPNotFound, "no active code for this email")
	ErrOTPExpired         = NewError(KindOTPExpired, "code has expired")
	ErrOTPTooManyAttempts = NewError(KindOTPTooManyAttempts, "too many failed attempts, request a new code")
	ErrOTPMismatch        = NewError(KindOTPMismatch, "incorrect code")
)

// KindOf reports the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func Validation(message string) *Error {
	return NewError(KindValidation, message)
}

func NotFound(message string) *Error {
	return NewError(KindNotFound, message)
}

func InvalidState(message string) *Error {
	return NewError(KindInvalidState, message)
}
