// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP rendering.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindInvalidTransition
	KindInsufficientStock
	KindInvalidSignature
	KindNotInWishlist
	KindConflict
	KindGateway
	KindOutcomeUnknown
)

var kindNames = map[Kind]string{
	KindInternal:          "Internal",
	KindValidation:        "ValidationError",
	KindNotFound:          "NotFound",
	KindForbidden:         "Forbidden",
	KindUnauthorized:      "Unauthorized",
	KindInvalidTransition: "InvalidTransition",
	KindInsufficientStock: "InsufficientStock",
	KindInvalidSignature:  "InvalidSignature",
	KindNotInWishlist:     "NotInWishlist",
	KindConflict:          "Conflict",
	KindGateway:           "GatewayError",
	KindOutcomeUnknown:    "OutcomeUnknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// HTTPStatus maps a kind onto the status code rendered at the boundary.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidTransition, KindInsufficientStock, KindInvalidSignature, KindNotInWishlist:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	case KindOutcomeUnknown:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so sentinels match any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrInvalidSignature  = &Error{Kind: KindInvalidSignature, Message: "invalid signature"}
	ErrNotInWishlist     = &Error{Kind: KindNotInWishlist, Message: "product is not in wishlist"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "concurrent modification"}
	ErrGateway           = &Error{Kind: KindGateway, Message: "payment gateway error"}
	ErrOutcomeUnknown    = &Error{Kind: KindOutcomeUnknown, Message: "payment gateway outcome unknown"}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newf(KindValidation, format, args...) }
func NotFound(format string, args ...any) error   { return newf(KindNotFound, format, args...) }
func Forbidden(format string, args ...any) error  { return newf(KindForbidden, format, args...) }
func Unauthorized(format string, args ...any) error {
	return newf(KindUnauthorized, format, args...)
}
func InvalidTransition(format string, args ...any) error {
	return newf(KindInvalidTransition, format, args...)
}
func InsufficientStock(format string, args ...any) error {
	return newf(KindInsufficientStock, format, args...)
}
func InvalidSignature(format string, args ...any) error {
	return newf(KindInvalidSignature, format, args...)
}
func NotInWishlist(format string, args ...any) error { return newf(KindNotInWishlist, format, args...) }
func Conflict(format string, args ...any) error      { return newf(KindConflict, format, args...) }

// Gateway wraps a definite failure reported by (or before reaching) the payment provider.
func Gateway(err error, format string, args ...any) error {
	e := newf(KindGateway, format, args...)
	e.Err = err
	return e
}

// OutcomeUnknown wraps a gateway call whose effect at the provider cannot be determined.
func OutcomeUnknown(err error, format string, args ...any) error {
	e := newf(KindOutcomeUnknown, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Expected reports whether err is one of the documented failure modes callers must handle.
func Expected(err error) bool {
	switch KindOf(err) {
	case KindInsufficientStock, KindInvalidTransition, KindInvalidSignature:
		return true
	}
	return false
}
