package service

import (
	"errors"
	"fmt"
)

// Error is a domain error returned by service methods.
// Handlers map these to appropriate HTTP responses.
type Error struct {
	Kind    ErrorKind
	Code    string // machine-readable error code (e.g., "nonce_mismatch", "not_found")
	Message string // human-readable message
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorKind classifies domain errors for HTTP status mapping.
type ErrorKind int

const (
	ErrBadRequest        ErrorKind = iota // 400
	ErrUnauthorized                       // 403
	ErrNotFound                           // 404
	ErrAlreadyExists                      // 409
	ErrNonceMismatch                      // 409
	ErrInsufficientFunds                  // 422
	ErrInvalidState                       // 409
	ErrSignatureInvalid                   // 403
	ErrTimeNotReached                     // 425
	ErrPaused                             // 423
	ErrInternal                           // 500
	ErrUnavailable                        // 503
	ErrBadGateway                         // 502
)

var kindNames = map[ErrorKind]string{
	ErrBadRequest:        "bad_request",
	ErrUnauthorized:      "unauthorized",
	ErrNotFound:          "not_found",
	ErrAlreadyExists:     "already_exists",
	ErrNonceMismatch:     "nonce_mismatch",
	ErrInsufficientFunds: "insufficient_funds",
	ErrInvalidState:      "invalid_state",
	ErrSignatureInvalid:  "signature_invalid",
	ErrTimeNotReached:    "time_not_reached",
	ErrPaused:            "paused",
	ErrInternal:          "internal",
	ErrUnavailable:       "unavailable",
	ErrBadGateway:        "bad_gateway",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindOf returns the kind of a service error, or ErrInternal for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

func NewBadRequest(code, message string) *Error {
	return &Error{Kind: ErrBadRequest, Code: code, Message: message}
}

func NewUnauthorized(code, message string) *Error {
	return &Error{Kind: ErrUnauthorized, Code: code, Message: message}
}

func NewNotFound(code, message string) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Message: message}
}

func NewAlreadyExists(code, message string) *Error {
	return &Error{Kind: ErrAlreadyExists, Code: code, Message: message}
}

func NewNonceMismatch(expected, got uint64) *Error {
	return &Error{Kind: ErrNonceMismatch, Code: "nonce_mismatch",
		Message: fmt.Sprintf("expected nonce %d, got %d", expected, got)}
}

func NewInsufficientFunds(code, message string) *Error {
	return &Error{Kind: ErrInsufficientFunds, Code: code, Message: message}
}

func NewInvalidState(code, message string) *Error {
	return &Error{Kind: ErrInvalidState, Code: code, Message: message}
}

func NewSignatureInvalid(message string) *Error {
	return &Error{Kind: ErrSignatureInvalid, Code: "signature_invalid", Message: message}
}

func NewTimeNotReached(code, message string) *Error {
	return &Error{Kind: ErrTimeNotReached, Code: code, Message: message}
}

func NewPaused() *Error {
	return &Error{Kind: ErrPaused, Code: "paused", Message: "Fund-moving operations are paused"}
}

func NewInternal(code, message string) *Error {
	return &Error{Kind: ErrInternal, Code: code, Message: message}
}

func NewUnavailable(code, message string) *Error {
	return &Error{Kind: ErrUnavailable, Code: code, Message: message}
}

func NewBadGateway(code, message string) *Error {
	return &Error{Kind: ErrBadGateway, Code: code, Message: message}
}
