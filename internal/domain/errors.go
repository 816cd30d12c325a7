package domain

import (
	"github.com/pkg/errors"
)

// Kind classifies failures so transports can map them without string matching.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUnauthorized    Kind = "unauthorized"
	KindStateViolation  Kind = "state_violation"
	KindUpstreamFailure Kind = "upstream_failure"
	KindExhausted       Kind = "exhausted"
	KindInternal        Kind = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies of a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy of the sentinel carrying a more specific message.
func (e *Error) With(message string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: message, Err: e.Err}
}

// Wrap returns a copy of the sentinel carrying the underlying cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

var (
	ErrMissingParameter = &Error{Kind: KindInvalidInput, Code: "MISSING_PARAMETER", Message: "required parameter is missing"}
	ErrInvalidFormat    = &Error{Kind: KindInvalidInput, Code: "INVALID_FORMAT", Message: "invalid license key format"}
	ErrInvalidTier      = &Error{Kind: KindInvalidInput, Code: "INVALID_TIER", Message: "invalid tier"}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput, Code: "INVALID_INPUT", Message: "invalid input"}
	ErrTestModeDisabled = &Error{Kind: KindInvalidInput, Code: "TEST_MODE_DISABLED", Message: "test orders are disabled while a payment gateway is configured"}

	ErrLicenseNotFound = &Error{Kind: KindNotFound, Code: "LICENSE_NOT_FOUND", Message: "license not found"}
	ErrOrderNotFound   = &Error{Kind: KindNotFound, Code: "ORDER_NOT_FOUND", Message: "order not found"}

	ErrDuplicateKey    = &Error{Kind: KindConflict, Code: "DUPLICATE_KEY", Message: "license key already exists"}
	ErrDuplicateOrder  = &Error{Kind: KindConflict, Code: "DUPLICATE_ORDER", Message: "order already exists"}
	ErrOrderNotPending = &Error{Kind: KindConflict, Code: "ORDER_NOT_PENDING", Message: "order was already completed with another license"}

	ErrUnauthorized = &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: "unauthorized"}

	ErrDeactivated      = &Error{Kind: KindStateViolation, Code: "DEACTIVATED", Message: "license has been deactivated"}
	ErrExpired          = &Error{Kind: KindStateViolation, Code: "EXPIRED", Message: "license has expired"}
	ErrHardwareMismatch = &Error{Kind: KindStateViolation, Code: "HARDWARE_MISMATCH", Message: "license is bound to a different device"}

	ErrUpstream             = &Error{Kind: KindUpstreamFailure, Code: "UPSTREAM_FAILURE", Message: "upstream service failure"}
	ErrPaymentNotCompleted  = &Error{Kind: KindUpstreamFailure, Code: "PAYMENT_NOT_COMPLETED", Message: "payment not completed"}
	ErrGatewayNotConfigured = &Error{Kind: KindUpstreamFailure, Code: "GATEWAY_NOT_CONFIGURED", Message: "payment gateway not configured"}

	ErrKeySpaceExhausted = &Error{Kind: KindExhausted, Code: "KEY_SPACE_EXHAUSTED", Message: "could not generate a unique license key"}
)

// KindOf reports the Kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf reports the machine code of err, empty for untyped errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
