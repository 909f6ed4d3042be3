package http

import (
	"errors"
	"fmt"
)

// ErrorKind tags every failure returned by the client.
type ErrorKind string

const (
	KindInvalidConfig                   ErrorKind = "invalid_config"
	KindConflictingOptions              ErrorKind = "conflicting_options"
	KindNonSerializableValue            ErrorKind = "non_serializable_value"
	KindDNSResolutionFailed             ErrorKind = "dns_resolution_failed"
	KindConnectionError                 ErrorKind = "connection_error"
	KindMaxSizeExceeded                 ErrorKind = "max_size_exceeded"
	KindRequestTimeout                  ErrorKind = "request_timeout"
	KindResponseTimeout                 ErrorKind = "response_timeout"
	KindContentLengthMismatch           ErrorKind = "content_length_mismatch"
	KindUnexpectedStatus                ErrorKind = "unexpected_status"
	KindUnexpectedStatusWithoutLocation ErrorKind = "unexpected_status_without_location"
	KindDecodeFailure                   ErrorKind = "decode_failure"
	KindTooManyRedirects                ErrorKind = "too_many_redirects"
	KindFileWriteFailed                 ErrorKind = "file_write_failed"
)

// Error is the single error type surfaced by Client.Do.
//
// Partial carries whatever payload was buffered or decoded before the failure
// (raw bytes for status and length errors, text for decode failures).
type Error struct {
	Kind       ErrorKind
	Field      string
	StatusCode int
	Message    string
	Partial    any
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += "(" + e.Field + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind, and on Field and StatusCode when the target sets them.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Field != "" && t.Field != e.Field {
		return false
	}
	if t.StatusCode != 0 && t.StatusCode != e.StatusCode {
		return false
	}
	return true
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidURLScheme      = &Error{Kind: KindInvalidConfig, Field: "url.scheme"}
	ErrInvalidURL            = &Error{Kind: KindInvalidConfig, Field: "url"}
	ErrConflictingQuery      = &Error{Kind: KindConflictingOptions, Field: "query"}
	ErrConflictingBodyForm   = &Error{Kind: KindConflictingOptions, Field: "form"}
	ErrNonSerializableBody   = &Error{Kind: KindNonSerializableValue, Field: "body"}
	ErrInvalidConfig         = &Error{Kind: KindInvalidConfig}
	ErrConflictingOptions    = &Error{Kind: KindConflictingOptions}
	ErrNonSerializableValue  = &Error{Kind: KindNonSerializableValue}
	ErrDNSResolution         = &Error{Kind: KindDNSResolutionFailed}
	ErrConnection            = &Error{Kind: KindConnectionError}
	ErrMaxSizeExceeded       = &Error{Kind: KindMaxSizeExceeded}
	ErrRequestTimeout        = &Error{Kind: KindRequestTimeout}
	ErrResponseTimeout       = &Error{Kind: KindResponseTimeout}
	ErrContentLengthMismatch = &Error{Kind: KindContentLengthMismatch}
	ErrUnexpectedStatus      = &Error{Kind: KindUnexpectedStatus}
	ErrMissingLocation       = &Error{Kind: KindUnexpectedStatusWithoutLocation}
	ErrDecodeFailure         = &Error{Kind: KindDecodeFailure}
	ErrTooManyRedirects      = &Error{Kind: KindTooManyRedirects}
	ErrFileWrite             = &Error{Kind: KindFileWriteFailed}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout reports whether err is a request or response timeout.
func IsTimeout(err error) bool {
	k := KindOf(err)
	return k == KindRequestTimeout || k == KindResponseTimeout
}

func invalidf(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidConfig, Field: field, Message: fmt.Sprintf(format, args...)}
}

func conflictf(field, format string, args ...any) *Error {
	return &Error{Kind: KindConflictingOptions, Field: field, Message: fmt.Sprintf(format, args...)}
}
