// Package errors defines the error taxonomy shared by every eventqual component.
package errors

import (
	"errors"
	"fmt"
)

// Code is a stable error code string.
type Code string

const (
	// EExternalUnavailable: model, search or fetch provider unreachable or refused auth.
	EExternalUnavailable Code = "E_EXTERNAL_UNAVAILABLE"
	// EStoreUnavailable: the knowledge store could not serve a query or upsert.
	EStoreUnavailable Code = "E_STORE_UNAVAILABLE"
	// ESearchFailed: the search provider answered but the search did not succeed.
	ESearchFailed Code = "E_SEARCH_FAILED"
	// EMalformedResponse: unparseable model output or unexpected provider payload.
	EMalformedResponse Code = "E_MALFORMED_RESPONSE"
	// ERunFailure: unexpected failure caught at a run entrypoint.
	ERunFailure Code = "E_RUN_FAILURE"
	// EInvalidInput: caller supplied an unusable argument.
	EInvalidInput Code = "E_INVALID_INPUT"
)

// Error is the standard error type. Op names the failing operation
// ("knowledge.Query", "websearch.brightdata").
type Error struct {
	Code  Code
	Op    string
	Msg   string
	Cause error
}

// Error returns "CODE op: message: cause".
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with no cause.
func New(code Code, op, msg string) error {
	return &Error{Code: code, Op: op, Msg: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, op, format string, args ...interface{}) error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap wraps err under code. A nil err returns nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Cause: err}
}

// CodeOf extracts the outermost code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether any Error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}
