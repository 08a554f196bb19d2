package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway failure so callers can map it to behavior
// (fail fast, HTTP status, user message) without string matching.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"       // credential or login failure
	KindNetwork    ErrorKind = "network"    // transport-level, no response received
	KindAPI        ErrorKind = "api"        // response received, envelope indicates failure
	KindSignature  ErrorKind = "signature"  // webhook rejected before business logic
	KindValidation ErrorKind = "validation" // missing required fields, amount mismatch
	KindNotFound   ErrorKind = "not_found"  // order could not be resolved
)

type Error struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int // upstream HTTP status, when a response was received
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a gateway error.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
