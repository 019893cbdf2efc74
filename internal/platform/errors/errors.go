package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNetwork          Kind = "network"
	KindHTTP             Kind = "http"
	KindAuth             Kind = "auth"
	KindRefreshExhausted Kind = "refresh_exhausted"
	KindMessageParse     Kind = "message_parse"
	KindNavigationDenied Kind = "navigation_denied"
	KindProvider         Kind = "provider"
	KindTimeout          Kind = "timeout"
	KindConfig           Kind = "config"
	KindStorage          Kind = "storage"
	KindTransport        Kind = "transport"
	KindBootstrap        Kind = "bootstrap"
	KindUnknown          Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Status is the HTTP status for KindHTTP and KindAuth, zero otherwise.
	Status int
	Cause  error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s:%s]", e.Kind, e.Op)
	if e.Status != 0 {
		prefix = fmt.Sprintf("[%s:%s:%d]", e.Kind, e.Op, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap tags err with kind. An error that is already typed keeps its original
// classification.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// Reclassify wraps err with kind even when err already carries a Kind.
// RefreshExhausted uses it to sit on top of the refresh call's own error.
func Reclassify(kind Kind, op, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// HTTPStatus builds a KindHTTP error, or KindAuth for 401.
func HTTPStatus(op string, status int, message string) *Error {
	kind := KindHTTP
	if status == 401 {
		kind = KindAuth
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Status:  status,
	}
}

// IsKind checks whether the outermost typed error in the chain matches kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}

// HasKind reports whether any typed error in the chain matches kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		var target *Error
		if !errors.As(err, &target) {
			return false
		}
		if target.Kind == kind {
			return true
		}
		err = target.Cause
	}
	return false
}

// KindOf returns the kind of the outermost typed error, or KindUnknown.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// StatusOf returns the HTTP status carried by the outermost typed error.
func StatusOf(err error) int {
	var target *Error
	if errors.As(err, &target) {
		return target.Status
	}
	return 0
}
