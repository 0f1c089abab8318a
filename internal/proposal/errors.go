package proposal

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindConfiguration       ErrorKind = "configuration_error"
	KindToolUpstreamFailure ErrorKind = "tool_upstream_failure"
)

type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind onto an HTTP status for transport layers.
func (e *Error) Status() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusUnprocessableEntity
	case KindToolUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewInvalidInput(field, message string) error {
	return &Error{Kind: KindInvalidInput, Field: field, Message: message}
}

func NewConfigurationError(field, message string) error {
	return &Error{Kind: KindConfiguration, Field: field, Message: message}
}

func NewUpstreamFailure(message string, err error) error {
	return &Error{Kind: KindToolUpstreamFailure, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status()
	}
	return http.StatusInternalServerError
}
