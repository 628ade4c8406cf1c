// File: http1/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error values of the HTTP/1.x message layer.

package http1

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned by ReadRequest for any start line, header line
// or framing violation, including a disconnect in the middle of a line.
var ErrMalformed = errors.New("http1: malformed request")

// ErrBodyTooLarge is the out-of-resource condition raised when a declared
// Content-Length exceeds the caller supplied maximum.
var ErrBodyTooLarge = errors.New("http1: request body exceeds limit")

// StatusError is an error that carries the HTTP status it should be
// answered with.
type StatusError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http1: %d %s", e.Code, StatusText(e.Code))
	}
	return fmt.Sprintf("http1: %d %s: %s", e.Code, StatusText(e.Code), e.Message)
}

// NewStatusError creates a StatusError for code with an optional message.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

// Body retrieval failures.
var (
	ErrLengthRequired = &StatusError{Code: StatusLengthRequired}
	ErrBadRequest     = &StatusError{Code: StatusBadRequest, Message: "short request body"}
)

// StatusCode extracts the status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
