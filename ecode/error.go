package ecode

import (
	"errors"
	"fmt"
)

// Error is a domain error carrying a stable code.
type Error struct {
	Code    int
	Message string
	cause   error
}

// New creates an error with the given code and message.
func New(code int, message string) *Error {
	if message == "" {
		message = Text(code)
	}
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code int, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code int, err error, message string) *Error {
	e := New(code, message)
	e.cause = err
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Code extracts the code of the outermost *Error in the chain.
// Errors without a code are reported as ServerErr, nil as OK.
func Code(err error) int {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ServerErr
}

// Is reports whether err carries the given code.
func Is(err error, code int) bool {
	return err != nil && Code(err) == code
}

// Message returns the human-readable message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return Text(OK)
	}
	return Text(ServerErr)
}
