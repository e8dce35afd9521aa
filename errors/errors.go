package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code classifies an Error
type Code int

const (
	Internal    Code = http.StatusInternalServerError
	NotFound    Code = http.StatusNotFound
	Validation  Code = http.StatusBadRequest
	Unavailable Code = http.StatusServiceUnavailable
)

// Error is a custom error
type Error struct {
	Code     Code     `json:"code"`
	Messages []string `json:"messages"`
	Err      error    `json:"err,omitempty"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	type jsonError struct {
		Code     Code     `json:"code"`
		Messages []string `json:"messages"`
		Err      string   `json:"err,omitempty"`
	}
	je := jsonError{Code: e.Code, Messages: e.Messages}
	if e.Err != nil {
		je.Err = e.Err.Error()
	}
	bits, _ := json.Marshal(je)
	return string(bits)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// RemoveError removes the error from the Error and leaves it's messages and code
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:     e.Code,
		Messages: e.Messages,
		Err:      nil,
	}
}

// New creates a new error with the given code and formatted message
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	e, ok := err.(*Error)
	if !ok {
		return &Error{
			Code:     0,
			Messages: nil,
			Err:      err,
		}
	}
	return e
}

// Is returns true if the error carries the given code
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return Extract(err).Code == code
}

// Wrap wraps the given error and returns a new one. Wrapping a nil error returns nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if ok {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if code > 0 {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}
