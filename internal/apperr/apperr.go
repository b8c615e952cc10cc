// Package apperr holds the error taxonomy shared by the services and the HTTP layer.
package apperr

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrGeneration          = errors.New("generation failed")
	ErrValidation          = errors.New("validation failed")
	ErrStorage             = errors.New("storage failure")
)

// Error pairs a taxonomy kind with a short client-safe message and the underlying cause.
// errors.Is matches both the kind and the cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Msg: msg}
}

func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Msg: msg}
}

func InsufficientCredits() error {
	return &Error{Kind: ErrInsufficientCredits, Msg: "Insufficient credits"}
}

func Generation(msg string, cause error) error {
	return &Error{Kind: ErrGeneration, Msg: msg, Err: cause}
}

// Storage wraps a repository I/O failure. Errors already classified are returned as is.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrStorage, Msg: "storage failure", Err: err}
}

// FromGorm maps gorm.ErrRecordNotFound to NotFound(notFoundMsg) and anything else to Storage.
func FromGorm(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(notFoundMsg)
	}
	return Storage(err)
}

// Message returns the client-safe message carried by err, or fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return fallback
}
