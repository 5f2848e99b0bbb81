package service

import "errors"

// Failure kinds. Match them with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("duplicate")
)

// Error is a caller-facing failure. Kind is one of the sentinels above and
// Message is safe to show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the failure kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// NotFound returns an ErrNotFound failure.
func NotFound(msg string) *Error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

// Validation returns an ErrValidation failure.
func Validation(msg string) *Error {
	return &Error{Kind: ErrValidation, Message: msg}
}

// Duplicate returns an ErrDuplicate failure.
func Duplicate(msg string) *Error {
	return &Error{Kind: ErrDuplicate, Message: msg}
}
