package calendar

import (
	"errors"
	"fmt"
)

// Error types
type ErrorType string

const (
	ErrNotFound         ErrorType = "not_found"
	ErrInvalidInput     ErrorType = "invalid_input"
	ErrInvalidOperation ErrorType = "invalid_operation"
)

// Error represents a calendar-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError reports whether err is (or wraps) an *Error of the given type.
func IsError(err error, t ErrorType) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
