package lockmgr

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned (wrapped) when a persisted lock document cannot be decoded
// or does not pass validation. It is an infrastructure failure, not a routine outcome.
var ErrMalformedRecord = errors.New("malformed lock record")

// ValidationError reports malformed input. It is returned before any store access.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
