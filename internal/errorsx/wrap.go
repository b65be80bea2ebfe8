package errorsx

import (
	"errors"

	"voicequery/internal/domain"
)

// CodedError wraps an error with a user-facing error code.
type CodedError struct {
	Err  error
	Code domain.ErrorCode
}

func (e CodedError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return e.Err.Error()
}

func (e CodedError) Unwrap() error {
	return e.Err
}

// Wrap attaches a code to an error (no-op if err is nil or already coded).
func Wrap(err error, code domain.ErrorCode) error {
	if err == nil {
		return nil
	}
	var ce CodedError
	if errors.As(err, &ce) {
		return err
	}
	return CodedError{Err: err, Code: code}
}

// Code extracts the error code from an error, if present.
func Code(err error) domain.ErrorCode {
	if err == nil {
		return domain.ErrorCodeUnknown
	}
	var ce CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return domain.ErrorCodeUnknown
}

// HasCode returns true if err carries the given code.
func HasCode(err error, code domain.ErrorCode) bool {
	return Code(err) == code
}
