package errors

import "errors"

// Sentinels for domain errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrCallCreation = errors.New("call creation failed")
	ErrPlayback     = errors.New("media playback failed")
	ErrAssetRead    = errors.New("audio asset read failed")
)

// ValidationError carries a caller-facing message and matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Unwrap ties the error to the ErrValidation sentinel.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation builds a ValidationError.
func Validation(message string) error {
	return &ValidationError{Message: message}
}
