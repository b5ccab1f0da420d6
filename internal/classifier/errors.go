package classifier

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned when inference is requested while no model
// is loaded. The service keeps running in this degraded state; callers map it
// to a 503.
var ErrModelUnavailable = errors.New("classifier model is not loaded")

// ModelLoadError reports a failed attempt to load the model artifact. It is
// non-fatal: the engine stays usable with an absent handle.
type ModelLoadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ModelLoadError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ModelLoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PreprocessingError reports bad input: the image failed validation or could
// not be decoded. Always carries a human-readable reason for the caller.
type PreprocessingError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *PreprocessingError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PreprocessingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InferenceError reports an unexpected runtime failure during the forward
// pass. Distinct from ErrModelUnavailable, which is raised deliberately.
type InferenceError struct {
	Err error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return fmt.Sprintf("inference failed: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InferenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
