package limiter

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedValue is returned when stored state cannot be decoded,
	// or when an Instance is downcast to the wrong variant. It wraps the
	// decode diagnostic when one is available.
	ErrMalformedValue = errors.New("limiter: malformed value")
	// ErrRateExceeded is returned when the policy denies a request. It is
	// a normal control-flow outcome, not a defect: callers branch on it
	// (e.g. map it to a throttling response), they should not log it as
	// an error.
	ErrRateExceeded = errors.New("limiter: rate exceeded")
	// ErrBackend wraps failures reported by the state store (timeout,
	// unavailability, corruption at rest). The underlying error is
	// preserved for errors.Is/As.
	ErrBackend = errors.New("limiter: backend error")
	// ErrBackendConflict is returned when an optimistic-concurrency write
	// was rejected because the stored value changed between read and
	// write. The caller must re-read and repeat the whole decide cycle;
	// it must never be treated as "request denied".
	ErrBackendConflict = errors.New("limiter: backend value conflict")
)

func malformedValue(cause error) error {
	if cause == nil {
		return ErrMalformedValue
	}
	return fmt.Errorf("%w: %w", ErrMalformedValue, cause)
}

func backendError(cause error) error {
	if cause == nil {
		return ErrBackend
	}
	return fmt.Errorf("%w: %w", ErrBackend, cause)
}
