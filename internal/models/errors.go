package models

import (
	"errors"
	"fmt"
)

// Error kinds shared across components. Callers wrap them with context and
// match with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrInvalidState         = errors.New("invalid state")
	ErrConnectorUnavailable = errors.New("connector unavailable")
	ErrRateLimited          = errors.New("rate limited")
	ErrAnalyzerUnavailable  = errors.New("analyzer unavailable")
	ErrAnalyzerRejected     = errors.New("analyzer rejected request")
	ErrPersistence          = errors.New("persistence error")
	ErrNotFound             = errors.New("not found")
)

// IsRetryable reports whether err is transient and the call may be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectorUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrAnalyzerUnavailable)
}

// JobFailedError is returned by a run that ended in the failed state. The
// summary carries the partial counts reached before the failure.
type JobFailedError struct {
	Summary *JobSummary
	Cause   error
}

func (e *JobFailedError) Error() string {
	if e.Summary == nil {
		return fmt.Sprintf("job failed: %v", e.Cause)
	}
	return fmt.Sprintf("job %s failed: %v", e.Summary.JobID, e.Cause)
}

func (e *JobFailedError) Unwrap() error {
	return e.Cause
}
