// Package jobs tracks the lifecycle of search executions.
//
// Valid state graph:
//
//	pending ──► running ──► completed
//	   │           │
//	   └───────────┴──────► failed
//
// completed and failed are terminal states.
package jobs

import (
	"fmt"

	"github.com/leadscout/leadscout/internal/models"
)

// validTransitions lists every allowed (from -> to) pair.
var validTransitions = map[models.JobState][]models.JobState{
	models.JobPending: {models.JobRunning, models.JobFailed},
	models.JobRunning: {models.JobCompleted, models.JobFailed},
	// completed and failed are terminal, no outgoing transitions
}

// ParseState converts a raw string to a JobState
func ParseState(s string) (models.JobState, error) {
	st := models.JobState(s)
	switch st {
	case models.JobPending, models.JobRunning, models.JobCompleted, models.JobFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown job state %q", models.ErrValidation, s)
}

// IsTransitionAllowed returns true when moving from -> to is permitted
func IsTransitionAllowed(from, to models.JobState) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidState for a forbidden transition
func ValidateTransition(from, to models.JobState) error {
	if !IsTransitionAllowed(from, to) {
		return fmt.Errorf("%w: cannot move job from %s to %s", models.ErrInvalidState, from, to)
	}
	return nil
}
