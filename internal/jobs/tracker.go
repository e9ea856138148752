package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/sirupsen/logrus"
)

// RejectedActiveMessage is recorded on jobs refused because another job for
// the same search was still active.
const RejectedActiveMessage = "rejected: another job is active for this search"

// CauseTimeout is recorded on jobs that ran past the job timeout
const CauseTimeout = "timeout"

// FinalizeGrace is the time a job that hit its timeout gets to record its
// outcome before it counts as stale
const FinalizeGrace = 30 * time.Second

// MarkerTTL is the lifetime of an active-job marker for the given job
// timeout. A job older than this is stale: its runner has either finished or
// died, and the tracker fails it on the next submit for the same search.
func MarkerTTL(jobTimeout time.Duration) time.Duration {
	return jobTimeout + FinalizeGrace
}

// TrackerInterface exposes the job state machine to the pipeline
type TrackerInterface interface {
	Submit(ctx context.Context, searchID string, trigger models.TriggerKind) (*models.Job, error)
	Start(ctx context.Context, jobID string) (*models.Job, error)
	Complete(ctx context.Context, jobID string, counts models.JobCounts) (*models.Job, error)
	Fail(ctx context.Context, jobID string, counts models.JobCounts, cause string) (*models.Job, error)
	GetStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
	IsActive(ctx context.Context, searchID string) (bool, error)
}

// Tracker combines the job store with the active-job guard
type Tracker struct {
	store      StoreInterface
	guard      GuardInterface
	staleAfter time.Duration
	now        func() time.Time
}

// Ensure Tracker implements TrackerInterface
var _ TrackerInterface = (*Tracker)(nil)

// NewTracker creates a new job tracker. Jobs still pending or running
// MarkerTTL(jobTimeout) after creation are failed as stale.
func NewTracker(store StoreInterface, guard GuardInterface, jobTimeout time.Duration) *Tracker {
	return &Tracker{
		store:      store,
		guard:      guard,
		staleAfter: MarkerTTL(jobTimeout),
		now:        time.Now,
	}
}

// Submit records a pending job and claims the search for it. When another
// job is active the new job is moved straight to failed and ErrInvalidState
// is returned together with the rejected job.
func (t *Tracker) Submit(ctx context.Context, searchID string, trigger models.TriggerKind) (*models.Job, error) {
	// A stale job may still hold a row in a non-terminal state after its
	// marker expired; fail it before the search can be claimed again
	if _, err := t.failStale(ctx, searchID); err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:       uuid.New().String(),
		SearchID: searchID,
		Trigger:  trigger,
		State:    models.JobPending,
	}

	if err := t.store.Create(ctx, job); err != nil {
		return nil, err
	}

	acquired, err := t.guard.Acquire(ctx, searchID, job.ID)
	if err != nil {
		t.reject(ctx, job, "rejected: "+err.Error())
		return job, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	if !acquired {
		t.reject(ctx, job, RejectedActiveMessage)
		return job, fmt.Errorf("%w: search %s already has an active job", models.ErrInvalidState, searchID)
	}

	logrus.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"search_id": searchID,
		"trigger":   trigger,
	}).Info("Job submitted")

	return job, nil
}

func (t *Tracker) reject(ctx context.Context, job *models.Job, cause string) {
	failed, err := t.store.Transition(ctx, job.ID, models.JobPending, models.JobFailed, Update{
		Error: cause,
		At:    t.now(),
	})
	if err != nil {
		logrus.Errorf("Failed to record rejected job %s: %v", job.ID, err)
		return
	}
	*job = *failed
}

// Start moves a pending job to running
func (t *Tracker) Start(ctx context.Context, jobID string) (*models.Job, error) {
	return t.store.Transition(ctx, jobID, models.JobPending, models.JobRunning, Update{At: t.now()})
}

// Complete moves a running job to completed and releases its search
func (t *Tracker) Complete(ctx context.Context, jobID string, counts models.JobCounts) (*models.Job, error) {
	job, err := t.store.Transition(ctx, jobID, models.JobRunning, models.JobCompleted, Update{
		Counts: counts,
		At:     t.now(),
	})
	if err != nil {
		return nil, err
	}

	t.release(ctx, job)
	return job, nil
}

// Fail moves a pending or running job to failed and releases its search
func (t *Tracker) Fail(ctx context.Context, jobID string, counts models.JobCounts, cause string) (*models.Job, error) {
	current, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job, err := t.store.Transition(ctx, jobID, current.State, models.JobFailed, Update{
		Counts: counts,
		Error:  cause,
		At:     t.now(),
	})
	if err != nil {
		return nil, err
	}

	t.release(ctx, job)
	return job, nil
}

// RecoverStale fails the stale jobs of every search and releases their
// markers. Run at startup to clean up after a crash.
func (t *Tracker) RecoverStale(ctx context.Context) (int, error) {
	return t.failStale(ctx, "")
}

func (t *Tracker) failStale(ctx context.Context, searchID string) (int, error) {
	stale, err := t.store.FailStale(ctx, searchID, t.now().Add(-t.staleAfter), CauseTimeout)
	if err != nil {
		return 0, err
	}

	for i := range stale {
		job := &stale[i]
		logrus.WithFields(logrus.Fields{
			"job_id":    job.ID,
			"search_id": job.SearchID,
			"state":     job.State,
		}).Warn("Failed stale job")
		t.release(ctx, job)
	}
	return len(stale), nil
}

func (t *Tracker) release(ctx context.Context, job *models.Job) {
	if err := t.guard.Release(ctx, job.SearchID, job.ID); err != nil {
		// The marker expires on its own after the job timeout
		logrus.Warnf("Failed to release search %s after job %s: %v", job.SearchID, job.ID, err)
	}
}

// GetStatus returns the externally visible state of a job
func (t *Tracker) GetStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.Status(), nil
}

// IsActive reports whether a job currently holds the search
func (t *Tracker) IsActive(ctx context.Context, searchID string) (bool, error) {
	return t.guard.IsActive(ctx, searchID)
}
