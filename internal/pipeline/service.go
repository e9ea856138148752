package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/jobs"
	"github.com/leadscout/leadscout/internal/models"
)

// SearchGetter loads a search by ID
type SearchGetter interface {
	Get(ctx context.Context, id string) (*models.KeywordSearchSpec, error)
}

// Service admits jobs and runs them, either inline for the scheduler or in
// the background for manual triggers
type Service struct {
	runner   *Runner
	tracker  jobs.TrackerInterface
	searches SearchGetter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the job service
func NewService(runner *Runner, tracker jobs.TrackerInterface, searches SearchGetter) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		runner:   runner,
		tracker:  tracker,
		searches: searches,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// admit creates a pending job for spec. Disabled searches and searches with a
// job already in flight are refused with ErrInvalidState; in the latter case
// the refused job is returned in the failed state.
func (s *Service) admit(ctx context.Context, spec *models.KeywordSearchSpec, trigger models.TriggerKind) (*models.Job, error) {
	if !spec.Enabled {
		return nil, fmt.Errorf("%w: search %s is disabled", models.ErrInvalidState, spec.ID)
	}
	return s.tracker.Submit(ctx, spec.ID, trigger)
}

// Submit admits a job for spec and runs it to completion
func (s *Service) Submit(ctx context.Context, spec *models.KeywordSearchSpec, trigger models.TriggerKind) (*models.JobSummary, error) {
	job, err := s.admit(ctx, spec, trigger)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	defer s.wg.Done()
	return s.runner.Run(ctx, spec, job)
}

// Trigger starts a manual run of the search and returns the pending job
// without waiting for it
func (s *Service) Trigger(ctx context.Context, searchID string) (*models.Job, error) {
	spec, err := s.searches.Get(ctx, searchID)
	if err != nil {
		return nil, err
	}

	job, err := s.admit(ctx, spec, models.TriggerManual)
	if err != nil {
		return job, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if _, err := s.runner.Run(s.ctx, spec, job); err != nil {
			var failed *models.JobFailedError
			if !errors.As(err, &failed) {
				logrus.WithFields(logrus.Fields{
					"job_id": job.ID,
					"error":  err,
				}).Error("Manual run ended unexpectedly")
			}
		}
	}()

	return job, nil
}

// GetStatus returns a job's current status
func (s *Service) GetStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	return s.tracker.GetStatus(ctx, jobID)
}

// IsActive reports whether the search has a job in flight
func (s *Service) IsActive(ctx context.Context, searchID string) (bool, error) {
	return s.tracker.IsActive(ctx, searchID)
}

// Shutdown waits for background runs to finish. When ctx expires first the
// runs are cancelled, which fails their jobs, and ctx's error is returned.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
