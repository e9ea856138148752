package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/models"
)

// SpecLister returns the searches the scheduler should consider
type SpecLister interface {
	ListScheduled(ctx context.Context) ([]models.KeywordSearchSpec, error)
}

// JobRunner admits and runs a job for a search
type JobRunner interface {
	Submit(ctx context.Context, spec *models.KeywordSearchSpec, trigger models.TriggerKind) (*models.JobSummary, error)
	IsActive(ctx context.Context, searchID string) (bool, error)
}

// TickResult describes what one evaluation did
type TickResult struct {
	Considered    int
	Due           int
	Dispatched    int
	SkippedActive int
	SkippedBusy   int
}

// Service evaluates scheduled searches on a fixed tick and dispatches the
// due ones
type Service struct {
	tick   time.Duration
	specs  SpecLister
	runner JobRunner
	pool   *Pool
	cron   *cron.Cron
	now    func() time.Time

	// startup evaluation, which Stop must outlive
	initial sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, specs SpecLister, runner JobRunner) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(logrus.StandardLogger())

	return &Service{
		tick:   cfg.SchedulerTick,
		specs:  specs,
		runner: runner,
		pool:   NewPool(cfg.MaxConcurrentJobs),
		cron:   cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger))),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start evaluates once right away and then on every tick
func (s *Service) Start() error {
	_, err := s.cron.AddFunc("@every "+s.tick.String(), func() {
		s.RunOnce(s.ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.RunOnce(s.ctx)
	}()

	logrus.WithFields(logrus.Fields{
		"tick":            s.tick.String(),
		"max_concurrency": s.pool.Size(),
	}).Info("Scheduler started")
	return nil
}

// Stop halts the tick and waits for dispatched jobs. Jobs still running
// when ctx expires are cancelled.
func (s *Service) Stop(ctx context.Context) {
	<-s.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		s.initial.Wait()
		s.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logrus.Warn("Scheduler stop timed out, cancelling running jobs")
		s.cancel()
		<-done
	}
	s.cancel()
	logrus.Info("Scheduler stopped")
}

// RunOnce evaluates every scheduled search once. Due searches with no active
// job are handed to the pool; when the pool is full they wait for a later
// tick.
func (s *Service) RunOnce(ctx context.Context) TickResult {
	var result TickResult

	specs, err := s.specs.ListScheduled(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list scheduled searches")
		return result
	}

	now := s.now()
	for i := range specs {
		spec := specs[i]
		if !spec.IsScheduled() {
			continue
		}
		result.Considered++

		interval, err := spec.IntervalDuration()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"search_id": spec.ID,
				"error":     err,
			}).Warn("Skipping search with bad interval")
			continue
		}
		if !IsDue(spec.LastRunAt, interval, now) {
			continue
		}
		result.Due++

		active, err := s.runner.IsActive(ctx, spec.ID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"search_id": spec.ID,
				"error":     err,
			}).Warn("Could not check for an active job")
			continue
		}
		if active {
			result.SkippedActive++
			continue
		}

		if !s.pool.TrySubmit(func() { s.dispatch(&spec) }) {
			result.SkippedBusy++
			continue
		}
		result.Dispatched++
	}

	if result.Due > 0 {
		logrus.WithFields(logrus.Fields{
			"considered":     result.Considered,
			"due":            result.Due,
			"dispatched":     result.Dispatched,
			"skipped_active": result.SkippedActive,
			"skipped_busy":   result.SkippedBusy,
		}).Info("Scheduler tick")
	}
	return result
}

func (s *Service) dispatch(spec *models.KeywordSearchSpec) {
	_, err := s.runner.Submit(s.ctx, spec, models.TriggerScheduled)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidState):
		// Lost the race to a manual trigger or another instance
		logrus.WithField("search_id", spec.ID).Debug("Scheduled run not admitted")
	default:
		logrus.WithFields(logrus.Fields{
			"search_id": spec.ID,
			"error":     err,
		}).Warn("Scheduled run failed")
	}
}
