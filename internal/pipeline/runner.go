// Package pipeline executes search jobs: fetch from each platform, drop items
// already seen for the search, analyze the rest, store leads and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/analyzer"
	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/dedup"
	"github.com/leadscout/leadscout/internal/jobs"
	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/leadscout/leadscout/internal/notifications"
	"github.com/leadscout/leadscout/internal/sources"
)

// Failure causes recorded on jobs that did not finish normally
const (
	CauseTimeout   = jobs.CauseTimeout
	CauseCancelled = "cancelled"
)

// Item error stages
const (
	stageAnalyze = "analyze"
	stagePersist = "persist"
	stageDedup   = "dedup"
)

// finalizeTimeout bounds the bookkeeping done after a run, which must happen
// even when the run's own context has expired
const finalizeTimeout = jobs.FinalizeGrace

// ConnectorRegistry resolves a platform to its connector
type ConnectorRegistry interface {
	Get(platform string) (sources.Connector, error)
}

// RunRecorder stores per-search run bookkeeping
type RunRecorder interface {
	MarkRun(ctx context.Context, id string, at time.Time) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// ReportArchiver keeps a copy of each finished job's summary
type ReportArchiver interface {
	SaveJobReport(ctx context.Context, summary *models.JobSummary) (string, error)
}

// Dependencies are the collaborators a Runner needs. Archive and Metrics
// are optional.
type Dependencies struct {
	Connectors ConnectorRegistry
	Dedup      dedup.StoreInterface
	Analyzer   analyzer.Analyzer
	Leads      leads.RepositoryInterface
	Tracker    jobs.TrackerInterface
	Searches   RunRecorder
	Notifier   notifications.Notifier
	Archive    ReportArchiver
	Metrics    *Metrics
}

// Options tune a Runner
type Options struct {
	ConnectorRetry RetryPolicy
	AnalyzerRetry  RetryPolicy
	JobTimeout     time.Duration
}

// OptionsFromConfig maps configuration onto runner options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ConnectorRetry: RetryPolicy{
			MaxAttempts:  cfg.ConnectorRetryAttempts,
			InitialDelay: cfg.ConnectorRetryDelay,
			MaxDelay:     cfg.ConnectorRetryMaxDelay,
		},
		AnalyzerRetry: RetryPolicy{
			MaxAttempts:  cfg.AnalyzerRetryAttempts,
			InitialDelay: cfg.AnalyzerRetryDelay,
			MaxDelay:     cfg.AnalyzerRetryDelay * 4,
		},
		JobTimeout: cfg.JobTimeout,
	}
}

// Runner executes admitted jobs
type Runner struct {
	deps Dependencies
	opts Options
	now  func() time.Time
}

// NewRunner creates a job runner
func NewRunner(deps Dependencies, opts Options) *Runner {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Hour
	}
	return &Runner{deps: deps, opts: opts, now: time.Now}
}

// Run executes a pending job for spec and drives it to a terminal state.
// A run that ends failed returns its summary together with a
// *models.JobFailedError.
func (r *Runner) Run(ctx context.Context, spec *models.KeywordSearchSpec, job *models.Job) (*models.JobSummary, error) {
	summary := &models.JobSummary{
		JobID:      job.ID,
		SearchID:   spec.ID,
		SearchName: spec.Name,
		Trigger:    job.Trigger,
		StartedAt:  r.now(),
	}

	logger := logrus.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"search_id": spec.ID,
		"trigger":   job.Trigger,
	})

	if _, err := r.deps.Tracker.Start(ctx, job.ID); err != nil {
		logger.WithError(err).Error("Failed to start job")
		return r.fail(spec, summary, err.Error(), err, false)
	}
	r.deps.Metrics.jobStarted()
	logger.Info("Job started")

	// The deadline counts from admission so it lines up with the active
	// marker's lifetime
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = summary.StartedAt
	}
	runCtx, cancel := context.WithDeadline(ctx, createdAt.Add(r.opts.JobTimeout))
	defer cancel()

	items, err := r.fetch(runCtx, spec, summary)
	if err != nil {
		if cause, done := interrupted(ctx, runCtx); done {
			return r.fail(spec, summary, cause, err, true)
		}
		logger.WithError(err).Error("Fetch failed")
		return r.fail(spec, summary, err.Error(), err, true)
	}

	unseen, err := r.filterUnseen(runCtx, spec, items)
	if err != nil {
		if cause, done := interrupted(ctx, runCtx); done {
			return r.fail(spec, summary, cause, err, true)
		}
		err = fmt.Errorf("%w: dedup lookup: %v", models.ErrPersistence, err)
		return r.fail(spec, summary, err.Error(), err, true)
	}
	summary.Counts.Deduplicated = summary.Counts.Fetched - len(unseen)
	for platform, n := range countByPlatform(items, unseen) {
		r.deps.Metrics.items(platform, outcomeDeduplicated, n)
	}

	logger.WithFields(logrus.Fields{
		"fetched": summary.Counts.Fetched,
		"unseen":  len(unseen),
	}).Info("Analyzing items")

	for _, item := range unseen {
		if cause, done := interrupted(ctx, runCtx); done {
			return r.fail(spec, summary, cause, runCtx.Err(), true)
		}
		r.processItem(runCtx, spec, item, summary)
	}

	return r.complete(spec, summary)
}

// interrupted reports whether the run context ended, and why
func interrupted(parent, runCtx context.Context) (string, bool) {
	if runCtx.Err() == nil {
		return "", false
	}
	if parent.Err() != nil {
		return CauseCancelled, true
	}
	return CauseTimeout, true
}

func (r *Runner) fetch(ctx context.Context, spec *models.KeywordSearchSpec, summary *models.JobSummary) ([]models.RawItem, error) {
	var all []models.RawItem

	for _, platform := range spec.Platforms {
		conn, err := r.deps.Connectors.Get(platform)
		if err != nil {
			return nil, err
		}
		if !conn.IsEnabled() {
			return nil, fmt.Errorf("%w: %s connector is not configured", models.ErrConnectorUnavailable, platform)
		}

		var items []models.RawItem
		err = r.opts.ConnectorRetry.Do(ctx, "fetch "+platform, func(ctx context.Context) error {
			fetched, err := conn.Fetch(ctx, spec)
			if err != nil {
				return err
			}
			items = fetched
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", platform, err)
		}

		for i := range items {
			items[i].SearchID = spec.ID
		}
		summary.Counts.Fetched += len(items)
		r.deps.Metrics.items(platform, outcomeFetched, len(items))
		all = append(all, items...)
	}

	return all, nil
}

// filterUnseen collapses repeated source IDs and drops items already seen
// for the search, keeping fetch order
func (r *Runner) filterUnseen(ctx context.Context, spec *models.KeywordSearchSpec, items []models.RawItem) ([]models.RawItem, error) {
	byID := make(map[string]models.RawItem, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, dup := byID[item.SourceID]; dup {
			continue
		}
		byID[item.SourceID] = item
		ids = append(ids, item.SourceID)
	}

	unseenIDs, err := r.deps.Dedup.FilterUnseen(ctx, spec.ID, ids)
	if err != nil {
		return nil, err
	}

	unseen := make([]models.RawItem, 0, len(unseenIDs))
	for _, id := range unseenIDs {
		unseen = append(unseen, byID[id])
	}
	return unseen, nil
}

func countByPlatform(all, kept []models.RawItem) map[string]int {
	counts := map[string]int{}
	for _, item := range all {
		counts[item.Platform]++
	}
	for _, item := range kept {
		counts[item.Platform]--
	}
	return counts
}

// processItem analyzes one item and stores the lead, if any. Items are marked
// seen only once their outcome is settled: a rejection or a stored lead.
func (r *Runner) processItem(ctx context.Context, spec *models.KeywordSearchSpec, item models.RawItem, summary *models.JobSummary) {
	var candidate *models.LeadCandidate
	err := r.opts.AnalyzerRetry.Do(ctx, "analyze", func(ctx context.Context) error {
		c, err := r.deps.Analyzer.Analyze(ctx, spec, item)
		if err != nil {
			return err
		}
		candidate = c
		return nil
	})
	if err != nil {
		summary.AddItemError(item.SourceID, stageAnalyze, err)
		r.deps.Metrics.item(item.Platform, outcomeError)
		return
	}
	summary.Counts.Analyzed++

	if candidate == nil {
		summary.Counts.Rejected++
		r.deps.Metrics.item(item.Platform, outcomeRejected)
		r.markSeen(ctx, spec, item, false, summary)
		return
	}

	lead, created, err := r.deps.Leads.Upsert(ctx, spec.ID, item.SourceID, candidate)
	if err != nil {
		if !errors.Is(err, models.ErrPersistence) {
			err = fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		summary.AddItemError(item.SourceID, stagePersist, err)
		r.deps.Metrics.item(item.Platform, outcomeError)
		return
	}

	r.deps.Metrics.item(item.Platform, outcomeLead)
	r.deps.Metrics.lead(created)
	if created {
		summary.Counts.LeadsCreated++
		r.deps.Notifier.Notify(ctx, spec, notifications.EventLeadCreated, lead)
	} else {
		summary.Counts.LeadsUpdated++
	}

	r.markSeen(ctx, spec, item, true, summary)
}

func (r *Runner) markSeen(ctx context.Context, spec *models.KeywordSearchSpec, item models.RawItem, leadCreated bool, summary *models.JobSummary) {
	if err := r.deps.Dedup.MarkSeen(ctx, spec.ID, item.SourceID, leadCreated); err != nil {
		summary.AddItemError(item.SourceID, stageDedup, err)
	}
}

func (r *Runner) complete(spec *models.KeywordSearchSpec, summary *models.JobSummary) (*models.JobSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if _, err := r.deps.Tracker.Complete(ctx, summary.JobID, summary.Counts); err != nil {
		err = fmt.Errorf("%w: complete job: %v", models.ErrPersistence, err)
		return r.fail(spec, summary, err.Error(), err, true)
	}

	summary.State = models.JobCompleted
	r.finalize(ctx, spec, summary, true)

	if spec.Mode == models.ModeOneTime {
		if err := r.deps.Searches.SetEnabled(ctx, spec.ID, false); err != nil {
			logrus.WithFields(logrus.Fields{
				"search_id": spec.ID,
				"error":     err,
			}).Error("Failed to disable one-time search")
		}
	}

	r.deps.Notifier.Notify(ctx, spec, notifications.EventJobCompleted, summary)
	r.archive(ctx, summary)
	return summary, nil
}

func (r *Runner) fail(spec *models.KeywordSearchSpec, summary *models.JobSummary, cause string, err error, ran bool) (*models.JobSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if _, ferr := r.deps.Tracker.Fail(ctx, summary.JobID, summary.Counts, cause); ferr != nil {
		logrus.WithFields(logrus.Fields{
			"job_id": summary.JobID,
			"error":  ferr,
		}).Error("Failed to record job failure")
	}

	summary.State = models.JobFailed
	summary.Cause = cause
	r.finalize(ctx, spec, summary, ran)

	r.deps.Notifier.Notify(ctx, spec, notifications.EventJobFailed, summary)
	r.archive(ctx, summary)

	if err == nil {
		err = errors.New(cause)
	}
	return summary, &models.JobFailedError{Summary: summary, Cause: err}
}

// finalize stamps timing, records the run on the search and logs the outcome
func (r *Runner) finalize(ctx context.Context, spec *models.KeywordSearchSpec, summary *models.JobSummary, ran bool) {
	summary.FinishedAt = r.now()
	elapsed := summary.FinishedAt.Sub(summary.StartedAt)
	summary.Duration = elapsed.Round(time.Millisecond).String()

	if ran {
		if err := r.deps.Searches.MarkRun(ctx, spec.ID, summary.StartedAt); err != nil {
			logrus.WithFields(logrus.Fields{
				"search_id": spec.ID,
				"error":     err,
			}).Error("Failed to record last run")
		}
	}

	r.deps.Metrics.jobFinished(summary, elapsed, ran)

	entry := logrus.WithFields(logrus.Fields{
		"job_id":        summary.JobID,
		"search_id":     summary.SearchID,
		"state":         summary.State,
		"duration":      summary.Duration,
		"fetched":       summary.Counts.Fetched,
		"deduplicated":  summary.Counts.Deduplicated,
		"analyzed":      summary.Counts.Analyzed,
		"leads_created": summary.Counts.LeadsCreated,
		"leads_updated": summary.Counts.LeadsUpdated,
		"errors":        summary.Counts.Errors,
	})
	if summary.State == models.JobFailed {
		entry.WithField("cause", summary.Cause).Warn("Job failed")
	} else {
		entry.Info("Job completed")
	}
}

func (r *Runner) archive(ctx context.Context, summary *models.JobSummary) {
	if r.deps.Archive == nil {
		return
	}
	name, err := r.deps.Archive.SaveJobReport(ctx, summary)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"job_id": summary.JobID,
			"error":  err,
		}).Warn("Failed to archive job report")
		return
	}
	logrus.WithField("blob", name).Debug("Archived job report")
}
