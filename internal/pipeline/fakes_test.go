package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadscout/leadscout/internal/jobs"
	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/leadscout/leadscout/internal/notifications"
	"github.com/leadscout/leadscout/internal/sources"
)

// memJobStore keeps jobs in memory with the same transition rules as the
// Postgres store
type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]models.Job
}

func (m *memJobStore) Create(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobStore) Get(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	return &job, nil
}

func (m *memJobStore) Transition(_ context.Context, id string, from, to models.JobState, update jobs.Update) (*models.Job, error) {
	if err := jobs.ValidateTransition(from, to); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	if job.State != from {
		return nil, fmt.Errorf("%w: job %s is %s", models.ErrInvalidState, id, job.State)
	}

	at := update.At
	job.State = to
	job.Counts = update.Counts
	if update.Error != "" {
		job.Error = update.Error
	}
	if to == models.JobRunning {
		job.StartedAt = &at
	}
	if to.IsTerminal() {
		job.FinishedAt = &at
	}
	m.jobs[id] = job
	return &job, nil
}

func (m *memJobStore) FailStale(_ context.Context, searchID string, createdBefore time.Time, cause string) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var failed []models.Job
	for id, job := range m.jobs {
		if job.State.IsTerminal() || !job.CreatedAt.Before(createdBefore) {
			continue
		}
		if searchID != "" && job.SearchID != searchID {
			continue
		}
		job.State = models.JobFailed
		job.Error = cause
		m.jobs[id] = job
		failed = append(failed, job)
	}
	return failed, nil
}

func (m *memJobStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// memDedup is an in-memory seen set
type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *memDedup) key(searchID, sourceID string) string { return searchID + "|" + sourceID }

func (d *memDedup) HasSeen(_ context.Context, searchID, sourceID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[d.key(searchID, sourceID)], nil
}

func (d *memDedup) MarkSeen(_ context.Context, searchID, sourceID string, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[d.key(searchID, sourceID)] = true
	return nil
}

func (d *memDedup) FilterUnseen(_ context.Context, searchID string, ids []string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := []string{}
	for _, id := range ids {
		if !d.seen[d.key(searchID, id)] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (d *memDedup) has(searchID, sourceID string) bool {
	ok, _ := d.HasSeen(context.Background(), searchID, sourceID)
	return ok
}

// memLeads is an in-memory lead repository keyed like the unique index
type memLeads struct {
	mu      sync.Mutex
	leads   map[string]*models.Lead
	failFor map[string]bool
}

func (l *memLeads) Upsert(_ context.Context, searchID, sourceID string, c *models.LeadCandidate) (*models.Lead, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failFor[sourceID] {
		return nil, false, errors.New("connection refused")
	}

	key := searchID + "|" + sourceID
	if existing, ok := l.leads[key]; ok {
		existing.LeadCandidate = *c
		existing.UpdatedAt = time.Now()
		copied := *existing
		return &copied, false, nil
	}

	lead := &models.Lead{
		ID:            uuid.New().String(),
		SearchID:      searchID,
		SourceID:      sourceID,
		LeadCandidate: *c,
		Status:        models.LeadStatusNew,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	l.leads[key] = lead
	copied := *lead
	return &copied, true, nil
}

func (l *memLeads) Get(_ context.Context, id string) (*models.Lead, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lead := range l.leads {
		if lead.ID == id {
			copied := *lead
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (l *memLeads) ListBySearch(context.Context, string, leads.Filter, leads.Page) (*leads.LeadPage, error) {
	return nil, errors.New("not used")
}

func (l *memLeads) UpdateStatus(context.Context, string, models.LeadStatus) (*models.Lead, error) {
	return nil, errors.New("not used")
}

func (l *memLeads) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leads)
}

// fakeConnector serves a programmable fetch function
type fakeConnector struct {
	name    string
	enabled bool

	mu    sync.Mutex
	calls int
	fetch func(ctx context.Context, call int) ([]models.RawItem, error)
}

func (c *fakeConnector) Name() string    { return c.name }
func (c *fakeConnector) IsEnabled() bool { return c.enabled }

func (c *fakeConnector) Fetch(ctx context.Context, _ *models.KeywordSearchSpec) ([]models.RawItem, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	fetch := c.fetch
	c.mu.Unlock()
	return fetch(ctx, call)
}

func (c *fakeConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeConnector) serve(items ...models.RawItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetch = func(context.Context, int) ([]models.RawItem, error) {
		out := make([]models.RawItem, len(items))
		copy(out, items)
		return out, nil
	}
}

// fakeAnalyzer decides per source ID and records what it saw
type fakeAnalyzer struct {
	mu       sync.Mutex
	analyzed []string
	decide   func(item models.RawItem) (*models.LeadCandidate, error)
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ *models.KeywordSearchSpec, item models.RawItem) (*models.LeadCandidate, error) {
	a.mu.Lock()
	a.analyzed = append(a.analyzed, item.SourceID)
	a.mu.Unlock()
	return a.decide(item)
}

func (a *fakeAnalyzer) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.analyzed...)
}

func (a *fakeAnalyzer) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyzed = nil
}

// leadFor returns a candidate for the listed source IDs and rejects the rest
func leadFor(ids ...string) func(models.RawItem) (*models.LeadCandidate, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return func(item models.RawItem) (*models.LeadCandidate, error) {
		if !want[item.SourceID] {
			return nil, nil
		}
		return &models.LeadCandidate{
			Platform:        item.Platform,
			Title:           item.Title,
			OpportunityType: "hiring",
			Confidence:      0.9,
			TotalScore:      0.7,
			Tier:            "warm",
		}, nil
	}
}

// memSearches implements SearchGetter and RunRecorder
type memSearches struct {
	mu      sync.Mutex
	specs   map[string]models.KeywordSearchSpec
	runs    map[string]time.Time
	enabled map[string]bool
}

func (s *memSearches) Get(_ context.Context, id string) (*models.KeywordSearchSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[id]
	if !ok {
		return nil, fmt.Errorf("%w: search %s", models.ErrNotFound, id)
	}
	return &spec, nil
}

func (s *memSearches) MarkRun(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = at
	return nil
}

func (s *memSearches) SetEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[id] = enabled
	return nil
}

type sentEvent struct {
	event   notifications.EventKind
	payload interface{}
}

// recordingNotifier captures events synchronously
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Notify(_ context.Context, _ *models.KeywordSearchSpec, event notifications.EventKind, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{event, payload})
}

func (n *recordingNotifier) count(event notifications.EventKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e.event == event {
			total++
		}
	}
	return total
}

type memArchive struct {
	mu    sync.Mutex
	saved []*models.JobSummary
}

func (a *memArchive) SaveJobReport(_ context.Context, summary *models.JobSummary) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, summary)
	return "jobs/" + summary.SearchID + "/" + summary.JobID + ".json", nil
}

// harness wires a Service over the in-memory collaborators
type harness struct {
	service   *Service
	runner    *Runner
	tracker   *jobs.Tracker
	jobStore  *memJobStore
	dedup     *memDedup
	leads     *memLeads
	connector *fakeConnector
	analyzer  *fakeAnalyzer
	searches  *memSearches
	notifier  *recordingNotifier
	archive   *memArchive
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &harness{
		jobStore:  &memJobStore{jobs: map[string]models.Job{}},
		dedup:     &memDedup{seen: map[string]bool{}},
		leads:     &memLeads{leads: map[string]*models.Lead{}, failFor: map[string]bool{}},
		connector: &fakeConnector{name: models.PlatformReddit, enabled: true},
		analyzer:  &fakeAnalyzer{decide: leadFor()},
		searches:  &memSearches{specs: map[string]models.KeywordSearchSpec{}, runs: map[string]time.Time{}, enabled: map[string]bool{}},
		notifier:  &recordingNotifier{},
		archive:   &memArchive{},
	}
	h.connector.serve()
	h.tracker = jobs.NewTracker(h.jobStore, jobs.NewRedisGuard(client, jobs.MarkerTTL(time.Hour)), time.Hour)

	h.runner = NewRunner(Dependencies{
		Connectors: sources.NewRegistry(h.connector),
		Dedup:      h.dedup,
		Analyzer:   h.analyzer,
		Leads:      h.leads,
		Tracker:    h.tracker,
		Searches:   h.searches,
		Notifier:   h.notifier,
		Archive:    h.archive,
	}, opts)
	h.service = NewService(h.runner, h.tracker, h.searches)
	return h
}

func (h *harness) addSpec(spec models.KeywordSearchSpec) *models.KeywordSearchSpec {
	h.searches.mu.Lock()
	h.searches.specs[spec.ID] = spec
	h.searches.mu.Unlock()
	return &spec
}

func hiringSpec() models.KeywordSearchSpec {
	return models.KeywordSearchSpec{
		ID:        "search-1",
		Name:      "hiring",
		Keywords:  []string{"hiring"},
		Platforms: []string{models.PlatformReddit},
		Mode:      models.ModeScheduled,
		Interval:  "1h",
		Enabled:   true,
	}
}

func rawItem(id string) models.RawItem {
	return models.RawItem{
		SourceID: id,
		Platform: models.PlatformReddit,
		Kind:     models.ItemKindPost,
		Title:    "We are hiring " + id,
	}
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}
