package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leadscout/leadscout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-process StoreInterface used to exercise the tracker
type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]models.Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]models.Job)}
}

func (m *memoryStore) Create(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	return &job, nil
}

func (m *memoryStore) Transition(_ context.Context, id string, from, to models.JobState, update Update) (*models.Job, error) {
	if err := ValidateTransition(from, to); err != nil {
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

func (m *memoryStore) FailStale(_ context.Context, searchID string, createdBefore time.Time, cause string) ([]models.Job, error) {
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

func (m *memoryStore) nonTerminal(searchID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, job := range m.jobs {
		if job.SearchID == searchID && !job.State.IsTerminal() {
			n++
		}
	}
	return n
}

const testJobTimeout = time.Hour

func newTestTracker(t *testing.T) (*Tracker, *memoryStore) {
	tracker, store, _ := newClockedTracker(t)
	return tracker, store
}

// newClockedTracker returns a tracker whose clock moves together with the
// Redis server's via the returned advance function
func newClockedTracker(t *testing.T) (*Tracker, *memoryStore, func(time.Duration)) {
	t.Helper()
	guard, mr := newTestGuard(t, MarkerTTL(testJobTimeout))
	store := newMemoryStore()
	tracker := NewTracker(store, guard, testJobTimeout)

	var offset time.Duration
	tracker.now = func() time.Time { return time.Now().Add(offset) }
	advance := func(d time.Duration) {
		offset += d
		mr.FastForward(d)
	}
	return tracker, store, advance
}

func TestTracker_Lifecycle(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	job, err := tracker.Submit(ctx, "search-1", models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.State)

	active, err := tracker.IsActive(ctx, "search-1")
	require.NoError(t, err)
	assert.True(t, active)

	_, err = tracker.Start(ctx, job.ID)
	require.NoError(t, err)

	counts := models.JobCounts{Fetched: 3, Analyzed: 3, LeadsCreated: 1, Rejected: 2}
	done, err := tracker.Complete(ctx, job.ID, counts)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, done.State)

	status, err := tracker.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, status.State)
	assert.Equal(t, counts, status.Counts)

	active, err = tracker.IsActive(ctx, "search-1")
	require.NoError(t, err)
	assert.False(t, active, "terminal jobs release their search")
}

func TestTracker_SecondSubmitIsRejected(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	first, err := tracker.Submit(ctx, "search-1", models.TriggerScheduled)
	require.NoError(t, err)

	second, err := tracker.Submit(ctx, "search-1", models.TriggerManual)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	require.NotNil(t, second)
	assert.Equal(t, models.JobFailed, second.State)
	assert.Equal(t, RejectedActiveMessage, second.Error)

	status, err := tracker.GetStatus(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, status.State, "the active job is untouched")
}

func TestTracker_ConcurrentSubmitsAdmitExactlyOne(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	const submitters = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)

	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.Submit(ctx, "search-1", models.TriggerManual); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}

func TestTracker_FailFromPendingAndTerminalIsFinal(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	job, err := tracker.Submit(ctx, "search-1", models.TriggerManual)
	require.NoError(t, err)

	failed, err := tracker.Fail(ctx, job.ID, models.JobCounts{}, "connector unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, failed.State)

	_, err = tracker.Start(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = tracker.Complete(ctx, job.ID, models.JobCounts{})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = tracker.Fail(ctx, job.ID, models.JobCounts{}, "again")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	active, err := tracker.IsActive(ctx, "search-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestTracker_GetStatusUnknownJob(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTracker_StaleJobIsFailedBeforeNextSubmit(t *testing.T) {
	tracker, store, advance := newClockedTracker(t)
	ctx := context.Background()

	stuck, err := tracker.Submit(ctx, "search-1", models.TriggerScheduled)
	require.NoError(t, err)
	_, err = tracker.Start(ctx, stuck.ID)
	require.NoError(t, err)

	// The worker died: nothing ever completes the job, the marker expires
	advance(MarkerTTL(testJobTimeout) + time.Second)

	active, err := tracker.IsActive(ctx, "search-1")
	require.NoError(t, err)
	assert.False(t, active)

	next, err := tracker.Submit(ctx, "search-1", models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, next.State)

	status, err := tracker.GetStatus(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, status.State)
	assert.Equal(t, CauseTimeout, status.Error)

	assert.Equal(t, 1, store.nonTerminal("search-1"), "at most one non-terminal job per search")
}

func TestTracker_RunningJobWithinTimeoutIsKept(t *testing.T) {
	tracker, store, advance := newClockedTracker(t)
	ctx := context.Background()

	running, err := tracker.Submit(ctx, "search-1", models.TriggerScheduled)
	require.NoError(t, err)
	_, err = tracker.Start(ctx, running.ID)
	require.NoError(t, err)

	advance(testJobTimeout - time.Minute)

	_, err = tracker.Submit(ctx, "search-1", models.TriggerManual)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	status, err := tracker.GetStatus(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, status.State)
	assert.Equal(t, 1, store.nonTerminal("search-1"))
}

func TestTracker_RecoverStaleReleasesMarkers(t *testing.T) {
	tracker, store, _ := newClockedTracker(t)
	ctx := context.Background()

	stuck, err := tracker.Submit(ctx, "search-1", models.TriggerScheduled)
	require.NoError(t, err)
	fresh, err := tracker.Submit(ctx, "search-2", models.TriggerScheduled)
	require.NoError(t, err)

	// Only search-1's job is old enough to be stale; its marker is still set
	store.mu.Lock()
	old := store.jobs[stuck.ID]
	old.CreatedAt = time.Now().Add(-2 * MarkerTTL(testJobTimeout))
	store.jobs[stuck.ID] = old
	store.mu.Unlock()

	n, err := tracker.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := tracker.IsActive(ctx, "search-1")
	require.NoError(t, err)
	assert.False(t, active, "the stale job's marker is released")

	active, err = tracker.IsActive(ctx, "search-2")
	require.NoError(t, err)
	assert.True(t, active, "live jobs keep their marker")

	status, err := tracker.GetStatus(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, status.State)
}
