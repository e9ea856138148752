package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/leadscout/leadscout/internal/models"
)

// jobColumns lists columns for SELECT and RETURNING clauses on jobs.
const jobColumns = `id, search_id, trigger_kind, state, fetched, deduplicated, analyzed,
	rejected, leads_created, leads_updated, errors, error_message, started_at, finished_at,
	created_at, updated_at`

// StoreInterface persists jobs and their state transitions
type StoreInterface interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	Transition(ctx context.Context, id string, from, to models.JobState, update Update) (*models.Job, error)
	FailStale(ctx context.Context, searchID string, createdBefore time.Time, cause string) ([]models.Job, error)
}

// Update carries the fields written alongside a state change
type Update struct {
	Counts models.JobCounts
	Error  string
	At     time.Time
}

type jobRow struct {
	ID           string         `db:"id"`
	SearchID     string         `db:"search_id"`
	Trigger      string         `db:"trigger_kind"`
	State        string         `db:"state"`
	Fetched      int            `db:"fetched"`
	Deduplicated int            `db:"deduplicated"`
	Analyzed     int            `db:"analyzed"`
	Rejected     int            `db:"rejected"`
	LeadsCreated int            `db:"leads_created"`
	LeadsUpdated int            `db:"leads_updated"`
	Errors       int            `db:"errors"`
	ErrorMessage sql.NullString `db:"error_message"`
	StartedAt    *time.Time     `db:"started_at"`
	FinishedAt   *time.Time     `db:"finished_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *jobRow) toModel() *models.Job {
	return &models.Job{
		ID:       r.ID,
		SearchID: r.SearchID,
		Trigger:  models.TriggerKind(r.Trigger),
		State:    models.JobState(r.State),
		Counts: models.JobCounts{
			Fetched:      r.Fetched,
			Deduplicated: r.Deduplicated,
			Analyzed:     r.Analyzed,
			Rejected:     r.Rejected,
			LeadsCreated: r.LeadsCreated,
			LeadsUpdated: r.LeadsUpdated,
			Errors:       r.Errors,
		},
		Error:      r.ErrorMessage.String,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// PostgresStore handles database operations for jobs
type PostgresStore struct {
	db *sqlx.DB
}

// Ensure PostgresStore implements StoreInterface
var _ StoreInterface = (*PostgresStore)(nil)

// NewPostgresStore creates a new job store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new pending job and fills in its timestamps
func (s *PostgresStore) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, search_id, trigger_kind, state)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query, job.ID, job.SearchID, string(job.Trigger), string(job.State)).
		Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: create job: %v", models.ErrPersistence, err)
	}

	return nil
}

// Get returns a job by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get job: %v", models.ErrPersistence, err)
	}

	return row.toModel(), nil
}

// Transition moves a job from one state to another. The update only applies
// when the stored state still equals from, so concurrent writers cannot
// regress a terminal job.
func (s *PostgresStore) Transition(
	ctx context.Context,
	id string,
	from, to models.JobState,
	update Update,
) (*models.Job, error) {
	if err := ValidateTransition(from, to); err != nil {
		return nil, err
	}

	var startedAt, finishedAt *time.Time
	at := update.At
	if to == models.JobRunning {
		startedAt = &at
	}
	if to.IsTerminal() {
		finishedAt = &at
	}

	var errorMessage sql.NullString
	if update.Error != "" {
		errorMessage = sql.NullString{String: update.Error, Valid: true}
	}

	query := `
		UPDATE jobs
		SET state = $3,
			started_at = COALESCE($4, started_at),
			finished_at = COALESCE($5, finished_at),
			fetched = $6, deduplicated = $7, analyzed = $8, rejected = $9,
			leads_created = $10, leads_updated = $11, errors = $12,
			error_message = COALESCE($13, error_message),
			updated_at = NOW()
		WHERE id = $1 AND state = $2
		RETURNING ` + jobColumns

	c := update.Counts
	var row jobRow
	err := s.db.GetContext(ctx, &row, query,
		id, string(from), string(to),
		startedAt, finishedAt,
		c.Fetched, c.Deduplicated, c.Analyzed, c.Rejected,
		c.LeadsCreated, c.LeadsUpdated, c.Errors,
		errorMessage,
	)
	if err == nil {
		return row.toModel(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transition job %s: %v", models.ErrPersistence, id, err)
	}

	// Either the job does not exist or it is no longer in the expected state
	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: job %s is %s, expected %s", models.ErrInvalidState, id, current.State, from)
}

// FailStale marks jobs still pending or running that were created before
// the cutoff as failed and returns them. An empty searchID covers every
// search.
func (s *PostgresStore) FailStale(ctx context.Context, searchID string, createdBefore time.Time, cause string) ([]models.Job, error) {
	query := `
		UPDATE jobs
		SET state = 'failed', finished_at = NOW(), error_message = $3, updated_at = NOW()
		WHERE state IN ('pending', 'running') AND created_at < $2 AND ($1 = '' OR search_id = $1)
		RETURNING ` + jobColumns

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, searchID, createdBefore, cause); err != nil {
		return nil, fmt.Errorf("%w: fail stale jobs: %v", models.ErrPersistence, err)
	}

	failed := make([]models.Job, 0, len(rows))
	for i := range rows {
		failed = append(failed, *rows[i].toModel())
	}
	return failed, nil
}
