package searches

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/lib/pq"
)

// searchColumns lists columns for SELECT and RETURNING clauses on searches.
const searchColumns = `id, name, keywords, patterns, platforms, reddit_config, mode,
	schedule_interval, enabled, webhook_url, last_run_at, created_at, updated_at`

// StoreInterface is the persistence contract for search definitions
type StoreInterface interface {
	Get(ctx context.Context, id string) (*models.KeywordSearchSpec, error)
	List(ctx context.Context) ([]models.KeywordSearchSpec, error)
	ListScheduled(ctx context.Context) ([]models.KeywordSearchSpec, error)
	Create(ctx context.Context, spec *models.KeywordSearchSpec) error
	UpsertByName(ctx context.Context, spec *models.KeywordSearchSpec) error
	Delete(ctx context.Context, id string) error
	MarkRun(ctx context.Context, id string, at time.Time) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type searchRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Keywords     pq.StringArray `db:"keywords"`
	Patterns     pq.StringArray `db:"patterns"`
	Platforms    pq.StringArray `db:"platforms"`
	RedditConfig []byte         `db:"reddit_config"`
	Mode         string         `db:"mode"`
	Interval     sql.NullString `db:"schedule_interval"`
	Enabled      bool           `db:"enabled"`
	WebhookURL   sql.NullString `db:"webhook_url"`
	LastRunAt    *time.Time     `db:"last_run_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *searchRow) toModel() (*models.KeywordSearchSpec, error) {
	spec := &models.KeywordSearchSpec{
		ID:         r.ID,
		Name:       r.Name,
		Keywords:   []string(r.Keywords),
		Patterns:   []string(r.Patterns),
		Platforms:  []string(r.Platforms),
		Mode:       models.ScrapingMode(r.Mode),
		Interval:   r.Interval.String,
		Enabled:    r.Enabled,
		WebhookURL: r.WebhookURL.String,
		LastRunAt:  r.LastRunAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}

	if len(r.RedditConfig) > 0 {
		if err := json.Unmarshal(r.RedditConfig, &spec.RedditConfig); err != nil {
			return nil, fmt.Errorf("decode reddit_config of search %s: %w", r.ID, err)
		}
	}

	return spec, nil
}

// PostgresStore handles database operations for search definitions
type PostgresStore struct {
	db *sqlx.DB
}

// Ensure PostgresStore implements StoreInterface
var _ StoreInterface = (*PostgresStore)(nil)

// NewPostgresStore creates a new search store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns a search by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.KeywordSearchSpec, error) {
	query := `SELECT ` + searchColumns + ` FROM searches WHERE id = $1`

	var row searchRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: search %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get search: %v", models.ErrPersistence, err)
	}

	return row.toModel()
}

// List returns every search ordered by name
func (s *PostgresStore) List(ctx context.Context) ([]models.KeywordSearchSpec, error) {
	return s.list(ctx, `SELECT `+searchColumns+` FROM searches ORDER BY name`)
}

// ListScheduled returns the enabled searches in scheduled mode
func (s *PostgresStore) ListScheduled(ctx context.Context) ([]models.KeywordSearchSpec, error) {
	return s.list(ctx, `SELECT `+searchColumns+` FROM searches
		WHERE enabled = TRUE AND mode = 'scheduled'
		ORDER BY last_run_at ASC NULLS FIRST`)
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]models.KeywordSearchSpec, error) {
	var rows []searchRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: list searches: %v", models.ErrPersistence, err)
	}

	specs := make([]models.KeywordSearchSpec, 0, len(rows))
	for i := range rows {
		spec, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}

	return specs, nil
}

// Create validates and inserts a new search
func (s *PostgresStore) Create(ctx context.Context, spec *models.KeywordSearchSpec) error {
	ApplyDefaults(spec)
	if err := Validate(spec); err != nil {
		return err
	}
	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}

	args, err := writeArgs(spec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO searches (id, name, keywords, patterns, platforms, reddit_config, mode,
			schedule_interval, enabled, webhook_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&spec.CreatedAt, &spec.UpdatedAt); err != nil {
		return fmt.Errorf("%w: create search: %v", models.ErrPersistence, err)
	}

	return nil
}

// UpsertByName creates the search or replaces the definition of the search
// with the same name. The run history (last_run_at) is kept.
func (s *PostgresStore) UpsertByName(ctx context.Context, spec *models.KeywordSearchSpec) error {
	ApplyDefaults(spec)
	if err := Validate(spec); err != nil {
		return err
	}
	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}

	args, err := writeArgs(spec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO searches (id, name, keywords, patterns, platforms, reddit_config, mode,
			schedule_interval, enabled, webhook_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			keywords = EXCLUDED.keywords,
			patterns = EXCLUDED.patterns,
			platforms = EXCLUDED.platforms,
			reddit_config = EXCLUDED.reddit_config,
			mode = EXCLUDED.mode,
			schedule_interval = EXCLUDED.schedule_interval,
			enabled = EXCLUDED.enabled,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = NOW()
		RETURNING id, last_run_at, created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&spec.ID, &spec.LastRunAt, &spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: upsert search %q: %v", models.ErrPersistence, spec.Name, err)
	}

	return nil
}

func writeArgs(spec *models.KeywordSearchSpec) ([]interface{}, error) {
	redditConfig, err := json.Marshal(spec.RedditConfig)
	if err != nil {
		return nil, fmt.Errorf("encode reddit_config: %w", err)
	}

	return []interface{}{
		spec.ID,
		spec.Name,
		pq.Array(spec.Keywords),
		pq.Array(nonNil(spec.Patterns)),
		pq.Array(spec.Platforms),
		string(redditConfig),
		string(spec.Mode),
		nullString(spec.Interval),
		spec.Enabled,
		nullString(spec.WebhookURL),
	}, nil
}

// Delete removes a search
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM searches WHERE id = $1`, id)
	return requireRow(result, err, id)
}

// MarkRun records when the search last ran
func (s *PostgresStore) MarkRun(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE searches SET last_run_at = $2, updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, at)
	return requireRow(result, err, id)
}

// SetEnabled toggles whether the search may run
func (s *PostgresStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE searches SET enabled = $2, updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, enabled)
	return requireRow(result, err, id)
}

func requireRow(result sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("%w: update search %s: %v", models.ErrPersistence, id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update search %s: %v", models.ErrPersistence, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: search %s", models.ErrNotFound, id)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
