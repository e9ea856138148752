// Package dedup records which source items each search has already handled.
package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/lib/pq"
)

// StoreInterface is the durable per-search seen set
type StoreInterface interface {
	HasSeen(ctx context.Context, searchID, sourceID string) (bool, error)
	MarkSeen(ctx context.Context, searchID, sourceID string, leadCreated bool) error
	FilterUnseen(ctx context.Context, searchID string, sourceIDs []string) ([]string, error)
}

// PostgresStore keeps seen records in the seen_records table. Rows are only
// ever inserted, never updated or deleted.
type PostgresStore struct {
	db *sqlx.DB
}

// Ensure PostgresStore implements StoreInterface
var _ StoreInterface = (*PostgresStore)(nil)

// NewPostgresStore creates a new dedup store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// HasSeen reports whether the item was already handled for this search
func (s *PostgresStore) HasSeen(ctx context.Context, searchID, sourceID string) (bool, error) {
	query := `SELECT 1 FROM seen_records WHERE search_id = $1 AND source_id = $2`

	var one int
	err := s.db.QueryRowContext(ctx, query, searchID, sourceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: check seen record: %v", models.ErrPersistence, err)
	}

	return true, nil
}

// MarkSeen records the item as handled. Marking an already seen item is a no-op.
func (s *PostgresStore) MarkSeen(ctx context.Context, searchID, sourceID string, leadCreated bool) error {
	query := `
		INSERT INTO seen_records (search_id, source_id, lead_created)
		VALUES ($1, $2, $3)
		ON CONFLICT (search_id, source_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, searchID, sourceID, leadCreated); err != nil {
		return fmt.Errorf("%w: mark seen: %v", models.ErrPersistence, err)
	}

	return nil
}

// FilterUnseen returns the IDs not yet seen for the search, in input order
func (s *PostgresStore) FilterUnseen(ctx context.Context, searchID string, sourceIDs []string) ([]string, error) {
	if len(sourceIDs) == 0 {
		return []string{}, nil
	}

	query := `SELECT source_id FROM seen_records WHERE search_id = $1 AND source_id = ANY($2)`

	var seen []string
	if err := s.db.SelectContext(ctx, &seen, query, searchID, pq.Array(sourceIDs)); err != nil {
		return nil, fmt.Errorf("%w: filter seen records: %v", models.ErrPersistence, err)
	}

	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	unseen := make([]string, 0, len(sourceIDs)-len(seen))
	for _, id := range sourceIDs {
		if _, ok := seenSet[id]; !ok {
			unseen = append(unseen, id)
		}
	}

	return unseen, nil
}
