package leads

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadRowColumns = []string{
	"id", "search_id", "source_id", "platform", "kind", "parent_id", "title", "content", "author", "url",
	"matched_keywords", "detected_pattern", "opportunity_type", "opportunity_subtype", "confidence",
	"relevance_score", "urgency_score", "total_score", "tier", "summary", "email", "domain", "company",
	"author_profile_url", "social_profiles", "posted_at", "status", "created_at", "updated_at",
}

func newTestRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewPostgresRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

func leadValues(id, status string, now time.Time) []driver.Value {
	return []driver.Value{
		id, "search-1", "reddit:t3_abc", "reddit", "post", "", "Need a CRM", "Looking for a CRM tool", "alice",
		"https://reddit.com/r/smallbusiness/comments/abc", "{crm}", "looking for", "buying_intent", "software",
		0.9, 0.85, 0.5, 0.78, "warm", "wants a CRM", "", "", "", "https://reddit.com/user/alice", "{}",
		now, status, now, now,
	}
}

func testCandidate() *models.LeadCandidate {
	return &models.LeadCandidate{
		Platform:        "reddit",
		Kind:            models.ItemKindPost,
		Title:           "Need a CRM",
		Content:         "Looking for a CRM tool",
		Author:          "alice",
		URL:             "https://reddit.com/r/smallbusiness/comments/abc",
		MatchedKeywords: []string{"crm"},
		DetectedPattern: "looking for",
		OpportunityType: "buying_intent",
		Confidence:      0.9,
		RelevanceScore:  0.85,
		UrgencyScore:    0.5,
		TotalScore:      0.78,
		Tier:            "warm",
		Contact:         models.ContactInfo{AuthorProfileURL: "https://reddit.com/user/alice"},
		PostedAt:        time.Now(),
	}
}

func TestPostgresRepository_UpsertIsIdempotent(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now()
	cols := append(append([]string{}, leadRowColumns...), "inserted")

	first := append(leadValues("lead-1", "new", now), true)
	mock.ExpectQuery("INSERT INTO leads .* ON CONFLICT \\(search_id, source_id\\) DO UPDATE").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(first...))

	// Second call conflicts and keeps the original id and status
	second := append(leadValues("lead-1", "reviewed", now), false)
	mock.ExpectQuery("INSERT INTO leads").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(second...))

	ctx := context.Background()
	lead, created, err := repo.Upsert(ctx, "search-1", "reddit:t3_abc", testCandidate())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.LeadStatusNew, lead.Status)
	assert.Equal(t, []string{"crm"}, lead.MatchedKeywords)

	again, created, err := repo.Upsert(ctx, "search-1", "reddit:t3_abc", testCandidate())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, lead.ID, again.ID)
	assert.Equal(t, models.LeadStatusReviewed, again.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpsertFailureIsPersistenceError(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("INSERT INTO leads").WillReturnError(sql.ErrConnDone)

	_, _, err := repo.Upsert(context.Background(), "search-1", "reddit:t3_abc", testCandidate())
	assert.ErrorIs(t, err, models.ErrPersistence)
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  models.LeadStatus
		setup   func(mock sqlmock.Sqlmock, now time.Time)
		wantErr error
	}{
		{
			name:   "reviewed",
			status: models.LeadStatusReviewed,
			setup: func(mock sqlmock.Sqlmock, now time.Time) {
				mock.ExpectQuery("UPDATE leads SET status").
					WithArgs("lead-1", "reviewed").
					WillReturnRows(sqlmock.NewRows(leadRowColumns).AddRow(leadValues("lead-1", "reviewed", now)...))
			},
		},
		{
			name:   "unknown lead",
			status: models.LeadStatusDismissed,
			setup: func(mock sqlmock.Sqlmock, _ time.Time) {
				mock.ExpectQuery("UPDATE leads SET status").WillReturnError(sql.ErrNoRows)
			},
			wantErr: models.ErrNotFound,
		},
		{
			name:    "invalid status",
			status:  "archived",
			setup:   func(sqlmock.Sqlmock, time.Time) {},
			wantErr: models.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepo(t)
			tt.setup(mock, time.Now())

			lead, err := repo.UpdateStatus(context.Background(), "lead-1", tt.status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.status, lead.Status)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_ListBySearchAppliesFilters(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM leads WHERE search_id = \\$1 AND status = \\$2 AND total_score >= \\$3").
		WithArgs("search-1", "new", 0.5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("ORDER BY total_score DESC, created_at DESC LIMIT \\$4 OFFSET \\$5").
		WithArgs("search-1", "new", 0.5, 10, 0).
		WillReturnRows(sqlmock.NewRows(leadRowColumns).AddRow(leadValues("lead-1", "new", now)...))

	page, err := repo.ListBySearch(context.Background(), "search-1",
		Filter{Status: models.LeadStatusNew, MinScore: 0.5},
		Page{Limit: 10},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Leads, 1)
	assert.Equal(t, "lead-1", page.Leads[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetNotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("FROM leads WHERE id").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
