// Package leads persists business opportunities found by search runs.
package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/lib/pq"
)

// leadColumns lists columns for SELECT and RETURNING clauses on leads.
const leadColumns = `id, search_id, source_id, platform, kind, parent_id, title, content, author, url,
	matched_keywords, detected_pattern, opportunity_type, opportunity_subtype, confidence,
	relevance_score, urgency_score, total_score, tier, summary, email, domain, company,
	author_profile_url, social_profiles, posted_at, status, created_at, updated_at`

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Filter narrows a lead listing
type Filter struct {
	Status   models.LeadStatus
	MinScore float64
}

// Page selects a window of a listing
type Page struct {
	Limit  int
	Offset int
}

// LeadPage is one page of leads plus the total number of matches
type LeadPage struct {
	Leads  []models.Lead `json:"leads"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// RepositoryInterface is the lead store used by the pipeline
type RepositoryInterface interface {
	// Upsert inserts or refreshes the lead for (searchID, sourceID). The
	// boolean is true when a new lead was created.
	Upsert(ctx context.Context, searchID, sourceID string, candidate *models.LeadCandidate) (*models.Lead, bool, error)
	Get(ctx context.Context, id string) (*models.Lead, error)
	ListBySearch(ctx context.Context, searchID string, filter Filter, page Page) (*LeadPage, error)
	UpdateStatus(ctx context.Context, id string, status models.LeadStatus) (*models.Lead, error)
}

type leadRow struct {
	ID                 string         `db:"id"`
	SearchID           string         `db:"search_id"`
	SourceID           string         `db:"source_id"`
	Platform           string         `db:"platform"`
	Kind               string         `db:"kind"`
	ParentID           string         `db:"parent_id"`
	Title              string         `db:"title"`
	Content            string         `db:"content"`
	Author             string         `db:"author"`
	URL                string         `db:"url"`
	MatchedKeywords    pq.StringArray `db:"matched_keywords"`
	DetectedPattern    string         `db:"detected_pattern"`
	OpportunityType    string         `db:"opportunity_type"`
	OpportunitySubtype string         `db:"opportunity_subtype"`
	Confidence         float64        `db:"confidence"`
	RelevanceScore     float64        `db:"relevance_score"`
	UrgencyScore       float64        `db:"urgency_score"`
	TotalScore         float64        `db:"total_score"`
	Tier               string         `db:"tier"`
	Summary            string         `db:"summary"`
	Email              string         `db:"email"`
	Domain             string         `db:"domain"`
	Company            string         `db:"company"`
	AuthorProfileURL   string         `db:"author_profile_url"`
	SocialProfiles     pq.StringArray `db:"social_profiles"`
	PostedAt           time.Time      `db:"posted_at"`
	Status             string         `db:"status"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

type upsertRow struct {
	leadRow
	Inserted bool `db:"inserted"`
}

func (r *leadRow) toModel() *models.Lead {
	return &models.Lead{
		ID:       r.ID,
		SearchID: r.SearchID,
		SourceID: r.SourceID,
		LeadCandidate: models.LeadCandidate{
			Platform:           r.Platform,
			Kind:               models.ItemKind(r.Kind),
			ParentID:           r.ParentID,
			Title:              r.Title,
			Content:            r.Content,
			Author:             r.Author,
			URL:                r.URL,
			MatchedKeywords:    []string(r.MatchedKeywords),
			DetectedPattern:    r.DetectedPattern,
			OpportunityType:    r.OpportunityType,
			OpportunitySubtype: r.OpportunitySubtype,
			Confidence:         r.Confidence,
			RelevanceScore:     r.RelevanceScore,
			UrgencyScore:       r.UrgencyScore,
			TotalScore:         r.TotalScore,
			Tier:               r.Tier,
			Summary:            r.Summary,
			Contact: models.ContactInfo{
				Email:            r.Email,
				Domain:           r.Domain,
				Company:          r.Company,
				AuthorProfileURL: r.AuthorProfileURL,
				SocialProfiles:   []string(r.SocialProfiles),
			},
			PostedAt: r.PostedAt,
		},
		Status:    models.LeadStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// PostgresRepository handles database operations for leads
type PostgresRepository struct {
	db *sqlx.DB
}

// Ensure PostgresRepository implements RepositoryInterface
var _ RepositoryInterface = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new lead repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert writes the analysis result for an item. On conflict the analysis
// fields are refreshed while ID, status and created_at are kept, so repeated
// calls with the same key return the same lead.
func (r *PostgresRepository) Upsert(
	ctx context.Context,
	searchID, sourceID string,
	c *models.LeadCandidate,
) (*models.Lead, bool, error) {
	if c == nil {
		return nil, false, fmt.Errorf("%w: nil lead candidate", models.ErrValidation)
	}

	query := `
		INSERT INTO leads (
			id, search_id, source_id, platform, kind, parent_id, title, content, author, url,
			matched_keywords, detected_pattern, opportunity_type, opportunity_subtype, confidence,
			relevance_score, urgency_score, total_score, tier, summary, email, domain, company,
			author_profile_url, social_profiles, posted_at, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		ON CONFLICT (search_id, source_id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			matched_keywords = EXCLUDED.matched_keywords,
			detected_pattern = EXCLUDED.detected_pattern,
			opportunity_type = EXCLUDED.opportunity_type,
			opportunity_subtype = EXCLUDED.opportunity_subtype,
			confidence = EXCLUDED.confidence,
			relevance_score = EXCLUDED.relevance_score,
			urgency_score = EXCLUDED.urgency_score,
			total_score = EXCLUDED.total_score,
			tier = EXCLUDED.tier,
			summary = EXCLUDED.summary,
			email = EXCLUDED.email,
			domain = EXCLUDED.domain,
			company = EXCLUDED.company,
			author_profile_url = EXCLUDED.author_profile_url,
			social_profiles = EXCLUDED.social_profiles,
			updated_at = NOW()
		RETURNING ` + leadColumns + `, (xmax = 0) AS inserted`

	var row upsertRow
	err := r.db.GetContext(ctx, &row, query,
		uuid.New().String(), searchID, sourceID, c.Platform, string(c.Kind), c.ParentID,
		c.Title, c.Content, c.Author, c.URL,
		pq.Array(nonNil(c.MatchedKeywords)), c.DetectedPattern, c.OpportunityType, c.OpportunitySubtype,
		c.Confidence, c.RelevanceScore, c.UrgencyScore, c.TotalScore, c.Tier, c.Summary,
		c.Contact.Email, c.Contact.Domain, c.Contact.Company, c.Contact.AuthorProfileURL,
		pq.Array(nonNil(c.Contact.SocialProfiles)), c.PostedAt, string(models.LeadStatusNew),
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: upsert lead %s/%s: %v", models.ErrPersistence, searchID, sourceID, err)
	}

	return row.toModel(), row.Inserted, nil
}

// Get returns a lead by ID
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	var row leadRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: lead %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get lead: %v", models.ErrPersistence, err)
	}

	return row.toModel(), nil
}

// ListBySearch returns the leads of a search, best first
func (r *PostgresRepository) ListBySearch(
	ctx context.Context,
	searchID string,
	filter Filter,
	page Page,
) (*LeadPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown lead status %q", models.ErrValidation, filter.Status)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	conditions := []string{"search_id = $1"}
	args := []interface{}{searchID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.MinScore > 0 {
		args = append(args, filter.MinScore)
		conditions = append(conditions, fmt.Sprintf("total_score >= $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM leads WHERE ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("%w: count leads: %v", models.ErrPersistence, err)
	}

	listArgs := append(append([]interface{}{}, args...), limit, offset)
	listQuery := fmt.Sprintf(
		`SELECT %s FROM leads WHERE %s ORDER BY total_score DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		leadColumns, where, len(args)+1, len(args)+2,
	)

	var rows []leadRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, listArgs...); err != nil {
		return nil, fmt.Errorf("%w: list leads: %v", models.ErrPersistence, err)
	}

	result := &LeadPage{
		Leads:  make([]models.Lead, 0, len(rows)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for i := range rows {
		result.Leads = append(result.Leads, *rows[i].toModel())
	}

	return result, nil
}

// UpdateStatus changes the review status of a lead
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) (*models.Lead, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown lead status %q", models.ErrValidation, status)
	}

	query := `UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + leadColumns

	var row leadRow
	if err := r.db.GetContext(ctx, &row, query, id, string(status)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: lead %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: update lead status: %v", models.ErrPersistence, err)
	}

	return row.toModel(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
