package models

import "time"

// ItemKind distinguishes top-level posts from replies
type ItemKind string

const (
	ItemKindPost    ItemKind = "post"
	ItemKindComment ItemKind = "comment"
)

// RawItem is a piece of content fetched from a platform for one search run.
// It is never persisted as-is.
type RawItem struct {
	SourceID  string    `json:"source_id"` // platform-unique, e.g. "reddit:t3_abc123"
	Platform  string    `json:"platform"`  // "reddit", "hackernews"
	SearchID  string    `json:"search_id"`
	Kind      ItemKind  `json:"kind"`
	Community string    `json:"community,omitempty"` // subreddit for Reddit items
	ParentID  string    `json:"parent_id,omitempty"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Content returns title and body as a single block of text
func (i RawItem) Content() string {
	if i.Title == "" {
		return i.Text
	}
	if i.Text == "" {
		return i.Title
	}
	return i.Title + "\n\n" + i.Text
}

// ContactInfo holds whatever contact details could be pulled out of an item
type ContactInfo struct {
	Email            string   `json:"email,omitempty"`
	Domain           string   `json:"domain,omitempty"`
	Company          string   `json:"company,omitempty"`
	AuthorProfileURL string   `json:"author_profile_url,omitempty"`
	SocialProfiles   []string `json:"social_profiles,omitempty"`
}

// HasAny reports whether at least one contact channel was found
func (c ContactInfo) HasAny() bool {
	return c.Email != "" || c.Domain != "" || len(c.SocialProfiles) > 0
}

// LeadCandidate is the analyzer's verdict for an item that qualifies as a lead
type LeadCandidate struct {
	Platform           string      `json:"platform"`
	Kind               ItemKind    `json:"kind"`
	ParentID           string      `json:"parent_id,omitempty"`
	Title              string      `json:"title"`
	Content            string      `json:"content"`
	Author             string      `json:"author"`
	URL                string      `json:"url"`
	MatchedKeywords    []string    `json:"matched_keywords"`
	DetectedPattern    string      `json:"detected_pattern,omitempty"`
	OpportunityType    string      `json:"opportunity_type"`
	OpportunitySubtype string      `json:"opportunity_subtype,omitempty"`
	Confidence         float64     `json:"confidence"`
	RelevanceScore     float64     `json:"relevance_score"`
	UrgencyScore       float64     `json:"urgency_score"`
	TotalScore         float64     `json:"total_score"`
	Tier               string      `json:"tier"` // "hot", "warm", "cold"
	Summary            string      `json:"summary,omitempty"`
	Contact            ContactInfo `json:"contact"`
	PostedAt           time.Time   `json:"posted_at"`
}

// LeadStatus is the review status of a stored lead
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusReviewed  LeadStatus = "reviewed"
	LeadStatusDismissed LeadStatus = "dismissed"
	LeadStatusConverted LeadStatus = "converted"
)

// Valid reports whether s is a known lead status
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusReviewed, LeadStatusDismissed, LeadStatusConverted:
		return true
	}
	return false
}

// Lead is a persisted business opportunity, unique per (SearchID, SourceID)
type Lead struct {
	ID       string `json:"id"`
	SearchID string `json:"search_id"`
	SourceID string `json:"source_id"`
	LeadCandidate
	Status    LeadStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
