package models

import (
	"fmt"
	"time"
)

// ScrapingMode controls whether a search runs once or on an interval
type ScrapingMode string

const (
	ModeOneTime   ScrapingMode = "one_time"
	ModeScheduled ScrapingMode = "scheduled"
)

// Supported platform identifiers
const (
	PlatformReddit     = "reddit"
	PlatformHackerNews = "hackernews"
)

// RedditConfig narrows what the Reddit connector fetches for a search.
// An empty Subreddits list searches all of Reddit.
type RedditConfig struct {
	Subreddits      []string `json:"subreddits" yaml:"subreddits"`
	Limit           int      `json:"limit" yaml:"limit" validate:"omitempty,min=1,max=1000"`
	Sort            string   `json:"sort" yaml:"sort" validate:"omitempty,oneof=new hot top relevance"`
	TimeFilter      string   `json:"time_filter" yaml:"time_filter" validate:"omitempty,oneof=hour day week month year all"`
	IncludeComments bool     `json:"include_comments" yaml:"include_comments"`
	CommentLimit    int      `json:"comment_limit" yaml:"comment_limit" validate:"omitempty,min=1,max=500"`
}

// KeywordSearchSpec is a user-defined search: what to look for, where, and how often
type KeywordSearchSpec struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name" validate:"required,max=200"`
	Keywords     []string     `json:"keywords" yaml:"keywords" validate:"required,min=1,dive,required"`
	Patterns     []string     `json:"patterns,omitempty" yaml:"patterns"`
	Platforms    []string     `json:"platforms" yaml:"platforms" validate:"required,min=1,dive,oneof=reddit hackernews"`
	RedditConfig RedditConfig `json:"reddit_config" yaml:"reddit_config"`
	Mode         ScrapingMode `json:"mode" yaml:"mode" validate:"required,oneof=one_time scheduled"`
	Interval     string       `json:"interval,omitempty" yaml:"interval" validate:"omitempty,oneof=30m 1h 6h 24h"`
	Enabled      bool         `json:"enabled" yaml:"enabled"`
	WebhookURL   string       `json:"webhook_url,omitempty" yaml:"webhook_url" validate:"omitempty,url"`
	LastRunAt    *time.Time   `json:"last_run_at,omitempty" yaml:"-"`
	CreatedAt    time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"-"`
}

// IntervalDuration parses the schedule interval ("30m", "1h", "6h", "24h")
func (s *KeywordSearchSpec) IntervalDuration() (time.Duration, error) {
	if s.Interval == "" {
		return 0, fmt.Errorf("%w: search %s has no interval", ErrValidation, s.ID)
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid interval %q: %v", ErrValidation, s.Interval, err)
	}
	return d, nil
}

// IsScheduled reports whether the scheduler should consider this search
func (s *KeywordSearchSpec) IsScheduled() bool {
	return s.Enabled && s.Mode == ModeScheduled
}
