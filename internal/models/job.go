package models

import "time"

// JobState is the lifecycle state of a search execution
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// IsTerminal reports whether no further transitions are possible
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// TriggerKind records what started a job
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

// JobCounts are the per-run processing counters
type JobCounts struct {
	Fetched      int `json:"fetched"`
	Deduplicated int `json:"deduplicated"` // items dropped because they were already seen
	Analyzed     int `json:"analyzed"`
	Rejected     int `json:"rejected"`
	LeadsCreated int `json:"leads_created"`
	LeadsUpdated int `json:"leads_updated"`
	Errors       int `json:"errors"`
}

// Job is one execution of a KeywordSearchSpec. Immutable once terminal.
type Job struct {
	ID         string      `json:"id"`
	SearchID   string      `json:"search_id"`
	Trigger    TriggerKind `json:"trigger"`
	State      JobState    `json:"state"`
	Counts     JobCounts   `json:"counts"`
	Error      string      `json:"error,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// JobStatus is the externally visible view of a job
type JobStatus struct {
	JobID      string     `json:"job_id"`
	SearchID   string     `json:"search_id"`
	State      JobState   `json:"state"`
	Counts     JobCounts  `json:"counts"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Status projects a Job onto its status view
func (j *Job) Status() *JobStatus {
	return &JobStatus{
		JobID:      j.ID,
		SearchID:   j.SearchID,
		State:      j.State,
		Counts:     j.Counts,
		Error:      j.Error,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// ItemError records a per-item failure that did not abort the run
type ItemError struct {
	SourceID string `json:"source_id"`
	Stage    string `json:"stage"` // "analyze", "persist", "dedup"
	Message  string `json:"message"`
}

// JobSummary is the outcome report produced at the end of every run
type JobSummary struct {
	JobID      string      `json:"job_id"`
	SearchID   string      `json:"search_id"`
	SearchName string      `json:"search_name"`
	Trigger    TriggerKind `json:"trigger"`
	State      JobState    `json:"state"`
	Counts     JobCounts   `json:"counts"`
	ItemErrors []ItemError `json:"item_errors,omitempty"`
	Cause      string      `json:"cause,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Duration   string      `json:"duration"`
}

// AddItemError records a failure for one item and bumps the error counter
func (s *JobSummary) AddItemError(sourceID, stage string, err error) {
	s.ItemErrors = append(s.ItemErrors, ItemError{SourceID: sourceID, Stage: stage, Message: err.Error()})
	s.Counts.Errors++
}
