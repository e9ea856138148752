package notifications

import (
	"context"

	"github.com/leadscout/leadscout/internal/models"
)

// EventKind names something worth telling the owner of a search about
type EventKind string

const (
	EventLeadCreated  EventKind = "lead.created"
	EventJobCompleted EventKind = "job.completed"
	EventJobFailed    EventKind = "job.failed"
)

// Notifier delivers events. Delivery is best effort: failures are logged and
// never reach the caller.
//
// Payloads are *models.Lead for lead.created and *models.JobSummary for the
// job events.
type Notifier interface {
	Notify(ctx context.Context, spec *models.KeywordSearchSpec, event EventKind, payload interface{})
}

// Channel is one delivery route (webhook, email)
type Channel interface {
	Name() string
	Accepts(spec *models.KeywordSearchSpec, event EventKind) bool
	Send(ctx context.Context, spec *models.KeywordSearchSpec, event EventKind, payload interface{}) error
}
