package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/leadscout/leadscout/internal/models"
)

// ReportArchive stores finished job summaries as JSON blobs laid out as
// jobs/<search_id>/<yyyy>/<mm>/<dd>/<job_id>.json
type ReportArchive struct {
	store BlobStore
}

// NewReportArchive creates an archive on top of a blob store
func NewReportArchive(store BlobStore) *ReportArchive {
	return &ReportArchive{store: store}
}

// ReportName is the blob name for a summary
func ReportName(summary *models.JobSummary) string {
	day := summary.StartedAt.UTC()
	return path.Join("jobs", summary.SearchID,
		fmt.Sprintf("%04d", day.Year()),
		fmt.Sprintf("%02d", int(day.Month())),
		fmt.Sprintf("%02d", day.Day()),
		summary.JobID+".json")
}

// SaveJobReport writes the summary and returns its blob name
func (a *ReportArchive) SaveJobReport(ctx context.Context, summary *models.JobSummary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode job report: %w", err)
	}

	name := ReportName(summary)
	if err := a.store.Put(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// LoadJobReport reads a summary back by blob name
func (a *ReportArchive) LoadJobReport(ctx context.Context, name string) (*models.JobSummary, error) {
	if !strings.HasPrefix(name, "jobs/") || !strings.HasSuffix(name, ".json") || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: job report %s", models.ErrNotFound, name)
	}

	data, err := a.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	var summary models.JobSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode job report %s: %w", name, err)
	}
	return &summary, nil
}

// ListJobReports returns the report names for a search, newest first
func (a *ReportArchive) ListJobReports(ctx context.Context, searchID string) ([]string, error) {
	names, err := a.store.List(ctx, path.Join("jobs", searchID)+"/")
	if err != nil {
		return nil, err
	}

	reports := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, ".json") {
			reports = append(reports, n)
		}
	}
	// Date components sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(reports)))
	return reports, nil
}
