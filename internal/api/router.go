// Package api exposes job control and lead review over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/leads"
	"github.com/leadscout/leadscout/internal/models"
)

// JobService starts jobs and reports on them
type JobService interface {
	Trigger(ctx context.Context, searchID string) (*models.Job, error)
	GetStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
}

// SearchLister lists stored searches
type SearchLister interface {
	List(ctx context.Context) ([]models.KeywordSearchSpec, error)
}

// ReportReader reads archived job summaries
type ReportReader interface {
	ListJobReports(ctx context.Context, searchID string) ([]string, error)
	LoadJobReport(ctx context.Context, name string) (*models.JobSummary, error)
}

// Dependencies for the HTTP surface. Reports and Gatherer are optional.
type Dependencies struct {
	Jobs     JobService
	Searches SearchLister
	Leads    leads.RepositoryInterface
	Reports  ReportReader
	Gatherer prometheus.Gatherer
}

// NewRouter builds the HTTP routes
func NewRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	router.HandleFunc("/searches", listSearchesHandler(deps.Searches)).Methods(http.MethodGet)
	router.HandleFunc("/searches/{id}/trigger", triggerHandler(deps.Jobs)).Methods(http.MethodPost)
	router.HandleFunc("/searches/{id}/leads", listLeadsHandler(deps.Leads)).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{id}", jobStatusHandler(deps.Jobs)).Methods(http.MethodGet)
	router.HandleFunc("/leads/{id}", updateLeadHandler(deps.Leads)).Methods(http.MethodPatch)

	if deps.Reports != nil {
		router.HandleFunc("/searches/{id}/reports", listReportsHandler(deps.Reports)).Methods(http.MethodGet)
		router.HandleFunc("/reports/{name:.+}", getReportHandler(deps.Reports)).Methods(http.MethodGet)
	}

	return router
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func listSearchesHandler(searches SearchLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specs, err := searches.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"searches": specs})
	}
}

// triggerHandler starts a manual run. A search that already has a job in
// flight answers 409 with the rejected job.
func triggerHandler(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		searchID := mux.Vars(r)["id"]

		job, err := jobs.Trigger(r.Context(), searchID)
		if err != nil {
			if errors.Is(err, models.ErrInvalidState) && job != nil {
				writeJSON(w, http.StatusConflict, map[string]interface{}{
					"error": err.Error(),
					"job":   job.Status(),
				})
				return
			}
			writeError(w, err)
			return
		}

		logrus.WithFields(logrus.Fields{
			"search_id": searchID,
			"job_id":    job.ID,
		}).Info("Manual run triggered")
		writeJSON(w, http.StatusAccepted, job.Status())
	}
}

func jobStatusHandler(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := jobs.GetStatus(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func listLeadsHandler(repo leads.RepositoryInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := leads.Filter{Status: models.LeadStatus(q.Get("status"))}
		if filter.Status != "" && !filter.Status.Valid() {
			writeError(w, validationError("unknown status "+q.Get("status")))
			return
		}
		if v := q.Get("min_score"); v != "" {
			score, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, validationError("min_score must be a number"))
				return
			}
			filter.MinScore = score
		}

		var page leads.Page
		var err error
		if page.Limit, err = intParam(q.Get("limit")); err != nil {
			writeError(w, validationError("limit must be an integer"))
			return
		}
		if page.Offset, err = intParam(q.Get("offset")); err != nil {
			writeError(w, validationError("offset must be an integer"))
			return
		}

		result, err := repo.ListBySearch(r.Context(), mux.Vars(r)["id"], filter, page)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func listReportsHandler(reports ReportReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := reports.ListJobReports(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeError(w, err)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"reports": names})
	}
}

func getReportHandler(reports ReportReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := reports.LoadJobReport(r.Context(), mux.Vars(r)["name"])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

type updateLeadRequest struct {
	Status models.LeadStatus `json:"status"`
}

func updateLeadHandler(repo leads.RepositoryInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateLeadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, validationError("invalid JSON body"))
			return
		}

		lead, err := repo.UpdateStatus(r.Context(), mux.Vars(r)["id"], req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
