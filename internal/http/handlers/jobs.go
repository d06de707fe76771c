package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type jobView struct {
	JobID        string           `json:"job_id"`
	JobType      domain.JobType   `json:"job_type"`
	Status       domain.JobStatus `json:"status"`
	RetryCount   int              `json:"retry_count"`
	MaxRetries   int              `json:"max_retries"`
	ErrorMessage string           `json:"error_message,omitempty"`
	ProjectID    string           `json:"project_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ProcessedAt  *time.Time       `json:"processed_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

func toJobView(j *domain.Job) jobView {
	return jobView{
		JobID:        j.ID,
		JobType:      j.Type,
		Status:       j.Status,
		RetryCount:   j.RetryCount,
		MaxRetries:   j.MaxRetries,
		ErrorMessage: j.ErrorMessage,
		ProjectID:    j.ProjectID,
		CreatedAt:    j.CreatedAt,
		ProcessedAt:  j.ProcessedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// JobStatus returns one job, scoped to its owner.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "job_id")

	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "job not found")
		} else {
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: load job")
			a.error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	if job.OwnerID != userID {
		a.error(w, http.StatusNotFound, "job not found")
		return
	}
	a.json(w, http.StatusOK, toJobView(job))
}

type jobStatsResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Credits    int `json:"credits"`
}

// JobStats returns the caller's active job counts and credit balance, the
// projection the dashboard polls.
func (a *App) JobStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	pending, processing, err := a.Jobs.CountActiveForOwner(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", userID).Msg("http: count jobs")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", userID).Msg("http: credit balance")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusOK, jobStatsResponse{
		Pending:    pending,
		Processing: processing,
		Credits:    balance,
	})
}
