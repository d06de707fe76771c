package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/queue"
)

type generateImageRequest struct {
	ImageType string `json:"image_type"`
	Style     string `json:"style"`
}

type generateAPlusRequest struct {
	GenerateImages bool `json:"generate_images"`
	IsPremium      bool `json:"is_premium"`
}

type generatePackRequest struct {
	IncludeAPlus bool `json:"include_aplus"`
}

type enqueueResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// GenerateImage enqueues a single marketing image generation job.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if _, ok := a.ownedProject(w, r, projectID, userID); !ok {
		return
	}

	var req generateImageRequest
	if !a.decode(w, r, &req) {
		return
	}
	imageType, ok := domain.ParseImageType(req.ImageType)
	if !ok {
		a.error(w, http.StatusBadRequest, "unsupported image type")
		return
	}

	jobID, err := a.Jobs.Enqueue(r.Context(), queue.EnqueueParams{
		Type: domain.JobTypeGenerateImage,
		Payload: domain.ImageJobPayload{
			ProjectID: projectID,
			ImageType: imageType,
			Style:     req.Style,
		},
		OwnerID:    userID,
		ProjectID:  projectID,
		MaxRetries: a.Cfg.JobMaxRetries,
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("http: enqueue image job")
		a.error(w, http.StatusInternalServerError, "could not enqueue job")
		return
	}
	a.json(w, http.StatusAccepted, enqueueResponse{JobID: jobID, Status: domain.JobStatusPending})
}

// GenerateAPlus enqueues an A+ content generation job.
func (a *App) GenerateAPlus(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if _, ok := a.ownedProject(w, r, projectID, userID); !ok {
		return
	}

	var req generateAPlusRequest
	if !a.decode(w, r, &req) {
		return
	}

	jobID, err := a.Jobs.Enqueue(r.Context(), queue.EnqueueParams{
		Type: domain.JobTypeGenerateAPlus,
		Payload: domain.APlusJobPayload{
			ProjectID:      projectID,
			GenerateImages: req.GenerateImages,
			IsPremium:      req.IsPremium,
		},
		OwnerID:    userID,
		ProjectID:  projectID,
		MaxRetries: a.Cfg.JobMaxRetries,
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("http: enqueue aplus job")
		a.error(w, http.StatusInternalServerError, "could not enqueue job")
		return
	}
	a.json(w, http.StatusAccepted, enqueueResponse{JobID: jobID, Status: domain.JobStatusPending})
}

// GeneratePack enqueues a complete-pack job. The worker-side orchestrator
// fans it out into child jobs; here we only guard against double submission
// while any job for the project is still in flight.
func (a *App) GeneratePack(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if _, ok := a.ownedProject(w, r, projectID, userID); !ok {
		return
	}

	var req generatePackRequest
	if !a.decode(w, r, &req) {
		return
	}

	active, err := a.Jobs.CountActiveForProject(r.Context(), projectID)
	if err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("http: count active jobs")
		a.error(w, http.StatusInternalServerError, "could not enqueue pack")
		return
	}
	if active > 0 {
		a.error(w, http.StatusConflict, "generation already in progress for this project")
		return
	}

	jobID, err := a.Jobs.Enqueue(r.Context(), queue.EnqueueParams{
		Type: domain.JobTypeGeneratePack,
		Payload: domain.PackJobPayload{
			ProjectID:    projectID,
			IncludeAPlus: req.IncludeAPlus,
		},
		OwnerID:    userID,
		ProjectID:  projectID,
		MaxRetries: a.Cfg.JobMaxRetries,
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("http: enqueue pack job")
		a.error(w, http.StatusInternalServerError, "could not enqueue pack")
		return
	}
	a.json(w, http.StatusAccepted, enqueueResponse{JobID: jobID, Status: domain.JobStatusPending})
}
