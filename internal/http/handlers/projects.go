package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type projectView struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	ProductType   string                `json:"product_type"`
	Description   string                `json:"description"`
	Features      []string              `json:"features"`
	BrandKit      domain.BrandKit       `json:"brand_kit"`
	Images        []domain.ProjectImage `json:"images"`
	APlusModules  []domain.APlusModule  `json:"aplus_modules"`
	Status        domain.ProjectStatus  `json:"status"`
	FailureReason string                `json:"failure_reason,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// GetProject returns the project with its generated assets and derived status.
func (a *App) GetProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	proj, ok := a.ownedProject(w, r, chi.URLParam(r, "project_id"), userID)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, projectView{
		ID:            proj.ID,
		Title:         proj.Title,
		ProductType:   proj.ProductType,
		Description:   proj.Description,
		Features:      proj.Features,
		BrandKit:      proj.BrandKit,
		Images:        proj.Images,
		APlusModules:  proj.APlusModules,
		Status:        proj.Status,
		FailureReason: proj.FailureReason,
		CreatedAt:     proj.CreatedAt,
		UpdatedAt:     proj.UpdatedAt,
	})
}

// ListProjectJobs returns every job tied to a project, oldest first.
func (a *App) ListProjectJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if _, ok := a.ownedProject(w, r, projectID, userID); !ok {
		return
	}
	jobs, err := a.Jobs.ListForProject(r.Context(), projectID)
	if err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("http: list project jobs")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, toJobView(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": views})
}
