// Package handlers implements the HTTP surface of the listing generation
// API: enqueue endpoints, job status polling, and pack export.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/project"
	"server/internal/queue"
	"server/internal/storage"
)

// App bundles the collaborators the HTTP handlers need.
type App struct {
	Cfg      *infra.Config
	Logger   infra.Logger
	Jobs     *queue.Store
	Projects *project.Service
	Ledger   *credits.Ledger
	Files    *storage.FileStore
}

func NewApp(
	cfg *infra.Config,
	logger infra.Logger,
	jobs *queue.Store,
	projects *project.Service,
	ledger *credits.Ledger,
	files *storage.FileStore,
) *App {
	return &App{
		Cfg:      cfg,
		Logger:   logger,
		Jobs:     jobs,
		Projects: projects,
		Ledger:   ledger,
		Files:    files,
	}
}

func (a *App) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Logger.Error().Err(err).Msg("http: encode response")
	}
}

func (a *App) error(w http.ResponseWriter, status int, msg string) {
	a.json(w, status, map[string]string{"error": msg})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *App) currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := middleware.UserIDFromContext(r.Context())
	if uid == "" {
		a.error(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return uid, true
}

// ownedProject loads a project and enforces ownership. Foreign projects are
// reported as not found so ids cannot be probed.
func (a *App) ownedProject(w http.ResponseWriter, r *http.Request, projectID, userID string) (*domain.Project, bool) {
	proj, err := a.Projects.Get(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "project not found")
		} else {
			a.Logger.Error().Err(err).Str("project_id", projectID).Msg("http: load project")
			a.error(w, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}
	if proj.OwnerID != userID {
		a.error(w, http.StatusNotFound, "project not found")
		return nil, false
	}
	return proj, true
}
