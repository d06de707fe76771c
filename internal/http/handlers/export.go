package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	pkgzip "server/pkg/zip"
)

// ExportProject streams a ZIP of the project's generated assets: every image
// plus the A+ modules as JSON. Only completed projects are exportable;
// partial packs are not valid deliverables.
func (a *App) ExportProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	proj, ok := a.ownedProject(w, r, chi.URLParam(r, "project_id"), userID)
	if !ok {
		return
	}
	if proj.Status != domain.ProjectStatusCompleted {
		a.error(w, http.StatusConflict, "project is not completed")
		return
	}

	assets := make([]pkgzip.Asset, 0, len(proj.Images)+1)
	for _, img := range proj.Images {
		data, err := a.Files.Read(r.Context(), img.StorageKey)
		if err != nil {
			a.Logger.Warn().Err(err).
				Str("project_id", proj.ID).
				Str("storage_key", img.StorageKey).
				Msg("http: export asset unreadable, skipping")
			continue
		}
		assets = append(assets, pkgzip.Asset{
			Filename: fmt.Sprintf("images/%s%s", img.Type, path.Ext(img.StorageKey)),
			MIME:     img.Format,
			Data:     data,
		})
	}
	if len(proj.APlusModules) > 0 {
		modulesJSON, err := json.MarshalIndent(proj.APlusModules, "", "  ")
		if err == nil {
			assets = append(assets, pkgzip.Asset{
				Filename: "aplus.json",
				MIME:     "application/json",
				Data:     modulesJSON,
			})
		}
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "project has no exportable assets")
		return
	}

	archive := pkgzip.ArchiveAssets(assets)
	if archive == nil {
		a.error(w, http.StatusInternalServerError, "could not build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="listing-pack-%s.zip"`, proj.ID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(archive); err != nil {
		a.Logger.Error().Err(err).Str("project_id", proj.ID).Msg("http: write archive")
	}
}
