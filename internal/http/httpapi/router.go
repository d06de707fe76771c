// Package httpapi assembles the chi router for the listing generation API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/observability"
)

// NewRouter wires the middleware chain and routes. Everything under /api
// requires a bearer token and is rate limited per user.
func NewRouter(app *handlers.App, counter middleware.CounterStore, countries geoip.CountryResolver) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(app.Cfg.CORSAllowedOrigins))
	r.Use(middleware.Marketplace(app.Cfg.DefaultLocale, countries))

	r.Get("/healthz", app.Health)
	r.Handle("/metrics", observability.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Cfg.JWTSecret))
		r.Use(middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute, counter))

		r.Route("/projects/{project_id}", func(r chi.Router) {
			r.Get("/", app.GetProject)
			r.Get("/jobs", app.ListProjectJobs)
			r.Get("/export", app.ExportProject)
			r.Post("/images", app.GenerateImage)
			r.Post("/aplus", app.GenerateAPlus)
			r.Post("/pack", app.GeneratePack)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/stats", app.JobStats)
			r.Get("/{job_id}", app.JobStatus)
		})
	})

	return r
}
