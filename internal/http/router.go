package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"gosnaggit/internal/alerts"
	"gosnaggit/internal/auth"
	"gosnaggit/internal/config"
	"gosnaggit/internal/http/handler"
	mw "gosnaggit/internal/http/middleware"
	"gosnaggit/internal/jobs"
	"gosnaggit/internal/search"
)

type Deps struct {
	DB         *gorm.DB
	JWT        *auth.JWT
	Scheduler  *search.Scheduler
	Jobs       *jobs.Repo
	Alerts     *alerts.Repo
	Dispatcher *alerts.Dispatcher
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	sh := &handler.SearchHandler{DB: d.DB, Scheduler: d.Scheduler}
	alh := &handler.AlertHandler{DB: d.DB, Alerts: d.Alerts, Dispatcher: d.Dispatcher, Searches: sh}
	jh := &handler.JobsHandler{Jobs: d.Jobs}

	r.Route("/searches", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", sh.Create)
		r.Get("/", sh.List)

		r.Post("/{id}/tier", sh.SetTier)
		r.Post("/{id}/pause", sh.Pause)
		r.Post("/{id}/resume", sh.Resume)
		r.Delete("/{id}", sh.Delete)

		r.Get("/{id}/alerts", alh.List)
		r.Post("/{id}/alerts/{alertID}/dismiss", alh.Dismiss)
		r.Post("/{id}/dispatch", alh.Dispatch)
	})

	r.With(auth.RequireAuth(d.JWT)).Get("/jobs/stats", jh.Stats)

	return r
}
