package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docdiff/internal/config"
	"github.com/dgallion1/docdiff/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP API server for docdiff.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	runner       *pipeline.Runner
	validate     *validator.Validate
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, runner *pipeline.Runner, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		runner:       runner,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/diff", s.handleDiff)
		r.Post("/api/diff/upload", s.handleDiffUpload)
		r.Get("/api/diff/revision", s.handleDiffRevision)

		r.Post("/api/jobs", s.handleSubmitJob)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/stats/compare", s.handleCompareStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
