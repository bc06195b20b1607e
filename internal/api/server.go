package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/routebook/internal/pipeline"
)

// Server is the HTTP API server for routebook.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	log          *slog.Logger
	volumeDir    string
	apiKey       string
}

// NewServer creates and configures the HTTP server. An empty apiKey leaves
// the API open.
func NewServer(orch *pipeline.Orchestrator, volumeDir, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		orchestrator: orch,
		log:          log,
		volumeDir:    volumeDir,
		apiKey:       apiKey,
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

	r.Route("/api/v1", func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(AuthMiddleware(s.apiKey, s.log))
		}

		r.Post("/runs", s.handleCreateRun)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{jobID}", s.handleRunStatus)
		r.Get("/runs/{jobID}/report", s.handleRunReport)

		r.Get("/volumes", s.handleListVolumes)
		r.Get("/volumes/{name}", s.handleDownloadVolume)

		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
