package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/routebook/internal/pipeline"
	"github.com/dgallion1/routebook/internal/report"
)

type runRequest struct {
	Stage string `json:"stage"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	stage, err := pipeline.ParseStage(req.Stage)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(stage)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"stage":    job.Stage,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/v1/runs/%s", job.ID),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.Jobs()
	runs := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		snap := j.Snapshot()
		runs = append(runs, map[string]any{
			"job_id":     snap.ID,
			"stage":      snap.Stage,
			"status":     snap.Status,
			"created_at": snap.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// handleRunReport renders the run as Markdown, or HTML with ?format=html.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	run := report.FromSnapshot(job.Snapshot())

	switch r.URL.Query().Get("format") {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write(report.Markdown(run))
	case "html":
		page, err := report.HTML(run)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	default:
		jsonError(w, "format must be md or html", http.StatusBadRequest)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
