package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/routebook/internal/pipeline"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts := map[pipeline.JobStatus]int{}
	for _, j := range s.orchestrator.Jobs() {
		counts[j.Snapshot().Status]++
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"queue_depth": s.orchestrator.QueueDepth(),
		"jobs":        counts,
		"timings":     s.orchestrator.Timings(),
	})
}
