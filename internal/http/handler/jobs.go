package handler

import (
	"encoding/json"
	"net/http"

	"gosnaggit/internal/jobs"
)

type JobsHandler struct {
	Jobs *jobs.Repo
}

// Stats exposes queue depth per (job_type, status) for operators.
func (h *JobsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Jobs.Stats(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}
