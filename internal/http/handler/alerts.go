package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"gosnaggit/internal/alerts"
	"gosnaggit/internal/search"
)

type AlertHandler struct {
	DB         *gorm.DB
	Alerts     *alerts.Repo
	Dispatcher *alerts.Dispatcher
	Searches   *SearchHandler
}

type alertDTO struct {
	ID            uint64     `json:"id"`
	SearchID      uint64     `json:"search_id"`
	ResultID      *uint64    `json:"result_id"`
	Status        string     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	ErrorMessage  *string    `json:"error_message"`
	NextAttemptAt *time.Time `json:"next_attempt_at"`
	SentAt        *time.Time `json:"sent_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Searches.owned(w, r)
	if !ok {
		return
	}

	status := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("status")))
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	rows, err := h.Alerts.ListBySearch(r.Context(), s.ID, status, limit)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]alertDTO, 0, len(rows))
	for _, a := range rows {
		out = append(out, alertDTO{
			ID:            a.ID,
			SearchID:      a.SearchID,
			ResultID:      a.ResultID,
			Status:        a.Status,
			AttemptCount:  a.AttemptCount,
			ErrorMessage:  a.ErrorMessage,
			NextAttemptAt: a.NextAttemptAt,
			SentAt:        a.SentAt,
			CreatedAt:     a.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *AlertHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Searches.owned(w, r)
	if !ok {
		return
	}

	alertID, err := strconv.ParseUint(chi.URLParam(r, "alertID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid alert id", http.StatusBadRequest)
		return
	}

	dismissed, err := h.Alerts.Dismiss(r.Context(), s.ID, alertID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !dismissed {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dispatch triggers one forced dispatch attempt for the search, bypassing
// cooldown and digest gating.
func (h *AlertHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Searches.owned(w, r)
	if !ok {
		return
	}
	if s.Status != search.StatusActive {
		http.Error(w, "search not active", http.StatusConflict)
		return
	}

	res, err := h.Dispatcher.DispatchSearch(r.Context(), s.ID, alerts.Options{Force: true})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}
