package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"gosnaggit/internal/alerts"
	"gosnaggit/internal/auth"
	"gosnaggit/internal/search"
)

type SearchHandler struct {
	DB        *gorm.DB
	Scheduler *search.Scheduler
}

type createSearchReq struct {
	Name         string   `json:"name"`
	Query        string   `json:"query"`
	MaxPrice     *int64   `json:"max_price"`
	Location     *string  `json:"location"`
	Marketplaces []string `json:"marketplaces"`
	Email        string   `json:"email"` // alert destination; defaults to the account email
}

type searchDTO struct {
	ID             uint64     `json:"id"`
	Name           string     `json:"name"`
	Query          string     `json:"query"`
	MaxPrice       *int64     `json:"max_price"`
	Location       *string    `json:"location"`
	Marketplaces   []string   `json:"marketplaces"`
	PlanTier       string     `json:"plan_tier"`
	Status         string     `json:"status"`
	NextRefreshAt  *time.Time `json:"next_refresh_at"`
	NextDispatchAt *time.Time `json:"next_dispatch_at"`
}

func toDTO(s search.Search) searchDTO {
	return searchDTO{
		ID:             s.ID,
		Name:           s.Name,
		Query:          s.Query,
		MaxPrice:       s.MaxPrice,
		Location:       s.Location,
		Marketplaces:   []string(s.Marketplaces),
		PlanTier:       s.PlanTier,
		Status:         s.Status,
		NextRefreshAt:  s.NextRefreshAt,
		NextDispatchAt: s.NextDispatchAt,
	}
}

func (h *SearchHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createSearchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		http.Error(w, "query required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = req.Query
	}

	dest := strings.TrimSpace(strings.ToLower(req.Email))
	if dest == "" {
		var u auth.User
		if err := h.DB.First(&u, uid).Error; err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		dest = u.Email
	}

	now := time.Now()
	s := search.Search{
		UserID:        uid,
		Name:          strings.TrimSpace(req.Name),
		Query:         req.Query,
		MaxPrice:      req.MaxPrice,
		Location:      req.Location,
		Marketplaces:  pq.StringArray(req.Marketplaces),
		PlanTier:      search.TierFree,
		Status:        search.StatusActive,
		NextRefreshAt: &now, // due immediately; first refresh runs on the next tick
	}
	nd := now.Add(search.DispatchInterval(search.TierFree))
	s.NextDispatchAt = &nd

	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&s).Error; err != nil {
			return err
		}
		ns := alerts.NotificationSetting{
			SearchID: s.ID, Channel: "email", Destination: dest, IsEnabled: true,
		}
		if err := tx.Create(&ns).Error; err != nil {
			return err
		}
		as := alerts.DefaultSettings(s.ID)
		return tx.Create(&as).Error
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toDTO(s))
}

func (h *SearchHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var rows []search.Search
	if err := h.DB.Where("user_id=? and status <> 'deleted'", uid).
		Order("id asc").Limit(100).Find(&rows).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]searchDTO, 0, len(rows))
	for _, s := range rows {
		out = append(out, toDTO(s))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type setTierReq struct {
	Tier string `json:"tier"`
}

func (h *SearchHandler) SetTier(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req setTierReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Tier = strings.TrimSpace(strings.ToLower(req.Tier))
	if !search.ValidTier(req.Tier) {
		http.Error(w, "invalid tier", http.StatusBadRequest)
		return
	}

	if err := h.Scheduler.SetTierAndReschedule(r.Context(), s.ID, req.Tier); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SearchHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, search.StatusPaused)
}

func (h *SearchHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, search.StatusActive)
}

func (h *SearchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, search.StatusDeleted)
}

func (h *SearchHandler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.DB.Exec(`update searches set status=?, updated_at=now() where id=?`,
		status, s.ID).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owned loads the path search and verifies it belongs to the caller.
func (h *SearchHandler) owned(w http.ResponseWriter, r *http.Request) (search.Search, bool) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id64, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return search.Search{}, false
	}

	var s search.Search
	err = h.DB.Where("id=? and user_id=?", id64, uid).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return search.Search{}, false
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return search.Search{}, false
	}
	return s, true
}
