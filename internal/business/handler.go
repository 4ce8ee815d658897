package business

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

// Handler provides admin endpoints for hours and the service catalog.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a new business admin HTTP handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes returns the admin routes, mounted under /admin/businesses.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register adds the hours and services routes to an existing admin router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/{businessID}/hours", h.GetHours)
	r.Put("/{businessID}/hours", h.PutHours)
	r.Get("/{businessID}/services", h.GetServices)
	r.Put("/{businessID}/services", h.PutServices)
}

// DayHoursJSON is the wire shape of one weekday.
type DayHoursJSON struct {
	DayOfWeek int    `json:"dayOfWeek"`
	IsClosed  bool   `json:"isClosed"`
	OpenTime  string `json:"openTime,omitempty"`
	CloseTime string `json:"closeTime,omitempty"`
}

func toDayHoursJSON(hours WeeklyHours) []DayHoursJSON {
	out := make([]DayHoursJSON, 0, len(hours))
	for _, d := range hours.Sorted() {
		row := DayHoursJSON{DayOfWeek: int(d.Day), IsClosed: d.Closed}
		if !d.Closed {
			row.OpenTime = clock.FormatHHMM(d.Open)
			row.CloseTime = clock.FormatHHMM(d.Close)
		}
		out = append(out, row)
	}
	return out
}

// ParseDayHours converts wire rows into validated WeeklyHours.
func ParseDayHours(rows []DayHoursJSON) (WeeklyHours, error) {
	hours := make(WeeklyHours, 0, len(rows))
	for _, row := range rows {
		d := DayHours{Day: time.Weekday(row.DayOfWeek), Closed: row.IsClosed}
		if !row.IsClosed {
			open, err := clock.ParseHHMM(row.OpenTime)
			if err != nil {
				return nil, err
			}
			closeAt, err := clock.ParseHHMM(row.CloseTime)
			if err != nil {
				return nil, err
			}
			d.Open, d.Close = open, closeAt
		}
		hours = append(hours, d)
	}
	if err := hours.Validate(); err != nil {
		return nil, err
	}
	return hours, nil
}

// GetHours returns the weekly hours.
// GET /admin/businesses/{businessID}/hours
func (h *Handler) GetHours(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	hours, err := h.store.ListHours(r.Context(), businessID)
	if err != nil {
		h.logger.Error("failed to list hours", "business_id", businessID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"businessId": businessID, "hours": toDayHoursJSON(hours)})
}

// PutHours replaces the weekly hours.
// PUT /admin/businesses/{businessID}/hours
func (h *Handler) PutHours(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	var req struct {
		Hours []DayHoursJSON `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	hours, err := ParseDayHours(req.Hours)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.store.SetHours(r.Context(), businessID, hours); err != nil {
		h.logger.Error("failed to save hours", "business_id", businessID, "error", err)
		http.Error(w, `{"error": "failed to save hours"}`, http.StatusInternalServerError)
		return
	}
	h.logger.Info("business hours updated", "business_id", businessID, "days", len(hours))
	writeJSON(w, http.StatusOK, map[string]any{"businessId": businessID, "hours": toDayHoursJSON(hours)})
}

// GetServices returns the service catalog.
// GET /admin/businesses/{businessID}/services
func (h *Handler) GetServices(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	services, err := h.store.ListServices(r.Context(), businessID)
	if err != nil {
		h.logger.Error("failed to list services", "business_id", businessID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"businessId": businessID, "services": services})
}

// PutServices upserts catalog entries by name.
// PUT /admin/businesses/{businessID}/services
func (h *Handler) PutServices(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	var req struct {
		Services []Service `json:"services"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	for _, svc := range req.Services {
		svc.BusinessID = businessID
		svc.Name = strings.TrimSpace(svc.Name)
		if err := svc.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	saved := make([]Service, 0, len(req.Services))
	for _, svc := range req.Services {
		svc.BusinessID = businessID
		svc.Name = strings.TrimSpace(svc.Name)
		out, err := h.store.SaveService(r.Context(), svc)
		if err != nil {
			h.logger.Error("failed to save service", "business_id", businessID, "service", svc.Name, "error", err)
			http.Error(w, `{"error": "failed to save services"}`, http.StatusInternalServerError)
			return
		}
		saved = append(saved, *out)
	}
	writeJSON(w, http.StatusOK, map[string]any{"businessId": businessID, "services": saved})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
