// Package web exposes the booking engine as a JSON API for the booking
// widget and dashboard. Dates and times arrive already structured, as
// "YYYY-MM-DD" and "HH:MM".
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/channels"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/internal/idempotency"
	"github.com/wolfman30/nailspa-booking/internal/tenancy"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

const (
	BusinessHeader    = tenancy.HeaderBusinessID
	IdempotencyHeader = "Idempotency-Key"
)

// Engine is the slice of the booking service the web channel needs.
type Engine interface {
	channels.Engine
	GetAppointment(ctx context.Context, businessID, id string) (*booking.Appointment, error)
	ListAppointments(ctx context.Context, businessID string, date civil.Date) ([]booking.Appointment, error)
	Confirm(ctx context.Context, businessID, id string) (*booking.Appointment, error)
	Cancel(ctx context.Context, businessID, id, reason string) (*booking.Appointment, error)
	Complete(ctx context.Context, businessID, id string) (*booking.Appointment, error)
	Reschedule(ctx context.Context, req booking.RescheduleRequest) (*booking.BookResult, error)
}

// Handler serves the /v1 booking API.
type Handler struct {
	engine Engine
	idem   *idempotency.Store
	logger *logging.Logger
}

// NewHandler creates the web booking handler. idem may be nil.
func NewHandler(engine Engine, idem *idempotency.Store, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("web: engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, idem: idem, logger: logger}
}

// Routes returns the public booking routes, mounted under /v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requireBusiness)
	r.Get("/availability", h.GetAvailability)
	r.Post("/appointments", h.CreateAppointment)
	r.Get("/appointments/{id}", h.GetAppointment)
	r.Post("/appointments/{id}/cancel", h.CancelAppointment)
	r.Post("/appointments/{id}/reschedule", h.RescheduleAppointment)
	return r
}

// AdminRoutes returns the operator appointment routes, mounted under
// /admin/businesses. Confirmation and completion live here so customers
// cannot skip payment or mark their own visit done.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	h.RegisterAdmin(r)
	return r
}

// RegisterAdmin adds the operator appointment routes to an existing admin
// router.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/{businessID}/appointments", h.ListAppointments)
	r.Post("/{businessID}/appointments/{id}/confirm", h.ConfirmAppointment)
	r.Post("/{businessID}/appointments/{id}/complete", h.CompleteAppointment)
}

var requireBusiness = tenancy.RequireBusinessID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: string(booking.KindValidation), Field: "businessId", Message: BusinessHeader + " header is required"})
}))

// businessID prefers the admin path parameter over the tenant header.
func businessID(r *http.Request) string {
	if id := chi.URLParam(r, "businessID"); id != "" {
		return id
	}
	id, _ := tenancy.BusinessIDFromContext(r.Context())
	return id
}

// CreateAppointmentRequest is the body of POST /v1/appointments.
type CreateAppointmentRequest struct {
	CustomerName    string `json:"customerName"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerEmail   string `json:"customerEmail"`
	ServiceType     string `json:"serviceType"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"durationMinutes"`
}

// RescheduleAppointmentRequest is the body of POST .../reschedule.
type RescheduleAppointmentRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type errorBody struct {
	Error        string                `json:"error"`
	Message      string                `json:"message"`
	Field        string                `json:"field,omitempty"`
	Alternatives *booking.Availability `json:"alternatives,omitempty"`
}

// GetAvailability handles GET /v1/availability.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseDate(q.Get("date"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	duration := 0
	if raw := strings.TrimSpace(q.Get("durationMinutes")); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			h.writeError(w, r, &booking.ValidationError{Field: "durationMinutes", Reason: "duration must be a positive number of minutes"}, nil)
			return
		}
	}

	avail, err := h.engine.GetAvailability(r.Context(), booking.AvailabilityQuery{
		BusinessID:      businessID(r),
		Date:            date,
		ServiceType:     q.Get("serviceType"),
		DurationMinutes: duration,
	})
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// CreateAppointment handles POST /v1/appointments. A repeated
// Idempotency-Key replays the first response.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bid := businessID(r)
	key := r.Header.Get(IdempotencyHeader)

	rec, err := h.idem.Begin(ctx, bid, key)
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: "RequestInProgress", Message: "A request with this Idempotency-Key is still being processed."})
		return
	case err != nil:
		h.logger.Warn("web: idempotency unavailable", "business_id", bid, "error", err)
	case rec != nil:
		w.Header().Set("Idempotent-Replayed", "true")
		writeRaw(w, rec.Status, rec.Body)
		return
	}

	status, body := h.createAppointment(r, bid)
	raw, err := json.Marshal(body)
	if err != nil {
		h.idem.Abandon(ctx, bid, key)
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	if status == http.StatusServiceUnavailable {
		h.idem.Abandon(ctx, bid, key)
	} else if err := h.idem.Finish(ctx, bid, key, idempotency.Record{Status: status, Body: raw}); err != nil {
		h.logger.Warn("web: failed to record response", "business_id", bid, "error", err)
	}
	writeRaw(w, status, raw)
}

func (h *Handler) createAppointment(r *http.Request, bid string) (int, any) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errorResponse(&booking.ValidationError{Reason: "request body must be JSON"}, nil)
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return errorResponse(err, nil)
	}
	start, err := parseTime(req.Time)
	if err != nil {
		return errorResponse(err, nil)
	}

	out := channels.Book(r.Context(), h.engine, booking.BookRequest{
		BusinessID:      bid,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		ServiceType:     req.ServiceType,
		Date:            date,
		StartTime:       start,
		DurationMinutes: req.DurationMinutes,
		Source:          booking.SourceWeb,
	}, h.logger)
	if out.Err != nil {
		return errorResponse(out.Err, out.Alternatives)
	}
	return http.StatusCreated, out.Result
}

// GetAppointment handles GET /v1/appointments/{id}.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.GetAppointment(r.Context(), businessID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.Confirm(r.Context(), businessID(r), chi.URLParam(r, "id"))
	h.writeAppointment(w, r, appt, err)
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, &booking.ValidationError{Reason: "request body must be JSON"}, nil)
			return
		}
	}
	appt, err := h.engine.Cancel(r.Context(), businessID(r), chi.URLParam(r, "id"), req.Reason)
	h.writeAppointment(w, r, appt, err)
}

func (h *Handler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.Complete(r.Context(), businessID(r), chi.URLParam(r, "id"))
	h.writeAppointment(w, r, appt, err)
}

// RescheduleAppointment handles POST /v1/appointments/{id}/reschedule.
func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req RescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, &booking.ValidationError{Reason: "request body must be JSON"}, nil)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	start, err := parseTime(req.Time)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	res, err := h.engine.Reschedule(r.Context(), booking.RescheduleRequest{
		BusinessID:    businessID(r),
		AppointmentID: chi.URLParam(r, "id"),
		Date:          date,
		StartTime:     start,
	})
	if err != nil {
		var alt *booking.Availability
		if errors.Is(err, booking.ErrSlotTaken) {
			alt, _ = h.engine.GetAvailability(r.Context(), booking.AvailabilityQuery{BusinessID: businessID(r), Date: date})
		}
		h.writeError(w, r, err, alt)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListAppointments handles GET /admin/businesses/{businessID}/appointments.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	appts, err := h.engine.ListAppointments(r.Context(), businessID(r), date)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	if appts == nil {
		appts = []booking.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "appointments": appts})
}

func (h *Handler) writeAppointment(w http.ResponseWriter, r *http.Request, appt *booking.Appointment, err error) {
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, alt *booking.Availability) {
	status, body := errorResponse(err, alt)
	if status >= http.StatusInternalServerError {
		h.logger.Error("web: request failed", "path", r.URL.Path, "business_id", businessID(r), "error_kind", booking.KindOf(err), "error", err)
	}
	writeJSON(w, status, body)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind booking.ErrorKind) int {
	switch kind {
	case booking.KindValidation:
		return http.StatusBadRequest
	case booking.KindClosedDay:
		return http.StatusUnprocessableEntity
	case booking.KindSlotTaken, booking.KindTransition:
		return http.StatusConflict
	case booking.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func errorResponse(err error, alt *booking.Availability) (int, errorBody) {
	kind := booking.KindOf(err)
	body := errorBody{Error: string(kind), Message: channels.FriendlyMessage(err)}
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
		body.Message = verr.Error()
	}
	if kind == booking.KindSlotTaken && alt != nil {
		body.Alternatives = alt
		body.Message = channels.SlotTakenReply(alt)
	}
	return StatusFor(kind), body
}

func parseDate(raw string) (civil.Date, error) {
	d, err := clock.ParseDate(raw)
	if err != nil {
		return civil.Date{}, &booking.ValidationError{Field: "date", Reason: "date must be YYYY-MM-DD"}
	}
	return d, nil
}

func parseTime(raw string) (civil.Time, error) {
	t, err := clock.ParseHHMM(raw)
	if err != nil {
		return civil.Time{}, &booking.ValidationError{Field: "time", Reason: "time must be HH:MM"}
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
