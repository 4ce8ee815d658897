package booking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// AvailabilityQuery asks for open start times on one date.
type AvailabilityQuery struct {
	BusinessID      string
	Date            civil.Date
	ServiceType     string
	DurationMinutes int
}

// Availability is the result of a slot calculation.
type Availability struct {
	BusinessID      string       `json:"businessId"`
	Date            civil.Date   `json:"date"`
	Available       bool         `json:"available"`
	Slots           []civil.Time `json:"-"`
	Reason          Reason       `json:"reason,omitempty"`
	Message         string       `json:"message"`
	DurationMinutes int          `json:"durationMinutes"`
}

type availabilityJSON Availability

// MarshalJSON renders slots as "HH:MM" strings.
func (a Availability) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		availabilityJSON
		Slots []string `json:"slots"`
	}{availabilityJSON(a), a.SlotStrings()})
}

// SlotStrings returns the slots as "HH:MM" strings.
func (a *Availability) SlotStrings() []string {
	out := make([]string, 0, len(a.Slots))
	for _, t := range a.Slots {
		out = append(out, clock.FormatHHMM(t))
	}
	return out
}

// GetAvailability computes the open slots for q. A closed day is not an
// error; the result carries ReasonClosed instead.
func (s *Service) GetAvailability(ctx context.Context, q AvailabilityQuery) (*Availability, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("nailspa.business_id", q.BusinessID),
		attribute.String("nailspa.date", q.Date.String()),
	)

	q.BusinessID = strings.TrimSpace(q.BusinessID)
	if q.BusinessID == "" {
		return nil, invalid("businessId", "business id is required")
	}
	if !q.Date.IsValid() {
		return nil, invalid("date", "date is required")
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.ensureAccepting(ctx, q.BusinessID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	_, duration, err := s.resolveService(ctx, q.BusinessID, q.ServiceType, q.DurationMinutes)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result, _, err := s.computeSlots(ctx, s.store.ListAppointments, q.BusinessID, q.Date, duration, "")
	if err != nil {
		span.RecordError(err)
		s.logger.Error("availability lookup failed", "business_id", q.BusinessID, "date", q.Date.String(), "error", err)
		return nil, err
	}
	reason := string(result.Reason)
	if reason == "" {
		reason = "open"
	}
	s.observer.ObserveAvailability(reason)
	span.SetAttributes(attribute.Int("nailspa.slot_count", len(result.Slots)))
	return result, nil
}

type appointmentLister func(ctx context.Context, businessID string, date civil.Date) ([]Appointment, error)

// computeSlots runs the calculator against the current hours and
// appointments. exclude drops one appointment from the busy set so a
// reschedule may land on an overlapping slot of its own.
func (s *Service) computeSlots(ctx context.Context, list appointmentLister, businessID string, date civil.Date, duration int, exclude string) (*Availability, *business.DayHours, error) {
	hours, err := s.hoursFor(ctx, businessID, date)
	if err != nil {
		return nil, nil, err
	}
	result := &Availability{
		BusinessID:      businessID,
		Date:            date,
		DurationMinutes: duration,
	}
	if !hours.IsOpen() {
		result.Reason = ReasonClosed
		result.Message = availabilityMessage(date, ReasonClosed, nil)
		return result, hours, nil
	}

	appts, err := list(ctx, businessID, date)
	if err != nil {
		return nil, nil, storeError("list appointments", err)
	}
	result.Slots = CalculateSlots(hours, busyIntervals(appts, exclude), SlotRules{
		StepMinutes:     s.opts.StepMinutes,
		DurationMinutes: duration,
		LastSlot:        s.opts.LastSlot,
	})
	result.Available = len(result.Slots) > 0
	if !result.Available {
		result.Reason = ReasonNoSlots
	}
	result.Message = availabilityMessage(date, result.Reason, result.Slots)
	return result, hours, nil
}

func (s *Service) hoursFor(ctx context.Context, businessID string, date civil.Date) (*business.DayHours, error) {
	weekday := date.In(time.UTC).Weekday()
	hours, err := business.HoursForDay(ctx, s.catalog, businessID, weekday)
	if errors.Is(err, business.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("business hours", err)
	}
	return hours, nil
}
