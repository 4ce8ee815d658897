package booking

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// BookRequest is the canonical booking request every channel produces.
type BookRequest struct {
	BusinessID      string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	ServiceType     string
	Date            civil.Date
	StartTime       civil.Time
	DurationMinutes int
	Source          Source
}

// BookResult is returned on a committed booking.
type BookResult struct {
	AppointmentID   string       `json:"appointmentId"`
	Appointment     *Appointment `json:"appointment"`
	CustomerCreated bool         `json:"customerCreated"`
	Message         string       `json:"message"`
}

// BookAppointment commits a customer into a slot. The slot is re-validated
// inside the same transaction that looks up or creates the customer and
// inserts the appointment, so of two racing requests for one slot exactly
// one succeeds and the other gets ErrSlotTaken. Commits are never retried
// here.
func (s *Service) BookAppointment(ctx context.Context, req BookRequest) (*BookResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("nailspa.business_id", req.BusinessID),
		attribute.String("nailspa.date", req.Date.String()),
		attribute.String("nailspa.start_time", clock.FormatHHMM(req.StartTime)),
		attribute.String("nailspa.source", string(req.Source)),
	)

	result, err := s.book(ctx, req)
	if err != nil {
		span.RecordError(err)
		kind := KindOf(err)
		s.observer.ObserveBooking(string(req.Source), string(kind))
		logArgs := []any{
			"business_id", req.BusinessID,
			"date", req.Date.String(),
			"start_time", clock.FormatHHMM(req.StartTime),
			"source", req.Source,
			"error_kind", kind,
			"error", err,
		}
		if kind == KindStore {
			s.logger.Error("booking failed", logArgs...)
		} else {
			s.logger.Warn("booking rejected", logArgs...)
		}
		return nil, err
	}
	s.observer.ObserveBooking(string(req.Source), "booked")
	s.logger.Info("appointment booked",
		"business_id", req.BusinessID,
		"appointment_id", result.AppointmentID,
		"date", req.Date.String(),
		"start_time", clock.FormatHHMM(req.StartTime),
		"source", req.Source,
		"customer_created", result.CustomerCreated,
	)
	return result, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*BookResult, error) {
	phone, err := s.validateBookRequest(&req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.ensureAccepting(ctx, req.BusinessID); err != nil {
		return nil, err
	}
	svc, duration, err := s.resolveService(ctx, req.BusinessID, req.ServiceType, req.DurationMinutes)
	if err != nil {
		return nil, err
	}

	first, last := SplitName(req.CustomerName)
	now := s.opts.Now().UTC()
	appt := &Appointment{
		ID:              uuid.NewString(),
		BusinessID:      req.BusinessID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   phone,
		CustomerEmail:   req.CustomerEmail,
		ServiceName:     strings.TrimSpace(req.ServiceType),
		Date:            req.Date,
		StartTime:       civil.Time{Hour: req.StartTime.Hour, Minute: req.StartTime.Minute},
		DurationMinutes: duration,
		Status:          StatusScheduled,
		Source:          req.Source,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if svc != nil {
		appt.ServiceID = svc.ID
		appt.ServiceName = svc.Name
		appt.PriceCents = svc.PriceCents
	}

	var created bool
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockDay(ctx, req.BusinessID, req.Date); err != nil {
			return storeError("lock day", err)
		}
		if err := s.checkSlot(ctx, tx, req.BusinessID, req.Date, appt.StartTime, duration, ""); err != nil {
			return err
		}

		customer := &Customer{
			ID:         uuid.NewString(),
			BusinessID: req.BusinessID,
			FirstName:  first,
			LastName:   last,
			Phone:      phone,
			Email:      req.CustomerEmail,
			CreatedAt:  now,
		}
		var err error
		created, err = tx.EnsureCustomer(ctx, customer)
		if err != nil {
			return storeError("ensure customer", err)
		}
		appt.CustomerID = customer.ID

		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return storeError("insert appointment", err)
		}
		return tx.AppendEvent(ctx, req.BusinessID, EventBooked, newAppointmentEvent(appt, now))
	})
	if err != nil {
		return nil, storeError("book appointment", err)
	}

	return &BookResult{
		AppointmentID:   appt.ID,
		Appointment:     appt,
		CustomerCreated: created,
		Message:         confirmationMessage(appt),
	}, nil
}

func (s *Service) validateBookRequest(req *BookRequest) (string, error) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if req.BusinessID == "" {
		return "", invalid("businessId", "business id is required")
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return "", invalid("customerName", "customer name is required")
	}
	phone, err := NormalizePhone(req.CustomerPhone, s.opts.PhoneRegion)
	if err != nil {
		return "", err
	}
	if req.CustomerEmail != "" {
		if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
			return "", invalid("customerEmail", "email address is not valid")
		}
	}
	if !req.Date.IsValid() {
		return "", invalid("date", "date is required")
	}
	if !req.StartTime.IsValid() {
		return "", invalid("time", "time is required")
	}
	if req.Source == "" {
		return "", invalid("bookingSource", "booking source is required")
	}
	return phone, nil
}

// checkSlot re-runs the slot calculation inside tx and classifies why a
// start time is not bookable.
func (s *Service) checkSlot(ctx context.Context, tx Tx, businessID string, date civil.Date, start civil.Time, duration int, exclude string) error {
	hours, err := s.hoursFor(ctx, businessID, date)
	if err != nil {
		return err
	}
	if !hours.IsOpen() {
		return fmt.Errorf("%w: %s", ErrClosedDay, date.In(time.UTC).Weekday())
	}
	appts, err := tx.ListAppointments(ctx, businessID, date)
	if err != nil {
		return storeError("list appointments", err)
	}
	busy := busyIntervals(appts, exclude)
	slots := CalculateSlots(hours, busy, SlotRules{
		StepMinutes:     s.opts.StepMinutes,
		DurationMinutes: duration,
		LastSlot:        s.opts.LastSlot,
	})
	if containsSlot(slots, start) {
		return nil
	}
	startMin := clock.Minutes(start)
	if overlapsAny(Interval{Start: startMin, End: startMin + duration}, busy) {
		return fmt.Errorf("%w: %s %s", ErrSlotTaken, date, clock.FormatHHMM(start))
	}
	return invalid("time", fmt.Sprintf("%s is not a bookable start time on %s", clock.FormatHHMM(start), date))
}

func confirmationMessage(a *Appointment) string {
	what := a.ServiceName
	if what == "" {
		what = "your appointment"
	}
	return fmt.Sprintf("You're booked for %s on %s at %s.", what, clock.SpokenDate(a.Date), clock.Spoken(a.StartTime))
}
