package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/nailspa-booking/internal/clock"
)

// Confirm moves a scheduled appointment to confirmed, typically after a
// successful payment. Confirming an already confirmed appointment is a
// no-op so webhook redeliveries are harmless.
func (s *Service) Confirm(ctx context.Context, businessID, id string) (*Appointment, error) {
	return s.transition(ctx, businessID, id, StatusConfirmed, "", EventConfirmed)
}

// Cancel frees the appointment's slot.
func (s *Service) Cancel(ctx context.Context, businessID, id, reason string) (*Appointment, error) {
	return s.transition(ctx, businessID, id, StatusCancelled, reason, EventCancelled)
}

// Complete marks an appointment as done.
func (s *Service) Complete(ctx context.Context, businessID, id string) (*Appointment, error) {
	return s.transition(ctx, businessID, id, StatusCompleted, "", EventCompleted)
}

func (s *Service) transition(ctx context.Context, businessID, id string, to Status, reason, eventType string) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("nailspa.business_id", businessID),
		attribute.String("nailspa.appointment_id", id),
		attribute.String("nailspa.status", string(to)),
	)

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var (
		out     *Appointment
		changed bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointment(ctx, businessID, id)
		if err != nil {
			return storeError("get appointment", err)
		}
		out = appt
		if appt.Status == to {
			return nil
		}
		if !appt.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
		}
		now := s.opts.Now().UTC()
		if err := tx.UpdateStatus(ctx, businessID, id, to, reason, now); err != nil {
			return storeError("update status", err)
		}
		appt.Status = to
		appt.UpdatedAt = now
		if to == StatusCancelled {
			appt.CancelReason = reason
		}
		changed = true
		return tx.AppendEvent(ctx, businessID, eventType, newAppointmentEvent(appt, now))
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("appointment transition failed",
			"business_id", businessID, "appointment_id", id, "to", to, "error_kind", KindOf(err), "error", err)
		return nil, storeError("transition", err)
	}
	if changed {
		s.observer.ObserveTransition(string(to))
		s.logger.Info("appointment status changed", "business_id", businessID, "appointment_id", id, "status", to)
	}
	return out, nil
}

// RescheduleRequest moves an appointment to a new date and time.
type RescheduleRequest struct {
	BusinessID    string
	AppointmentID string
	Date          civil.Date
	StartTime     civil.Time
}

// Reschedule cancels the original appointment and inserts its replacement
// in one transaction. The original's own interval does not block the new
// slot when both fall on the same day.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*BookResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("nailspa.business_id", req.BusinessID),
		attribute.String("nailspa.appointment_id", req.AppointmentID),
	)
	if !req.Date.IsValid() {
		return nil, invalid("date", "date is required")
	}
	if !req.StartTime.IsValid() {
		return nil, invalid("time", "time is required")
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.ensureAccepting(ctx, req.BusinessID); err != nil {
		return nil, err
	}

	var replacement *Appointment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		old, err := tx.GetAppointment(ctx, req.BusinessID, req.AppointmentID)
		if err != nil {
			return storeError("get appointment", err)
		}
		if !old.Status.Active() {
			return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, old.Status)
		}
		if err := tx.LockDay(ctx, req.BusinessID, req.Date); err != nil {
			return storeError("lock day", err)
		}
		exclude := ""
		if old.Date == req.Date {
			exclude = old.ID
		}
		start := civil.Time{Hour: req.StartTime.Hour, Minute: req.StartTime.Minute}
		if err := s.checkSlot(ctx, tx, req.BusinessID, req.Date, start, old.DurationMinutes, exclude); err != nil {
			return err
		}

		now := s.opts.Now().UTC()
		if err := tx.UpdateStatus(ctx, req.BusinessID, old.ID, StatusCancelled, "rescheduled", now); err != nil {
			return storeError("cancel original", err)
		}
		next := *old
		next.ID = uuid.NewString()
		next.Date = req.Date
		next.StartTime = start
		next.RescheduledFrom = old.ID
		next.CancelReason = ""
		next.CreatedAt = now
		next.UpdatedAt = now
		if err := tx.InsertAppointment(ctx, &next); err != nil {
			return storeError("insert replacement", err)
		}
		replacement = &next

		evt := newAppointmentEvent(&next, now)
		evt.PreviousAppointmentID = old.ID
		return tx.AppendEvent(ctx, req.BusinessID, EventRescheduled, evt)
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("reschedule failed",
			"business_id", req.BusinessID, "appointment_id", req.AppointmentID,
			"date", req.Date.String(), "start_time", clock.FormatHHMM(req.StartTime),
			"error_kind", KindOf(err), "error", err)
		return nil, storeError("reschedule", err)
	}
	s.observer.ObserveTransition("rescheduled")
	s.logger.Info("appointment rescheduled",
		"business_id", req.BusinessID, "from", req.AppointmentID, "appointment_id", replacement.ID)
	return &BookResult{
		AppointmentID: replacement.ID,
		Appointment:   replacement,
		Message:       confirmationMessage(replacement),
	}, nil
}

// CancelReasonText marks a cancellation the customer sent by text; the SMS
// reply already tells them.
const CancelReasonText = "cancelled by text message"

// CancelNextForPhone cancels the customer's next upcoming active
// appointment, as identified by phone.
func (s *Service) CancelNextForPhone(ctx context.Context, businessID, phone, reason string) (*Appointment, error) {
	normalized, err := NormalizePhone(phone, s.opts.PhoneRegion)
	if err != nil {
		return nil, err
	}
	lookupCtx, cancel := s.bounded(ctx)
	customer, err := s.store.FindCustomerByPhone(lookupCtx, businessID, normalized)
	cancel()
	if err != nil {
		return nil, storeError("find customer", err)
	}
	if customer == nil {
		return nil, ErrNotFound
	}

	today := civil.DateOf(s.opts.Now().In(s.location(ctx, businessID)))
	var target *Appointment
	txCtx, cancel := s.bounded(ctx)
	defer cancel()
	err = s.store.WithinTx(txCtx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.NextActiveForCustomer(ctx, businessID, customer.ID, today)
		if err != nil {
			return storeError("next appointment", err)
		}
		if appt == nil {
			return ErrNotFound
		}
		target = appt
		return nil
	})
	if err != nil {
		return nil, storeError("cancel next", err)
	}
	return s.Cancel(ctx, businessID, target.ID, reason)
}

// CompleteDue completes every scheduled or confirmed appointment whose end
// time has passed in its business's timezone. It returns how many were
// completed; per-appointment failures are logged and joined.
func (s *Service) CompleteDue(ctx context.Context) (int, error) {
	now := s.opts.Now()
	through := civil.DateOf(now.UTC()).AddDays(1)

	listCtx, cancel := s.bounded(ctx)
	appts, err := s.store.ListActiveThrough(listCtx, through)
	cancel()
	if err != nil {
		return 0, storeError("list due appointments", err)
	}

	locations := map[string]*time.Location{}
	var (
		completed int
		errs      []error
	)
	for i := range appts {
		appt := appts[i]
		loc, ok := locations[appt.BusinessID]
		if !ok {
			loc = s.location(ctx, appt.BusinessID)
			locations[appt.BusinessID] = loc
		}
		if appt.EndsAt(loc).After(now) {
			continue
		}
		if _, err := s.Complete(ctx, appt.BusinessID, appt.ID); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			errs = append(errs, fmt.Errorf("complete %s: %w", appt.ID, err))
			continue
		}
		completed++
	}
	if completed > 0 {
		s.logger.Info("completed past appointments", "count", completed)
	}
	return completed, errors.Join(errs...)
}

// location returns the business timezone, UTC when the profile is missing.
func (s *Service) location(ctx context.Context, businessID string) *time.Location {
	b, err := s.Business(ctx, businessID)
	if err != nil {
		if !errors.Is(err, ErrValidation) {
			s.logger.Warn("business timezone lookup failed", "business_id", businessID, "error", err)
		}
		return time.UTC
	}
	return b.Location()
}

// LocalNow returns the current time in the business timezone.
func (s *Service) LocalNow(ctx context.Context, businessID string) time.Time {
	return s.opts.Now().In(s.location(ctx, strings.TrimSpace(businessID)))
}
