// Package notify tells customers about their bookings by text and email.
// It consumes appointment events from the outbox, so a provider outage
// delays a message but never a booking.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/internal/events"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

// BusinessLookup resolves the salon name used in messages.
type BusinessLookup interface {
	GetBusiness(ctx context.Context, id string) (*business.Business, error)
}

// Service sends booking notifications. Either sender may be nil.
type Service struct {
	email      EmailSender
	sms        SMSSender
	businesses BusinessLookup
	logger     *logging.Logger
}

func NewService(email EmailSender, sms SMSSender, businesses BusinessLookup, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, sms: sms, businesses: businesses, logger: logger}
}

var _ events.DeliveryHandler = (*Service)(nil)

// Handle satisfies events.DeliveryHandler. Event types without a customer
// message are acknowledged; undecodable payloads are logged and dropped
// since a redelivery cannot fix them.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if !notifiable(entry.Type) {
		return nil
	}
	var evt booking.AppointmentEvent
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		s.logger.Error("notify: undecodable appointment event", "event_id", entry.ID, "type", entry.Type, "error", err)
		return nil
	}
	return s.Notify(ctx, entry.Type, evt)
}

func notifiable(eventType string) bool {
	switch eventType {
	case booking.EventBooked, booking.EventConfirmed, booking.EventCancelled, booking.EventRescheduled:
		return true
	}
	return false
}

// Notify texts and emails the customer about evt.
func (s *Service) Notify(ctx context.Context, eventType string, evt booking.AppointmentEvent) error {
	salon := s.salonName(ctx, evt.BusinessID)
	text, subject := render(eventType, evt, salon)
	if text == "" {
		return nil
	}

	var errs []error
	if s.sms != nil && evt.CustomerPhone != "" && !answeredByText(eventType, evt) {
		if err := s.sms.SendSMS(ctx, evt.CustomerPhone, text); err != nil {
			s.logger.Warn("notify: sms failed", "business_id", evt.BusinessID, "appointment_id", evt.AppointmentID, "type", eventType, "error", err)
			errs = append(errs, fmt.Errorf("notify: sms: %w", err))
		}
	}
	if s.email != nil && evt.CustomerEmail != "" {
		err := s.email.Send(ctx, EmailMessage{
			To:       evt.CustomerEmail,
			ToName:   evt.CustomerName,
			Subject:  subject,
			Body:     text,
			Category: eventType,
		})
		if err != nil {
			s.logger.Warn("notify: email failed", "business_id", evt.BusinessID, "appointment_id", evt.AppointmentID, "type", eventType, "error", err)
			errs = append(errs, fmt.Errorf("notify: email: %w", err))
		}
	}
	return errors.Join(errs...)
}

// answeredByText reports whether the customer already got this news as the
// reply to their own text message.
func answeredByText(eventType string, evt booking.AppointmentEvent) bool {
	switch eventType {
	case booking.EventBooked:
		return evt.Source == booking.SourceSMS
	case booking.EventCancelled:
		return evt.Reason == booking.CancelReasonText
	}
	return false
}

func (s *Service) salonName(ctx context.Context, businessID string) string {
	if s.businesses == nil {
		return ""
	}
	b, err := s.businesses.GetBusiness(ctx, businessID)
	if err != nil || b == nil {
		return ""
	}
	return b.Name
}

// render builds the SMS text (reused as the email body) and email subject.
func render(eventType string, evt booking.AppointmentEvent, salon string) (string, string) {
	what := evt.ServiceName
	if what == "" {
		what = "appointment"
	}
	when := describeWhen(evt.Date, evt.StartTime)
	at := ""
	if salon != "" {
		at = " at " + salon
	}
	greeting := "Hi"
	if first := strings.Fields(evt.CustomerName); len(first) > 0 {
		greeting = "Hi " + first[0]
	}

	switch eventType {
	case booking.EventBooked:
		return fmt.Sprintf("%s, you're booked for %s%s on %s. Reply CANCEL to cancel.", greeting, what, at, when),
			"Your " + what + " is booked"
	case booking.EventConfirmed:
		return fmt.Sprintf("%s, your %s%s on %s is confirmed. See you then!", greeting, what, at, when),
			"Your " + what + " is confirmed"
	case booking.EventCancelled:
		return fmt.Sprintf("%s, your %s%s on %s has been cancelled.", greeting, what, at, when),
			"Your " + what + " was cancelled"
	case booking.EventRescheduled:
		return fmt.Sprintf("%s, your %s%s has been moved to %s.", greeting, what, at, when),
			"Your " + what + " was rescheduled"
	}
	return "", ""
}

func describeWhen(date, start string) string {
	d, err := civil.ParseDate(date)
	if err != nil {
		return strings.TrimSpace(date + " " + start)
	}
	t, err := clock.ParseHHMM(start)
	if err != nil {
		return clock.SpokenDate(d)
	}
	return clock.SpokenDate(d) + " at " + clock.Spoken(t)
}
