// Package payments confirms appointments when a deposit clears at Stripe
// or Square.
package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

var tracer = otel.Tracer("nailspa.internal.payments")

// Confirmer moves a scheduled appointment to confirmed.
type Confirmer interface {
	Confirm(ctx context.Context, businessID, id string) (*booking.Appointment, error)
}

// ProcessedTracker de-duplicates provider event deliveries.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// paymentRef names the appointment a payment is for.
type paymentRef struct {
	BusinessID    string
	AppointmentID string
}

func (p paymentRef) valid() bool {
	return p.BusinessID != "" && p.AppointmentID != ""
}

// refFromMetadata reads business_id and appointment_id.
func refFromMetadata(md map[string]string) paymentRef {
	return paymentRef{
		BusinessID:    strings.TrimSpace(md["business_id"]),
		AppointmentID: strings.TrimSpace(md["appointment_id"]),
	}
}

// refFromReference parses "businessId:appointmentId".
func refFromReference(ref string) paymentRef {
	bid, aid, ok := strings.Cut(strings.TrimSpace(ref), ":")
	if !ok {
		return paymentRef{}
	}
	return paymentRef{BusinessID: bid, AppointmentID: aid}
}

// confirmer holds the provider-independent half of webhook handling.
type confirmer struct {
	appointments Confirmer
	processed    ProcessedTracker
	logger       *logging.Logger
}

// confirm applies one paid event and returns the HTTP status to answer
// the provider with. Only store failures ask the provider to retry.
func (c *confirmer) confirm(ctx context.Context, provider, eventID string, ref paymentRef) int {
	ctx, span := tracer.Start(ctx, "payments.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("nailspa.provider", provider),
		attribute.String("nailspa.business_id", ref.BusinessID),
	)

	if !ref.valid() {
		c.logger.Warn("payment webhook missing appointment reference", "provider", provider, "event_id", eventID)
		return http.StatusOK
	}

	if c.processed != nil {
		done, err := c.processed.AlreadyProcessed(ctx, provider, eventID)
		if err != nil {
			c.logger.Error("processed lookup failed", "provider", provider, "event_id", eventID, "error", err)
			return http.StatusInternalServerError
		}
		if done {
			c.logger.Info("payment webhook already processed", "provider", provider, "event_id", eventID)
			return http.StatusOK
		}
	}

	appt, err := c.appointments.Confirm(ctx, ref.BusinessID, ref.AppointmentID)
	switch {
	case err == nil:
		c.logger.Info("appointment confirmed by payment",
			"provider", provider,
			"event_id", eventID,
			"business_id", ref.BusinessID,
			"appointment_id", appt.ID,
		)
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrValidation):
		c.logger.Warn("payment for appointment that cannot be confirmed",
			"provider", provider,
			"event_id", eventID,
			"business_id", ref.BusinessID,
			"appointment_id", ref.AppointmentID,
			"error_kind", booking.KindOf(err),
		)
	default:
		c.logger.Error("confirm appointment failed", "provider", provider, "event_id", eventID, "error", err)
		return http.StatusServiceUnavailable
	}

	if c.processed != nil {
		if _, err := c.processed.MarkProcessed(ctx, provider, eventID); err != nil {
			c.logger.Warn("failed to mark payment event processed", "provider", provider, "event_id", eventID, "error", err)
		}
	}
	return http.StatusOK
}
