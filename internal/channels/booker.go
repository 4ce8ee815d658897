package channels

import (
	"context"
	"errors"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

// Engine is the part of booking.Service the adapters call.
type Engine interface {
	GetAvailability(ctx context.Context, q booking.AvailabilityQuery) (*booking.Availability, error)
	BookAppointment(ctx context.Context, req booking.BookRequest) (*booking.BookResult, error)
}

// Outcome is a booking attempt already phrased for the customer.
type Outcome struct {
	Result       *booking.BookResult
	Alternatives *booking.Availability
	Err          error
	Reply        string
}

// Book commits req and phrases the result. A SlotTakenError re-runs the
// slot calculator so the reply can offer other times; the commit itself is
// never retried.
func Book(ctx context.Context, engine Engine, req booking.BookRequest, logger *logging.Logger) Outcome {
	if logger == nil {
		logger = logging.Default()
	}
	res, err := engine.BookAppointment(ctx, req)
	if err == nil {
		return Outcome{Result: res, Reply: res.Message}
	}

	logger.Warn("channel booking failed",
		"business_id", req.BusinessID,
		"date", req.Date.String(),
		"start_time", clock.FormatHHMM(req.StartTime),
		"source", req.Source,
		"error_kind", booking.KindOf(err),
		"error", err,
	)
	out := Outcome{Err: err, Reply: FriendlyMessage(err)}
	if errors.Is(err, booking.ErrSlotTaken) {
		alt, altErr := engine.GetAvailability(ctx, booking.AvailabilityQuery{
			BusinessID:      req.BusinessID,
			Date:            req.Date,
			ServiceType:     req.ServiceType,
			DurationMinutes: req.DurationMinutes,
		})
		if altErr != nil {
			logger.Warn("alternative slot lookup failed", "business_id", req.BusinessID, "error", altErr)
		}
		out.Alternatives = alt
		out.Reply = SlotTakenReply(alt)
	}
	return out
}
