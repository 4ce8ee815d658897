// Package sms adapts inbound Twilio text messages to the booking engine.
// Each message is handled on its own: customers text a day and time to
// book, a day to hear openings, or CANCEL.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/channels"
	"github.com/wolfman30/nailspa-booking/internal/channels/whenparse"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	"github.com/wolfman30/nailspa-booking/internal/idempotency"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

var tracer = otel.Tracer("nailspa.internal.channels.sms")

// DefaultCustomerName is used when a text books without introducing the
// sender.
const DefaultCustomerName = "SMS Customer"

const helpText = "Text a day and time to book, for example \"Book a pedicure tomorrow at 3pm\". " +
	"Text a day to see openings, or CANCEL to cancel your next appointment."

var (
	cancelRe = regexp.MustCompile(`(?i)^\s*cancel\b`)
	helpRe   = regexp.MustCompile(`(?i)^\s*(help|info)\s*$`)
	bookRe   = regexp.MustCompile(`(?i)\b(book|schedule|reserve|appointment)\b`)
	nameRe   = regexp.MustCompile(`(?i)\b(?:my name is|this is|i'm|i am|name:)\s+([a-z][a-z'\-]*(?:\s+[a-z][a-z'\-]*)?)`)
)

// nameStop ends a captured name at words that start the rest of a request.
var nameStop = map[string]bool{
	"and": true, "at": true, "on": true, "for": true, "tomorrow": true, "today": true,
	"free": true, "available": true, "looking": true, "interested": true, "wondering": true,
}

// Engine is the slice of the booking service the SMS channel needs.
type Engine interface {
	channels.Engine
	CancelNextForPhone(ctx context.Context, businessID, phone, reason string) (*booking.Appointment, error)
	LocalNow(ctx context.Context, businessID string) time.Time
}

// Config configures the Handler.
type Config struct {
	Engine  Engine
	Catalog business.Store
	Parser  *whenparse.Parser
	// Numbers maps a Twilio number to a business id ahead of the catalog
	// lookup.
	Numbers       map[string]string
	PhoneRegion   string
	AuthToken     string
	WebhookURL    string
	SkipSignature bool
	Idempotency   *idempotency.Store
	Logger        *logging.Logger
}

// Handler serves POST /webhooks/twilio/sms.
type Handler struct {
	cfg    Config
	logger *logging.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Engine == nil {
		panic("sms: engine required")
	}
	if cfg.Catalog == nil {
		panic("sms: business store required")
	}
	if cfg.Parser == nil {
		cfg.Parser = whenparse.Default()
	}
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = "US"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Handler{cfg: cfg, logger: cfg.Logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.cfg.SkipSignature {
		webhookURL := h.cfg.WebhookURL
		if webhookURL == "" {
			webhookURL = requestURL(r)
		}
		if !ValidateSignature(r, h.cfg.AuthToken, webhookURL) {
			h.logger.Warn("sms: invalid twilio signature", "url", webhookURL)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	msg, err := ParseInbound(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	h.logger.Info("sms: inbound message", "message_sid", msg.MessageSid, "to", msg.To)

	biz, err := h.resolveBusiness(ctx, msg.To)
	if err != nil {
		h.logger.Warn("sms: business lookup failed", "to", msg.To, "error", err)
		if errors.Is(err, business.ErrNotFound) || errors.Is(err, booking.ErrValidation) {
			http.Error(w, "unknown number", http.StatusNotFound)
			return
		}
		writeTwiML(w, channels.FriendlyMessage(fmt.Errorf("%w: business lookup: %v", booking.ErrStore, err)))
		return
	}

	rec, err := h.cfg.Idempotency.Begin(ctx, biz.ID, msg.MessageSid)
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		writeTwiML(w, "")
		return
	case err != nil:
		h.logger.Warn("sms: idempotency unavailable", "error", err)
	case rec != nil:
		var replay string
		if json.Unmarshal(rec.Body, &replay) == nil {
			writeTwiMLBytes(w, []byte(replay))
			return
		}
	}

	reply, retryable := h.respond(ctx, biz.ID, msg)
	body := TwiML(reply)
	stored, _ := json.Marshal(string(body))
	if retryable {
		h.cfg.Idempotency.Abandon(ctx, biz.ID, msg.MessageSid)
	} else if err := h.cfg.Idempotency.Finish(ctx, biz.ID, msg.MessageSid, idempotency.Record{Status: http.StatusOK, Body: stored}); err != nil {
		h.logger.Warn("sms: failed to record reply", "message_sid", msg.MessageSid, "error", err)
	}
	writeTwiMLBytes(w, body)
}

func (h *Handler) resolveBusiness(ctx context.Context, to string) (*business.Business, error) {
	number, err := booking.NormalizePhone(to, h.cfg.PhoneRegion)
	if err != nil {
		return nil, err
	}
	if id, ok := h.cfg.Numbers[number]; ok {
		return h.cfg.Catalog.GetBusiness(ctx, id)
	}
	return h.cfg.Catalog.FindBusinessByPhone(ctx, number)
}

// respond handles one message and reports whether the failure is worth a
// Twilio retry.
func (h *Handler) respond(ctx context.Context, businessID string, msg *InboundMessage) (string, bool) {
	ctx, span := tracer.Start(ctx, "sms.inbound")
	defer span.End()
	span.SetAttributes(attribute.String("nailspa.business_id", businessID))

	text := msg.Body
	switch {
	case text == "" || helpRe.MatchString(text):
		return helpText, false
	case cancelRe.MatchString(text):
		return h.cancel(ctx, businessID, msg.From)
	}

	now := h.cfg.Engine.LocalNow(ctx, businessID)
	when := h.cfg.Parser.Parse(text, now, now.Location())
	serviceType := h.matchService(ctx, businessID, text)

	switch {
	case !when.TimeDefaulted:
		out := channels.Book(ctx, h.cfg.Engine, booking.BookRequest{
			BusinessID:    businessID,
			CustomerName:  extractName(text),
			CustomerPhone: msg.From,
			ServiceType:   serviceType,
			Date:          when.Date,
			StartTime:     when.Time,
			Source:        booking.SourceSMS,
		}, h.logger)
		return out.Reply, booking.KindOf(out.Err) == booking.KindStore
	case !when.DateDefaulted || bookRe.MatchString(text):
		avail, err := h.cfg.Engine.GetAvailability(ctx, booking.AvailabilityQuery{
			BusinessID:  businessID,
			Date:        when.Date,
			ServiceType: serviceType,
		})
		if err != nil {
			h.logger.Warn("sms: availability failed", "business_id", businessID, "error_kind", booking.KindOf(err), "error", err)
			return channels.FriendlyMessage(err), booking.KindOf(err) == booking.KindStore
		}
		reply := channels.AvailabilityReply(avail)
		if avail.Available {
			reply += " Reply with a time to book, for example \"book " + strings.ToLower(clock.Spoken(avail.Slots[0])) + " on " + when.Date.String() + "\"."
		}
		return reply, false
	default:
		return helpText, false
	}
}

func (h *Handler) cancel(ctx context.Context, businessID, from string) (string, bool) {
	appt, err := h.cfg.Engine.CancelNextForPhone(ctx, businessID, from, booking.CancelReasonText)
	if err != nil {
		kind := booking.KindOf(err)
		if kind != booking.KindNotFound {
			h.logger.Warn("sms: cancel failed", "business_id", businessID, "error_kind", kind, "error", err)
		}
		return channels.FriendlyMessage(err), kind == booking.KindStore
	}
	what := appt.ServiceName
	if what == "" {
		what = "appointment"
	}
	return "Your " + what + " on " + clock.SpokenDate(appt.Date) + " at " + clock.Spoken(appt.StartTime) + " has been cancelled.", false
}

func (h *Handler) matchService(ctx context.Context, businessID, text string) string {
	services, err := h.cfg.Catalog.ListServices(ctx, businessID)
	if err != nil {
		h.logger.Warn("sms: service catalog unavailable", "business_id", businessID, "error", err)
		return ""
	}
	if svc, ok := business.MatchService(services, text); ok {
		return svc.Name
	}
	return ""
}

func extractName(text string) string {
	m := nameRe.FindStringSubmatch(text)
	if m == nil {
		return DefaultCustomerName
	}
	words := strings.Fields(m[1])
	kept := words[:0]
	for _, w := range words {
		if nameStop[strings.ToLower(w)] {
			break
		}
		kept = append(kept, strings.ToUpper(w[:1])+w[1:])
	}
	if len(kept) == 0 {
		return DefaultCustomerName
	}
	return strings.Join(kept, " ")
}

func writeTwiML(w http.ResponseWriter, body string) {
	writeTwiMLBytes(w, TwiML(body))
}

func writeTwiMLBytes(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
