// Package voice adapts Vapi assistant tool calls to the booking engine.
// The assistant speaks whatever text the tool result carries, so every
// reply is phrased for the ear.
package voice

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/channels"
	"github.com/wolfman30/nailspa-booking/internal/channels/whenparse"
	"github.com/wolfman30/nailspa-booking/internal/idempotency"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

var tracer = otel.Tracer("nailspa.internal.channels.voice")

const (
	ToolCheckAvailability = "check_availability"
	ToolBookAppointment   = "book_appointment"

	secretHeader = "x-vapi-secret"
)

// ----- Vapi webhook payload -----

// Webhook is the envelope Vapi posts for server messages.
type Webhook struct {
	Message Message `json:"message"`
}

// Message carries the tool calls of one assistant turn.
type Message struct {
	Type         string     `json:"type"`
	ToolCallList []ToolCall `json:"toolCallList"`
	// ToolCalls is the older field name some assistants still send.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Call      Call       `json:"call"`
}

// Call identifies the phone call.
type Call struct {
	ID       string `json:"id"`
	Customer struct {
		Number string `json:"number"`
	} `json:"customer"`
}

// ToolCall is one function invocation requested by the assistant.
type ToolCall struct {
	ID       string   `json:"id"`
	Function Function `json:"function"`
}

// Function holds the tool name and its arguments. Vapi sends arguments as
// an object, some SDKs as a JSON-encoded string.
type Function struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is what Vapi expects back.
type Response struct {
	Results []Result `json:"results"`
}

// Result answers one tool call.
type Result struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ----- Handler -----

// Engine is the slice of the booking service the voice channel needs.
type Engine interface {
	channels.Engine
	Business(ctx context.Context, businessID string) (*business.Business, error)
	LocalNow(ctx context.Context, businessID string) time.Time
}

// Config configures the Handler.
type Config struct {
	Engine      Engine
	Parser      *whenparse.Parser
	Idempotency *idempotency.Store
	Secret      string
	Logger      *logging.Logger
}

// Handler serves POST /webhooks/vapi/{businessID}.
type Handler struct {
	engine Engine
	parser *whenparse.Parser
	idem   *idempotency.Store
	secret string
	logger *logging.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Engine == nil {
		panic("voice: engine required")
	}
	if cfg.Parser == nil {
		cfg.Parser = whenparse.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Handler{
		engine: cfg.Engine,
		parser: cfg.Parser,
		idem:   cfg.Idempotency,
		secret: cfg.Secret,
		logger: cfg.Logger,
	}
}

// ServeHTTP handles one Vapi webhook delivery.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	businessID := chi.URLParam(r, "businessID")

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(h.secret)) != 1 {
		h.logger.Warn("voice: secret mismatch", "business_id", businessID)
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	var hook Webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		h.logger.Warn("voice: failed to parse webhook", "error", err)
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}

	calls := hook.Message.ToolCallList
	if len(calls) == 0 {
		calls = hook.Message.ToolCalls
	}
	if len(calls) == 0 {
		// Status updates and transcripts need no answer.
		writeJSON(w, http.StatusOK, Response{Results: []Result{}})
		return
	}

	biz, err := h.engine.Business(ctx, businessID)
	if err != nil {
		kind := booking.KindOf(err)
		h.logger.Warn("voice: business lookup failed", "business_id", businessID, "error_kind", kind, "error", err)
		if kind != booking.KindStore {
			writeError(w, "business not found", http.StatusNotFound)
			return
		}
		// The caller is still on the line; every tool call gets spoken text.
		reply := channels.FriendlyMessage(err)
		resp := Response{Results: make([]Result, 0, len(calls))}
		for _, call := range calls {
			resp.Results = append(resp.Results, Result{ToolCallID: call.ID, Result: reply})
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp := Response{Results: make([]Result, 0, len(calls))}
	for _, call := range calls {
		h.logger.Info("voice: tool call",
			"business_id", biz.ID,
			"call_id", hook.Message.Call.ID,
			"tool_call_id", call.ID,
			"tool", call.Function.Name,
		)
		resp.Results = append(resp.Results, Result{
			ToolCallID: call.ID,
			Result:     h.dispatch(ctx, biz.ID, hook.Message.Call, call),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dispatch(ctx context.Context, businessID string, call Call, tc ToolCall) string {
	ctx, span := tracer.Start(ctx, "voice.tool_call")
	defer span.End()
	span.SetAttributes(
		attribute.String("nailspa.business_id", businessID),
		attribute.String("nailspa.tool", tc.Function.Name),
	)

	args, err := decodeArguments(tc.Function.Arguments)
	if err != nil {
		h.logger.Warn("voice: bad tool arguments", "tool_call_id", tc.ID, "error", err)
		return "I'm sorry, I didn't catch that. Could you say it again?"
	}

	switch tc.Function.Name {
	case ToolCheckAvailability:
		return h.checkAvailability(ctx, businessID, args)
	case ToolBookAppointment:
		if args.get("customerPhone") == "" {
			args["customerPhone"] = call.Customer.Number
		}
		return h.bookAppointment(ctx, businessID, tc.ID, args)
	default:
		h.logger.Warn("voice: unknown tool", "tool", tc.Function.Name)
		return "I'm sorry, I can't help with that over the phone."
	}
}

func (h *Handler) checkAvailability(ctx context.Context, businessID string, args arguments) string {
	now := h.engine.LocalNow(ctx, businessID)
	date, _ := h.parser.ParseDate(args.get("date"), now, now.Location())
	duration, _ := strconv.Atoi(args.get("durationMinutes"))

	avail, err := h.engine.GetAvailability(ctx, booking.AvailabilityQuery{
		BusinessID:      businessID,
		Date:            date,
		ServiceType:     args.get("serviceType"),
		DurationMinutes: duration,
	})
	if err != nil {
		h.logger.Warn("voice: availability failed", "business_id", businessID, "error_kind", booking.KindOf(err), "error", err)
		return channels.FriendlyMessage(err)
	}
	return channels.AvailabilityReply(avail)
}

func (h *Handler) bookAppointment(ctx context.Context, businessID, toolCallID string, args arguments) string {
	rec, err := h.idem.Begin(ctx, businessID, toolCallID)
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		return "I'm still working on that booking, one moment please."
	case err != nil:
		h.logger.Warn("voice: idempotency unavailable", "error", err)
	case rec != nil:
		var replay string
		if json.Unmarshal(rec.Body, &replay) == nil {
			return replay
		}
	}

	now := h.engine.LocalNow(ctx, businessID)
	when := h.parser.Parse(strings.TrimSpace(args.get("date")+" "+args.get("time")), now, now.Location())
	duration, _ := strconv.Atoi(args.get("durationMinutes"))

	out := channels.Book(ctx, h.engine, booking.BookRequest{
		BusinessID:      businessID,
		CustomerName:    args.get("customerName"),
		CustomerPhone:   args.get("customerPhone"),
		CustomerEmail:   args.get("customerEmail"),
		ServiceType:     args.get("serviceType"),
		Date:            when.Date,
		StartTime:       when.Time,
		DurationMinutes: duration,
		Source:          booking.SourceVoice,
	}, h.logger)

	if booking.KindOf(out.Err) == booking.KindStore {
		h.idem.Abandon(ctx, businessID, toolCallID)
		return out.Reply
	}
	body, _ := json.Marshal(out.Reply)
	if err := h.idem.Finish(ctx, businessID, toolCallID, idempotency.Record{Status: http.StatusOK, Body: body}); err != nil {
		h.logger.Warn("voice: failed to record tool result", "tool_call_id", toolCallID, "error", err)
	}
	return out.Reply
}

// arguments flattens tool arguments to strings; the assistant sends numbers
// and strings interchangeably.
type arguments map[string]string

func (a arguments) get(key string) string {
	return strings.TrimSpace(a[key])
}

func decodeArguments(raw json.RawMessage) (arguments, error) {
	out := arguments{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
		if strings.TrimSpace(encoded) == "" {
			return out, nil
		}
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("voice: decode arguments: %w", err)
	}
	for k, v := range fields {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, errorResponse{Error: msg})
}
