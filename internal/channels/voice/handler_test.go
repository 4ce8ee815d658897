package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/booking/bookingtest"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/idempotency"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

func newRouter(t *testing.T, cfg Config) (*chi.Mux, *bookingtest.Env) {
	t.Helper()
	env := bookingtest.New(t)
	cfg.Engine = env.Service
	cfg.Logger = logging.New("error")
	r := chi.NewRouter()
	r.Post("/webhooks/vapi/{businessID}", NewHandler(cfg).ServeHTTP)
	return r, env
}

func toolCallBody(t *testing.T, id, name string, args map[string]any) []byte {
	t.Helper()
	rawArgs, err := json.Marshal(args)
	require.NoError(t, err)
	hook := Webhook{Message: Message{
		Type:         "tool-calls",
		ToolCallList: []ToolCall{{ID: id, Function: Function{Name: name, Arguments: rawArgs}}},
	}}
	hook.Message.Call.ID = "call-1"
	hook.Message.Call.Customer.Number = "+15551234567"
	body, err := json.Marshal(hook)
	require.NoError(t, err)
	return body
}

func post(t *testing.T, h http.Handler, businessID string, body []byte, secret string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vapi/"+businessID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp Response
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestCheckAvailabilityTool(t *testing.T) {
	r, _ := newRouter(t, Config{})
	body := toolCallBody(t, "tc-1", ToolCheckAvailability, map[string]any{"date": "tomorrow", "serviceType": "Pedicure"})

	rec, resp := post(t, r, bookingtest.BusinessID, body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "tc-1", resp.Results[0].ToolCallID)
	assert.Equal(t, "On Tuesday, September 9 I have 9 AM, 11 AM, 1 PM or 4 PM available. Which time works best?", resp.Results[0].Result)
}

func TestCheckAvailabilityClosedDay(t *testing.T) {
	r, _ := newRouter(t, Config{})
	body := toolCallBody(t, "tc-1", ToolCheckAvailability, map[string]any{"date": "2025-09-14"})

	_, resp := post(t, r, bookingtest.BusinessID, body, "")
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Result, "closed on Sunday, September 14")
}

func TestBookAppointmentToolUsesCallerNumber(t *testing.T) {
	r, env := newRouter(t, Config{})
	body := toolCallBody(t, "tc-2", ToolBookAppointment, map[string]any{
		"customerName": "Dana Reyes",
		"date":         "tomorrow",
		"time":         "10am",
		"serviceType":  "Pedicure",
	})

	_, resp := post(t, r, bookingtest.BusinessID, body, "")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "You're booked for Pedicure on Tuesday, September 9 at 10 AM.", resp.Results[0].Result)

	appts, err := env.Service.ListAppointments(context.Background(), bookingtest.BusinessID, bookingtest.Tuesday)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "+15551234567", appts[0].CustomerPhone)
	assert.Equal(t, "voice", string(appts[0].Source))
}

func TestBookAppointmentSlotTakenOffersAlternatives(t *testing.T) {
	r, env := newRouter(t, Config{})
	env.Book(t, "+15559990000", bookingtest.Tuesday, civil.Time{Hour: 10})

	body := toolCallBody(t, "tc-3", ToolBookAppointment, map[string]any{
		"customerName": "Sam Lee",
		"date":         "2025-09-09",
		"time":         "10:00",
		"serviceType":  "Pedicure",
	})
	_, resp := post(t, r, bookingtest.BusinessID, body, "")
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Result, "Sorry, that time was just taken.")
	assert.Contains(t, resp.Results[0].Result, "open on Tuesday, September 9")
}

func TestBookAppointmentMissingNamePrompts(t *testing.T) {
	r, _ := newRouter(t, Config{})
	body := toolCallBody(t, "tc-4", ToolBookAppointment, map[string]any{"date": "tomorrow", "time": "3pm"})

	_, resp := post(t, r, bookingtest.BusinessID, body, "")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Could I get your name for the booking?", resp.Results[0].Result)
}

func TestBookAppointmentReplaysToolCall(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r, env := newRouter(t, Config{Idempotency: idempotency.NewStore(client, 0)})

	body := toolCallBody(t, "tc-5", ToolBookAppointment, map[string]any{
		"customerName": "Dana Reyes",
		"date":         "tomorrow",
		"time":         "2pm",
	})
	_, first := post(t, r, bookingtest.BusinessID, body, "")
	_, second := post(t, r, bookingtest.BusinessID, body, "")

	assert.Equal(t, first.Results[0].Result, second.Results[0].Result)
	appts, err := env.Service.ListAppointments(context.Background(), bookingtest.BusinessID, bookingtest.Tuesday)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestSecretRequired(t *testing.T) {
	r, _ := newRouter(t, Config{Secret: "s3cret"})
	body := toolCallBody(t, "tc-6", ToolCheckAvailability, map[string]any{"date": "tomorrow"})

	rec, _ := post(t, r, bookingtest.BusinessID, body, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := post(t, r, bookingtest.BusinessID, body, "s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Results, 1)
}

func TestUnknownBusiness(t *testing.T) {
	r, _ := newRouter(t, Config{})
	body := toolCallBody(t, "tc-7", ToolCheckAvailability, map[string]any{"date": "tomorrow"})

	rec, _ := post(t, r, "nope", body, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type unreachableCatalog struct {
	Engine
}

func (unreachableCatalog) Business(context.Context, string) (*business.Business, error) {
	return nil, fmt.Errorf("%w: get business: connection refused", booking.ErrStore)
}

func TestBusinessLookupOutageIsSpoken(t *testing.T) {
	env := bookingtest.New(t)
	r := chi.NewRouter()
	r.Post("/webhooks/vapi/{businessID}", NewHandler(Config{
		Engine: unreachableCatalog{Engine: env.Service},
		Logger: logging.New("error"),
	}).ServeHTTP)
	body := toolCallBody(t, "tc-8", ToolCheckAvailability, map[string]any{"date": "tomorrow"})

	rec, resp := post(t, r, bookingtest.BusinessID, body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "tc-8", resp.Results[0].ToolCallID)
	assert.Contains(t, resp.Results[0].Result, "trouble reaching our booking system")
}

func TestNonToolMessagesAreAcknowledged(t *testing.T) {
	r, _ := newRouter(t, Config{})
	rec, resp := post(t, r, bookingtest.BusinessID, []byte(`{"message":{"type":"status-update"}}`), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Results)
}

func TestDecodeArguments(t *testing.T) {
	args, err := decodeArguments(json.RawMessage(`"{\"date\":\"friday\",\"durationMinutes\":45}"`))
	require.NoError(t, err)
	assert.Equal(t, "friday", args.get("date"))
	assert.Equal(t, "45", args.get("durationMinutes"))

	args, err = decodeArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = decodeArguments(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
