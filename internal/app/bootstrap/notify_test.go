package bootstrap

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/nailspa-booking/internal/events"
	"github.com/wolfman30/nailspa-booking/internal/notify"
	"github.com/wolfman30/nailspa-booking/internal/observability/metrics"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

func TestBuildEmailSenderSelection(t *testing.T) {
	ctx := context.Background()
	logger := logging.New("error")

	cfg := testConfig()
	sender, provider := BuildEmailSender(ctx, cfg, logger)
	assert.Equal(t, "stub", provider)
	assert.IsType(t, &notify.StubEmailSender{}, sender)

	cfg.EmailProvider = "sendgrid"
	_, provider = BuildEmailSender(ctx, cfg, logger)
	assert.Equal(t, "stub", provider, "sendgrid without an api key falls back")

	cfg.SendGridAPIKey = "SG.test"
	cfg.SendGridFromEmail = "bookings@polished.example"
	sender, provider = BuildEmailSender(ctx, cfg, logger)
	assert.Equal(t, "sendgrid", provider)
	assert.IsType(t, &notify.BreakerEmailSender{}, sender)

	cfg = testConfig()
	cfg.EmailProvider = "ses"
	cfg.SESFromEmail = "bookings@polished.example"
	cfg.AWSRegion = "us-east-1"
	cfg.AWSAccessKeyID = "test"
	cfg.AWSSecretAccessKey = "test"
	cfg.AWSEndpointOverride = "http://localhost:4566"
	sender, provider = BuildEmailSender(ctx, cfg, logger)
	assert.Equal(t, "ses", provider)
	assert.IsType(t, &notify.BreakerEmailSender{}, sender)
}

func TestBuildSMSSenderRequiresCredentials(t *testing.T) {
	cfg := testConfig()
	assert.Nil(t, BuildSMSSender(cfg, logging.New("error")))

	cfg.TwilioAccountSID = "AC123"
	cfg.TwilioAuthToken = "token"
	cfg.TwilioFromNumber = "+15550009999"
	assert.IsType(t, &notify.BreakerSMSSender{}, BuildSMSSender(cfg, logging.New("error")))
}

func TestBuildEventBus(t *testing.T) {
	logger := logging.New("error")
	cfg := testConfig()

	h, closer, err := BuildEventBus(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Nil(t, closer)

	cfg.EventBus = "kafka"
	_, _, err = BuildEventBus(cfg, logger)
	assert.ErrorContains(t, err, "kafka brokers required")

	cfg.KafkaBrokers = []string{"localhost:9092"}
	cfg.KafkaTopic = ""
	_, _, err = BuildEventBus(cfg, logger)
	assert.ErrorContains(t, err, "kafka topic required")

	cfg.KafkaTopic = "appointments"
	h, closer, err = BuildEventBus(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &events.KafkaPublisher{}, h)
	require.NoError(t, closer.Close())

	cfg.EventBus = "nats"
	_, _, err = BuildEventBus(cfg, logger)
	assert.ErrorContains(t, err, "unknown event bus")
}

func TestBuildDeliveryHandlerAcknowledgesUnnotifiedEvents(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, testConfig(), logging.New("error"))
	require.NoError(t, err)
	defer rt.Close()

	m := metrics.NewBookingMetrics(prometheus.NewRegistry())
	handler, err := rt.BuildDeliveryHandler(ctx, m)
	require.NoError(t, err)

	err = handler.Handle(ctx, events.OutboxEntry{
		ID:         uuid.New(),
		BusinessID: "biz-1",
		Type:       "appointment.completed.v1",
		Payload:    json.RawMessage(`{}`),
	})
	assert.NoError(t, err)
}
