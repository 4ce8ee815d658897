package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	appconfig "github.com/wolfman30/nailspa-booking/internal/config"
	"github.com/wolfman30/nailspa-booking/internal/events"
	"github.com/wolfman30/nailspa-booking/internal/notify"
	"github.com/wolfman30/nailspa-booking/internal/observability/metrics"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

func breakerSettings(cfg *appconfig.Config) notify.BreakerSettings {
	return notify.BreakerSettings{
		FailureThreshold: uint32(max(cfg.BreakerFailures, 1)),
		OpenTimeout:      cfg.BreakerTimeout,
	}
}

// BuildEmailSender selects the email provider named by EMAIL_PROVIDER and
// wraps it in a circuit breaker. Missing credentials fall back to the stub.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, string) {
	var (
		sender   notify.EmailSender
		provider = cfg.EmailProvider
	)
	switch cfg.EmailProvider {
	case "sendgrid":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sg != nil {
			sender = sg
		}
	case "ses":
		if cfg.SESFromEmail == "" {
			break
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("aws config unavailable; email disabled", "error", err)
			break
		}
		sender = notify.NewSESSender(NewSESClient(awsCfg, cfg.AWSEndpointOverride), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if sender == nil {
		if provider != "" && provider != "stub" {
			logger.Warn("email provider not configured; using stub", "provider", provider)
		}
		return notify.NewStubEmailSender(logger), "stub"
	}
	return notify.NewBreakerEmailSender(provider, sender, breakerSettings(cfg), logger), provider
}

// BuildSMSSender returns the Twilio sender behind a breaker, or nil when
// Twilio credentials are absent.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) notify.SMSSender {
	tw := notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	if tw == nil {
		return nil
	}
	return notify.NewBreakerSMSSender("twilio", tw, breakerSettings(cfg), logger)
}

// BuildEventBus connects the broker named by EVENT_BUS. "none" returns a nil
// handler.
func BuildEventBus(cfg *appconfig.Config, logger *logging.Logger) (events.DeliveryHandler, io.Closer, error) {
	switch cfg.EventBus {
	case "kafka":
		p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: %w", err)
		}
		return p, p, nil
	case "rabbitmq":
		p, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: %w", err)
		}
		return p, p, nil
	case "", "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown event bus %q", cfg.EventBus)
	}
}

// BuildDeliveryHandler fans every outbox entry out to customer
// notifications and, when configured, the event bus.
func (rt *Runtime) BuildDeliveryHandler(ctx context.Context, m *metrics.BookingMetrics) (events.DeliveryHandler, error) {
	email, provider := BuildEmailSender(ctx, rt.Config, rt.Logger)
	sms := BuildSMSSender(rt.Config, rt.Logger)
	notifier := notify.NewService(email, sms, rt.Catalog, rt.Logger)

	handlers := events.FanOut{notifier}
	bus, closer, err := BuildEventBus(rt.Config, rt.Logger)
	if err != nil {
		return nil, err
	}
	if bus != nil {
		handlers = append(handlers, bus)
		rt.closers = append(rt.closers, func() { _ = closer.Close() })
	}
	rt.Logger.Info("outbox delivery configured",
		"email", provider,
		"sms", sms != nil,
		"event_bus", rt.Config.EventBus,
	)

	return events.DeliveryHandlerFunc(func(ctx context.Context, entry events.OutboxEntry) error {
		start := time.Now()
		err := handlers.Handle(ctx, entry)
		m.ObserveDeliveryLatency(entry.Type, time.Since(start).Seconds())
		return err
	}), nil
}
