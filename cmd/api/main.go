package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/nailspa-booking/internal/api/router"
	"github.com/wolfman30/nailspa-booking/internal/app/bootstrap"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/channels/sms"
	"github.com/wolfman30/nailspa-booking/internal/channels/voice"
	"github.com/wolfman30/nailspa-booking/internal/channels/web"
	appconfig "github.com/wolfman30/nailspa-booking/internal/config"
	"github.com/wolfman30/nailspa-booking/internal/events"
	httpmiddleware "github.com/wolfman30/nailspa-booking/internal/http/middleware"
	"github.com/wolfman30/nailspa-booking/internal/idempotency"
	"github.com/wolfman30/nailspa-booking/internal/observability/metrics"
	"github.com/wolfman30/nailspa-booking/internal/payments"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	logger.Info("starting nailspa booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreDriver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize booking runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	metricsHandler, bookingMetrics := setupMetrics()
	rt.Service.WithObserver(bookingMetrics)

	handler, limiter, err := buildHandler(rt, bookingMetrics, metricsHandler)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}
	go limiter.Run(time.Minute, ctx.Done())

	// The in-memory outbox only exists inside this process.
	if cfg.StoreDriver == bootstrap.DriverMemory || cfg.StoreDriver == "" {
		delivery, err := rt.BuildDeliveryHandler(ctx, bookingMetrics)
		if err != nil {
			logger.Error("failed to configure outbox delivery", "error", err)
			os.Exit(1)
		}
		deliverer := events.NewDeliverer(rt.Outbox, delivery, logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxPollInterval)
		go deliverer.Start(ctx)
		logger.Info("in-process outbox deliverer started")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

func buildHandler(rt *bootstrap.Runtime, m *metrics.BookingMetrics, metricsHandler http.Handler) (http.Handler, *httpmiddleware.RateLimiter, error) {
	cfg := rt.Config
	logger := rt.Logger

	numbers, err := bootstrap.ParseNumberMap(cfg.TwilioNumberMapJSON, cfg.DefaultPhoneRegion)
	if err != nil {
		return nil, nil, err
	}
	parser := bootstrap.BuildParser(cfg, logger)

	var idem *idempotency.Store
	if rt.Redis != nil {
		idem = idempotency.NewStore(rt.Redis, 24*time.Hour)
	} else {
		logger.Warn("redis not configured; channel retries are not de-duplicated")
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	routerCfg := &router.Config{
		Logger:             logger,
		Metrics:            m,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		AdminToken:         cfg.AdminToken,
		HealthChecks: map[string]router.HealthCheck{
			"store": rt.Ping,
			"redis": rt.PingRedis,
		},
		Web:      web.NewHandler(rt.Service, idem, logger),
		Business: business.NewHandler(rt.Catalog, logger),
		Voice: voice.NewHandler(voice.Config{
			Engine:      rt.Service,
			Parser:      parser,
			Idempotency: idem,
			Secret:      cfg.VapiSecret,
			Logger:      logger,
		}),
		SMS: sms.NewHandler(sms.Config{
			Engine:        rt.Service,
			Catalog:       rt.Catalog,
			Parser:        parser,
			Numbers:       numbers,
			PhoneRegion:   cfg.DefaultPhoneRegion,
			AuthToken:     cfg.TwilioAuthToken,
			WebhookURL:    cfg.TwilioWebhookURL,
			SkipSignature: cfg.TwilioSkipSignature,
			Idempotency:   idem,
			Logger:        logger,
		}),
	}
	if cfg.StripeWebhookSecret != "" {
		routerCfg.Stripe = payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, rt.Service, rt.Processed, logger).Handle
	}
	if cfg.SquareWebhookKey != "" {
		routerCfg.Square = payments.NewSquareWebhookHandler(cfg.SquareWebhookKey, cfg.SquareWebhookBaseURL, rt.Service, rt.Processed, logger).Handle
	}
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set; admin routes are disabled")
	}
	return router.New(routerCfg), limiter, nil
}
