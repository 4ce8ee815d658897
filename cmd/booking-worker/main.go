package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/nailspa-booking/internal/app/bootstrap"
	"github.com/wolfman30/nailspa-booking/internal/config"
	"github.com/wolfman30/nailspa-booking/internal/events"
	"github.com/wolfman30/nailspa-booking/internal/observability/metrics"
	"github.com/wolfman30/nailspa-booking/internal/worker/completion"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})

	if cfg.StoreDriver == bootstrap.DriverMemory || cfg.StoreDriver == "" {
		logger.Error("booking worker requires STORE_DRIVER=postgres or sqlite; the API delivers the memory outbox itself")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize booking runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	reg := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(reg)
	rt.Service.WithObserver(bookingMetrics)

	delivery, err := rt.BuildDeliveryHandler(ctx, bookingMetrics)
	if err != nil {
		logger.Error("failed to configure outbox delivery", "error", err)
		os.Exit(1)
	}

	deliverer := events.NewDeliverer(rt.Outbox, delivery, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)
	sweeper := completion.NewSweeper(rt.Service, logger).
		WithInterval(cfg.CompletionSweepInterval)

	go deliverer.Start(ctx)
	go sweeper.Run(ctx)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server stopped", "error", err)
		}
	}()

	logger.Info("booking worker started",
		"store", cfg.StoreDriver,
		"poll_interval", cfg.OutboxPollInterval.String(),
		"sweep_interval", cfg.CompletionSweepInterval.String(),
	)
	<-ctx.Done()
	logger.Info("booking worker shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
