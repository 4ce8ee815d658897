package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/wolfman30/nailspa-booking/internal/app/bootstrap"
	"github.com/wolfman30/nailspa-booking/internal/cli"
	"github.com/wolfman30/nailspa-booking/internal/config"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})

	load := func(ctx context.Context) (*cli.App, func(), error) {
		if cfg.StoreDriver == bootstrap.DriverMemory || cfg.StoreDriver == "" {
			logger.Warn("bookctl is using the in-memory store; changes are discarded on exit")
		}
		rt, err := bootstrap.New(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return &cli.App{Engine: rt.Service, Catalog: rt.Catalog, Logger: logger}, rt.Close, nil
	}

	if err := cli.NewRootCmd(load, logger).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "bookctl:", err)
		os.Exit(1)
	}
}
