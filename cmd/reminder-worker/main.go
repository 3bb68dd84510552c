package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/clinicops/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting reminder worker", "env", cfg.Env, "interval", cfg.ReminderPollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	worker, err := app.Worker(ctx)
	if err != nil {
		logger.Error("failed to build reminder worker", "error", err)
		app.Close()
		os.Exit(1)
	}

	worker.Run(ctx)
	logger.Info("reminder worker exited")
}
