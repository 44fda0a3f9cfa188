package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"pocketledger/internal/amqp"
	"pocketledger/internal/backend"
	"pocketledger/internal/charts"
	"pocketledger/internal/config"
	"pocketledger/internal/log"
	"pocketledger/internal/services"
	"pocketledger/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)

	logger.Info("Starting pocketledger-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the report worker")
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.WithComponent(log.ComponentStorage))
	result, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	// The worker only reads, so it publishes no events of its own.
	expenseService := services.NewExpenseService(result.Repository, nil,
		logger.WithComponent(log.ComponentService))

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	reportWorker := worker.NewReportWorker(expenseService, charts.NewRenderer(),
		cfg.ReportDir, cfg.ReportDebounce, logger.WithComponent(log.ComponentReports))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Render once on startup so reports exist before the first event.
	if err := reportWorker.Generate(ctx); err != nil {
		logger.Error("Initial report generation failed", log.FieldError, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reportWorker.Run(ctx)
	})
	g.Go(func() error {
		return amqpClient.ConsumeExpenseEvents(ctx, reportWorker.HandleEvent)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
