package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pocketledger/internal/amqp"
	"pocketledger/internal/backend"
	"pocketledger/internal/config"
	apphttp "pocketledger/internal/http"
	"pocketledger/internal/kv"
	"pocketledger/internal/log"
	"pocketledger/internal/secure"
	"pocketledger/internal/services"
	"pocketledger/internal/settings"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentApp)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
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

	// AMQP is optional; without it, writes simply emit no events.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events",
				log.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("Initialized AMQP client")
		}
	}

	expenseService := services.NewExpenseService(result.Repository, publisher,
		logger.WithComponent(log.ComponentService))

	kvStore, err := kv.Open(cfg.SettingsDBPath)
	if err != nil {
		logger.Error("Failed to open settings database",
			log.FieldError, err, log.FieldPath, cfg.SettingsDBPath)
		os.Exit(1)
	}
	defer kvStore.Close()

	secureStore, err := secure.Open(cfg.SecureDBPath, cfg.SecureKeyPath)
	if err != nil {
		logger.Error("Failed to open secure store",
			log.FieldError, err, log.FieldPath, cfg.SecureDBPath)
		os.Exit(1)
	}
	defer secureStore.Close()

	settingsStore := settings.New(kvStore, secureStore,
		logger.WithComponent(log.ComponentSettings))

	srv := apphttp.NewServer(":"+cfg.Port, expenseService, settingsStore,
		logger.WithComponent(log.ComponentHTTP))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting pocketledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
