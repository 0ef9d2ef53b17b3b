package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/cli"
	"bilancio/internal/log"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	logger.Info("Starting bilancio-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.EventsEnabled() {
		logger.Error("AMQP_URL is required to run the mirror worker")
		os.Exit(1)
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Failed to create backend config", log.FieldError, err.Error())
		os.Exit(1)
	}

	mirror, err := backend.NewFactory(logger).CreateMirror(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize mirror", log.FieldError, err.Error())
		os.Exit(1)
	}
	if backendConfig.MirrorType == backend.MemoryMirror {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set - events are mirrored in memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}

	cleanup := func() {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err.Error())
		}
		if mirror.Cleanup != nil {
			if err := mirror.Cleanup(); err != nil {
				logger.Error("Mirror cleanup error", log.FieldError, err.Error())
			}
		}
	}
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, cleanup)

	w := worker.NewMirrorWorker(mirror.Mirror, logger)
	logger.Info("Consuming ledger events",
		"queue", cfg.AMQPQueue,
		"prefetch", cfg.MirrorPrefetch,
		"mirror", backendConfig.MirrorType.String())

	if err := amqpClient.ConsumeLedgerEvents(ctx, cfg.MirrorPrefetch, w.HandleLedgerEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err.Error())
		cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
