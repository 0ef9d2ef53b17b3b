package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/backend"
	"bilancio/internal/cli"
	apphttp "bilancio/internal/http"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/log"
	"bilancio/internal/pricefeed"
	"bilancio/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Failed to create backend config", log.FieldError, err.Error())
		os.Exit(1)
	}

	factory := backend.NewFactory(logger)
	integrations, err := factory.CreateIntegrations(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize integrations", log.FieldError, err.Error())
		os.Exit(1)
	}

	svc := services.NewLedgerService(services.Deps{
		Store:        memory.New(),
		Quotes:       integrations.Slot,
		Publisher:    integrations.Publisher,
		History:      integrations.History,
		Suggester:    memory.NewCatalogFromFile(cfg.CategoriesFile, cfg.SuggestedCategories),
		InitialUnits: cfg.AlternateInitialBalance,
		Logger:       logger,
	})

	var poller *pricefeed.Poller
	if cfg.PriceFeedEnabled() {
		poller = pricefeed.NewPoller(
			pricefeed.NewHTTPFetcher(cfg.PriceFeedURL, nil),
			integrations.Slot,
			integrations.Recorder,
			pricefeed.PollerConfig{Interval: cfg.PricePollInterval, FetchTimeout: cfg.PriceFetchTimeout},
			logger,
		)
	} else {
		logger.Info("Price feed disabled - alternate entries need an explicit rate")
	}

	opts := apphttp.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Checks:             map[string]apphttp.ReadinessCheck{},
		Caches:             svc.Caches(),
	}
	if poller != nil {
		opts.Refresher = poller
	}
	if p, ok := integrations.History.(interface{ Ping(context.Context) error }); ok {
		opts.Checks["rate_history"] = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, opts)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout-5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if err := integrations.Cleanup(); err != nil {
			logger.Error("Integration cleanup error", log.FieldError, err.Error())
		}
	}
	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, cleanup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting bilancio server",
			"port", cfg.Port,
			"price_feed", cfg.PriceFeedEnabled(),
			"events", integrations.Publisher != nil,
			"rate_history", integrations.History != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if poller != nil {
		g.Go(func() error {
			return poller.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
