package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"optium/internal/amqp"
	"optium/internal/cache"
	"optium/internal/cli"
	apphttp "optium/internal/http"
	applog "optium/internal/log"
	"optium/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := applog.NewContext(context.Background(), logger)

	handle, closeSource, err := cli.OpenDataset(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open dataset", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer closeSource()

	// Load eagerly so the first request does not pay for it. A failure is
	// retried on the next request and reported by /readyz meanwhile.
	if _, err := handle.Get(ctx); err != nil {
		logger.Error("Initial dataset load failed", applog.FieldError, err, applog.FieldOperation, applog.OpLoad)
	}

	reportCache := cache.NewLRUCache[services.ReportResponse](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	cacheManager.Register("reports", reportCache)
	cacheManager.StartCleanup(cfg.ReportCacheTTL)
	defer cacheManager.Stop()

	reports := services.NewReportService(handle, reportCache)

	var publisher services.ExportPublisher
	if cfg.ExportsEnabled() {
		amqpClient, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("Spreadsheet exports enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Spreadsheet exports disabled - no AMQP_URL provided")
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Logger:             logger,
		Reports:            reports,
		Exports:            services.NewExportService(publisher),
		Dataset:            handle,
		Cache:              reportCache,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	logger.Info("Starting optium server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		applog.FieldOperation, applog.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-shutdownCtx.Done()
	<-done
	logger.Info("Server stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}
