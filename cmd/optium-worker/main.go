package main

import (
	"context"
	"errors"
	"os"
	"time"

	"optium/internal/amqp"
	"optium/internal/backend"
	"optium/internal/cli"
	applog "optium/internal/log"
	"optium/internal/services"
	"optium/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting optium-worker", applog.FieldOperation, applog.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.ExportsEnabled() {
		logger.Error("AMQP_URL is required to run the export worker")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	ctx = applog.NewContext(ctx, logger)

	handle, closeSource, err := cli.OpenDataset(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open dataset", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer closeSource()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	writer, err := backend.NewFactory(logger.WithComponent(applog.ComponentSheets).Logger).CreateWriter(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize export writer", applog.FieldError, err)
		os.Exit(1)
	}
	if writer.DryRun {
		logger.Warn("Running in dry-run mode - exports are generated but not written to Google Sheets")
	}

	amqpClient, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Reports are generated once per job, so the worker does not cache them.
	exportWorker := worker.NewExportWorker(services.NewReportService(handle, nil), writer.Writer, logger)

	if err := amqpClient.ConsumeExports(ctx, exportWorker.HandleExport); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err, applog.FieldOperation, applog.OpConsume)
		os.Exit(1)
	}

	<-done
	logger.Info("Worker shutdown complete", applog.FieldOperation, applog.OpShutdown)
}
