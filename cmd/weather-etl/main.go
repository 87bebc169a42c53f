package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	httpapi "weather-etl-pipeline/internal/api/http"
	"weather-etl-pipeline/internal/audit"
	"weather-etl-pipeline/internal/config"
	"weather-etl-pipeline/internal/fetch"
	"weather-etl-pipeline/internal/logging"
	"weather-etl-pipeline/internal/pipeline"
	"weather-etl-pipeline/internal/publish"
	"weather-etl-pipeline/internal/reconcile"
	"weather-etl-pipeline/internal/scheduler"
	"weather-etl-pipeline/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	logger := logging.New()

	// Load configuration; storage config is validated before any I/O.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	storageCfg, err := config.LoadStorage(cfg.StorageConfigPath)
	if err != nil {
		log.Fatalf("failed to load storage config: %v", err)
	}

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{
		Timeout: cfg.APITimeout,
	}

	snapshots := store.NewSnapshotStore(cfg.RawDir)
	datasets := store.NewDatasetStore(cfg.CleanDir)

	auditLog, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		log.Fatalf("failed to open audit log: %v", err)
	}

	ctx := context.Background()

	client := fetch.NewOpenMeteoClient(httpClient, cfg.BaseURL, cfg.HourlyFields, cfg.ForecastHours, cfg.Timezone)
	fetcher := fetch.NewFetcher(client, snapshots, cfg.Cities, logger)
	reconciler := reconcile.New(snapshots, datasets, logger)

	publisher, err := publish.NewFromConfig(ctx, storageCfg, logger)
	if err != nil {
		log.Fatalf("failed to build publisher: %v", err)
	}

	pipe := pipeline.New(fetcher, reconciler, publisher, auditLog, logger)
	runner := pipeline.NewRunner(pipe)

	if *once {
		if _, err := runner.TryRun(ctx); err != nil {
			logger.Error("pipeline run failed: %v", err)
			os.Exit(1)
		}
		return
	}

	// Scheduler that periodically runs the full pipeline.
	sched := scheduler.New(runner, cfg.FetchInterval, cfg.RunRetries, cfg.RetryDelay, logger)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-etl-pipeline",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-etl-pipeline",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, auditLog, datasets, runner)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
