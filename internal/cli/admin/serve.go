package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/discover/internal/api/handlers"
	"github.com/cloo-solutions/discover/internal/api/middleware"
	"github.com/cloo-solutions/discover/internal/config"
	"github.com/cloo-solutions/discover/internal/database"
	"github.com/cloo-solutions/discover/internal/export"
	"github.com/cloo-solutions/discover/internal/gateway"
	"github.com/cloo-solutions/discover/internal/jobs"
	"github.com/cloo-solutions/discover/internal/repository"
	"github.com/cloo-solutions/discover/internal/server"
	"github.com/cloo-solutions/discover/internal/service"
	"github.com/cloo-solutions/discover/internal/storage"
	"github.com/cloo-solutions/discover/internal/telemetry"
	"github.com/spf13/cobra"
)

const retentionInterval = time.Hour

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the discover API server.

The default index pattern is read once from the cluster's config index at
startup. The export audit log is enabled by DISCOVER_DATABASE_URL and
archival by the DISCOVER_S3_* settings.`,
		RunE: runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DISCOVER_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	if cfg.SentryDSN != "" {
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	gw, err := gateway.New(gateway.Config{
		Addresses:   []string{cfg.ElasticsearchURL},
		Username:    cfg.ElasticsearchUsername,
		Password:    cfg.ElasticsearchPassword,
		ConfigIndex: cfg.ConfigIndex,
	})
	if err != nil {
		return err
	}
	gw.Init(ctx)

	opts := []export.Option{
		export.WithTimeout(cfg.ExportTimeout),
		export.WithTimeField(cfg.TimeField),
	}

	var logRepo *repository.ExportLogRepository
	if cfg.HasDatabase() {
		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if !noMigrate {
			source, _ := cmd.Flags().GetString("migrations")
			if err := database.Migrate(cfg.DatabaseURL, source); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		log.Println("connected to database; export audit log enabled")

		logRepo = repository.NewExportLogRepository(pool)
		opts = append(opts, export.WithLogStore(logRepo))
	}

	var objects *storage.S3Client
	if cfg.HasS3() {
		objects, err = storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready; export archival enabled", cfg.S3Bucket)
		opts = append(opts, export.WithArchiver(objects))
	}

	var retentionWorker *jobs.Worker
	if logRepo != nil && cfg.Retention > 0 {
		var deleter jobs.ObjectDeleter
		if objects != nil {
			deleter = objects
		}
		sweeper := jobs.NewRetentionSweeper(logRepo, deleter, cfg.Retention)
		retentionWorker = jobs.NewWorker("retention", sweeper, retentionInterval)
		go retentionWorker.Start(ctx)
		log.Printf("retention worker started (keeping %s)", cfg.Retention)
	}

	coordinator := export.NewCoordinator(gw, gw.Scope, opts...)
	searchSvc := service.NewSearchService(gw, gw.Scope, cfg.TimeField, cfg.SampleSize)

	var logReader handlers.ExportLogReader
	if logRepo != nil {
		logReader = logRepo
	}

	var validator middleware.AuthValidator
	if cfg.HasAuth() {
		validator = service.NewTokenAuthService(cfg.APIToken)
	} else {
		log.Println("DISCOVER_API_TOKEN not set; /api routes are unauthenticated")
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator: validator,
		Cluster:       gw,
		ExportHandler: handlers.NewExportHandler(coordinator, logReader),
		SearchHandler: handlers.NewSearchHandler(searchSvc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %s (scope %q)", cfg.Port, gw.Scope())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down...")

	if retentionWorker != nil {
		retentionWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
