package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/askbase/askbase/internal/api/handlers"
	"github.com/askbase/askbase/internal/chunker"
	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/database"
	"github.com/askbase/askbase/internal/knowledge"
	"github.com/askbase/askbase/internal/provider"
	"github.com/askbase/askbase/internal/rag"
	"github.com/askbase/askbase/internal/server"
	"github.com/askbase/askbase/internal/session"
	"github.com/askbase/askbase/internal/storage"
	"github.com/askbase/askbase/internal/telemetry"
	"github.com/askbase/askbase/internal/vectorstore"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the askbase API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")

	store, err := openStore(ctx, cfg, noMigrate)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := provider.NewRegistry(provider.Options{
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		RequestTimeout: cfg.RequestTimeout,
	})

	knowledgeSvc := knowledge.NewService(store, registry, chunker.SplitConfig{
		Window:  cfg.ChunkWindow,
		Overlap: cfg.ChunkOverlap,
	})

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
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
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		knowledgeSvc = knowledgeSvc.WithArchiver(s3Client)
	}

	pipeline := rag.NewPipeline(store, registry, rag.Options{
		TopK:          cfg.TopK,
		ContextBudget: cfg.ContextBudget,
		DeltaTimeout:  cfg.StreamIdleTimeout,
	})

	resolver := session.NewResolver(cfg)

	routerCfg := server.RouterConfig{
		Resolver:        resolver,
		DocumentHandler: handlers.NewDocumentHandler(knowledgeSvc, cfg.MaxUploadBytes),
		QueryHandler:    handlers.NewQueryHandler(pipeline),
		ModelsHandler:   handlers.NewModelsHandler(registry),
		MaxBodyBytes:    cfg.MaxUploadBytes,
		HealthInfo: map[string]string{
			"environment":     os.Getenv("ENVIRONMENT"),
			"vector_backend":  cfg.VectorBackend,
			"llm_model":       cfg.LLMModel,
			"embedding_model": cfg.EmbeddingModel,
		},
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// openStore builds the configured vector index backend.
func openStore(ctx context.Context, cfg *config.Config, noMigrate bool) (vectorstore.Store, error) {
	switch cfg.VectorBackend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Println("connected to database")

		if !noMigrate {
			if err := runMigrations(cfg.DatabaseURL); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		store, err := vectorstore.NewPostgresStore(pool, cfg.EmbeddingDimension)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil

	case config.BackendLocal:
		store, err := vectorstore.NewLocalStore(cfg.DataDir, cfg.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		log.Printf("local store ready at %s", cfg.DataDir)
		return store, nil

	default:
		return nil, fmt.Errorf("invalid vector backend %q", cfg.VectorBackend)
	}
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
