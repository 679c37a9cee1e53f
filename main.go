package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/config"
	"github.com/schemascope/schemascope-engine/pkg/database"
	"github.com/schemascope/schemascope-engine/pkg/embedding"
	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/handlers"
	"github.com/schemascope/schemascope-engine/pkg/llm"
	"github.com/schemascope/schemascope-engine/pkg/mcp"
	"github.com/schemascope/schemascope-engine/pkg/mcp/tools"
	"github.com/schemascope/schemascope-engine/pkg/middleware"
	"github.com/schemascope/schemascope-engine/pkg/repositories"
	"github.com/schemascope/schemascope-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Int("store_dimensions", cfg.Graph.StoreDimensions))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	connStr := cfg.Database.ConnectionString()

	// Migrations run over database/sql (golang-migrate requirement); the
	// application itself uses the pgx pool.
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		_ = sqlDB.Close()
		return err
	}
	_ = sqlDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	store := graph.NewPostgresStore(db, cfg.Graph.StoreDimensions, logger)
	metadata := repositories.NewMetadataRepository(db)

	// Runs left in_progress by a previous process can never finish and
	// would block re-triggers forever.
	if n, err := metadata.ResetAbandonedDetections(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("Reset detection runs abandoned by a previous process",
			zap.Int64("tables", n))
	}

	chatClient, err := llm.NewChatClient(cfg.AI.Provider, &llm.Config{
		Endpoint: cfg.AI.LLMBaseURL,
		Model:    cfg.AI.LLMModel,
		APIKey:   cfg.AI.LLMAPIKey,
	}, logger)
	if err != nil {
		return err
	}
	embeddingClient, err := llm.NewEmbeddingClient(&llm.Config{
		Endpoint:       cfg.AI.EffectiveEmbeddingBaseURL(),
		EmbeddingModel: cfg.AI.EmbeddingModel,
		APIKey:         cfg.AI.EffectiveEmbeddingAPIKey(),
	}, logger)
	if err != nil {
		return err
	}
	embedder := embedding.NewAdapter(embeddingClient, cfg.Graph.StoreDimensions, logger)

	pool := llm.NewWorkerPool(llm.WorkerPoolConfig{
		MaxConcurrent: cfg.AI.MaxConcurrentCalls,
	}, logger)

	detector := services.NewRelationshipDetector(
		store, metadata, chatClient, pool,
		cfg.Detection.SourceBatchSize,
		cfg.Detection.ConfidenceThreshold,
		logger)
	orchestrator := services.NewDetectionOrchestrator(
		detector, metadata,
		time.Duration(cfg.Detection.RunTimeoutMinutes)*time.Minute,
		logger)

	importer := services.NewCatalogImportService(embedder, store, metadata, orchestrator, logger)
	search := services.NewSemanticSearchService(embedder, store, metadata, logger)
	maintenance := services.NewMaintenanceService(store, metadata, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSearchHandler(search, &cfg.Search, logger).RegisterRoutes(mux)
	handlers.NewTablesHandler(importer, orchestrator, store, logger).RegisterRoutes(mux)
	handlers.NewMaintenanceHandler(maintenance, logger).RegisterRoutes(mux)

	mcpServer := mcp.NewServer("schemascope-engine", cfg.Version, logger)
	tools.RegisterSearchTools(mcpServer, &tools.SearchToolDeps{
		Search: search,
		Config: &cfg.Search,
		Logger: logger,
	})
	tools.RegisterRelationshipTools(mcpServer, &tools.RelationshipToolDeps{
		Store:  store,
		Logger: logger,
	})
	mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting schemascope-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown did not finish cleanly", zap.Error(err))
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Detection runs still in flight at shutdown", zap.Error(err))
	}
	return nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
