package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/broker/internal/config"
	"github.com/stwalsh4118/broker/internal/database"
	"github.com/stwalsh4118/broker/internal/handlers"
	"github.com/stwalsh4118/broker/internal/logger"
	"github.com/stwalsh4118/broker/internal/middleware"
	"github.com/stwalsh4118/broker/internal/repository"
	"github.com/stwalsh4118/broker/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
	warmupTimeout   = 2 * time.Minute
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Env)
	log.Info("Starting Broker API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"data_source": cfg.Data.Source,
	})

	ctx := context.Background()
	repo, closeRepo := openRepository(ctx, cfg, log)
	defer closeRepo()

	analysisService := services.NewAnalysisService(repo, cfg.Analysis, log)

	// Warm the reference snapshot so the first request does not pay for it
	warmCtx, cancelWarm := context.WithTimeout(ctx, warmupTimeout)
	status, err := analysisService.RefreshReference(warmCtx, false)
	cancelWarm()
	if err != nil {
		log.Error("Reference warm-up failed, will retry on first request", err, nil)
	} else {
		log.Info("Reference snapshot ready", map[string]interface{}{
			"version":  status.Version,
			"built_at": status.BuiltAt,
		})
	}

	var scheduler *services.RefreshScheduler
	if cfg.Analysis.RefreshSchedule != "" {
		scheduler = services.NewRefreshScheduler(analysisService, log)
		if err := scheduler.Start(cfg.Analysis.RefreshSchedule); err != nil {
			log.Fatal("Failed to start reference refresh scheduler", err, map[string]interface{}{
				"schedule": cfg.Analysis.RefreshSchedule,
			})
		}
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Middleware order: RequestID -> Logger -> Recovery -> CORS -> Timeout
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	handlers.RegisterHealthRoutes(router, handlers.NewHealthHandler(repo, cfg.Server.Env, cfg.Data.Source))
	handlers.RegisterAnalysisRoutes(router.Group("/api/v1"), handlers.NewAnalysisHandler(analysisService))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...", nil)

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}

// openRepository connects the configured data source. The returned func releases it.
func openRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.MarketRepository, func()) {
	switch cfg.Data.Source {
	case config.DataSourcePostgres:
		db, err := database.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", err, map[string]interface{}{
				"host": cfg.Database.Host,
				"port": cfg.Database.Port,
				"name": cfg.Database.Name,
			})
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			log.Fatal("Failed to ensure database schema", err, nil)
		}

		repo := repository.NewPostgresRepository(db)
		logDataset(ctx, log, repo, "Database connection established", map[string]interface{}{
			"host":     cfg.Database.Host,
			"port":     cfg.Database.Port,
			"database": cfg.Database.Name,
			"pool_min": cfg.Database.PoolMin,
			"pool_max": cfg.Database.PoolMax,
		})
		return repo, db.Close

	default:
		repo, err := repository.NewCSVRepository(cfg.Data.Dir)
		if err != nil {
			log.Fatal("Failed to load CSV dataset", err, map[string]interface{}{
				"dir": cfg.Data.Dir,
			})
		}

		logDataset(ctx, log, repo, "CSV dataset loaded", map[string]interface{}{
			"dir": cfg.Data.Dir,
		})
		return repo, func() {}
	}
}

// datasetVersioner is the part of the repository needed to report what was loaded.
type datasetVersioner interface {
	DatasetVersion(ctx context.Context) (string, error)
}

// logDataset logs msg with the dataset version added to fields. A version that cannot be
// read is logged as an error; startup continues since every analysis reads it again.
func logDataset(ctx context.Context, log *logger.Logger, repo datasetVersioner, msg string, fields map[string]interface{}) {
	version, err := repo.DatasetVersion(ctx)
	if err != nil {
		log.Error("Failed to read dataset version", err, fields)
		return
	}

	fields["version"] = version
	log.Info(msg, fields)
}
