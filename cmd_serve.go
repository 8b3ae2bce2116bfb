package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"legal-analyzer/api/handler"
	"legal-analyzer/api/middleware"
	"legal-analyzer/api/router"
	"legal-analyzer/job"
	"legal-analyzer/logic/chat"
	"legal-analyzer/logic/ingestion/extract"
	"legal-analyzer/pkg/logger"
	"legal-analyzer/service"
	"legal-analyzer/storage/es"
	"legal-analyzer/storage/objectstore"
	"legal-analyzer/storage/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer postgres.Close(db)
	repo := postgres.NewRepo(db)

	chatModel, err := chat.New(ctx, cfg.Chat(), log)
	if err != nil {
		return err
	}

	checks := map[string]handler.Check{"database": pingDB(db)}
	var (
		analysisOpts []service.AnalysisOption
		searcher     service.ClauseSearcher
	)
	if cfg.Search.Enabled {
		idx, err := es.NewClauseIndex(cfg.Elasticsearch(), log)
		if err != nil {
			return err
		}
		if err := idx.EnsureIndex(ctx); err != nil {
			return err
		}
		analysisOpts = append(analysisOpts, service.WithClauseIndexer(idx))
		searcher = idx
		checks["search"] = idx.Ping
	}
	analysisSvc := service.NewAnalysisService(repo, chatModel, log, analysisOpts...)

	extractor, err := extract.New(ctx)
	if err != nil {
		return err
	}
	uploadOpts := []service.UploadOption{service.WithMaxUploadSize(cfg.Upload.MaxSize)}
	var links handler.Presigner
	if cfg.Storage.Enabled {
		store, err := objectstore.New(cfg.ObjectStore())
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}
		uploadOpts = append(uploadOpts, service.WithObjectStore(store))
		links = store
	}
	uploadSvc := service.NewUploadService(repo, extractor, analysisSvc, log, uploadOpts...)
	retrievalSvc := service.NewRetrievalService(repo, searcher, log)

	if cfg.Reaper.Enabled {
		reaper, err := job.NewReaper(repo, cfg.Reaper.Schedule, cfg.Reaper.StaleAfter, log)
		if err != nil {
			return err
		}
		reaper.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := reaper.Stop(stopCtx); err != nil {
				log.Warn("reaper did not stop cleanly", zap.Error(err))
			}
		}()
	}

	if logger.ParseLevel(cfg.Log.Level) > zapcore.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.New(log, router.Options{
		Auth:      middleware.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, Required: cfg.Auth.Required},
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
		Checks:    checks,
	}, handler.NewAnalyzeHandler(analysisSvc, log), handler.NewDocumentHandler(uploadSvc, retrievalSvc, links, log))

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout(),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.Bool("search", cfg.Search.Enabled),
			zap.Bool("object_storage", cfg.Storage.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openDB connects and, when configured, migrates the schema.
func openDB(ctx context.Context) (*gorm.DB, error) {
	db, err := postgres.InitDB(cfg.Postgres(), log)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = postgres.Close(db)
			return nil, err
		}
	}
	return db, nil
}

func pingDB(db *gorm.DB) handler.Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
