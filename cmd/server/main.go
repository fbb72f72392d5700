package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"transaction-sync-backend/internal/config"
	handler "transaction-sync-backend/internal/handlers"
	"transaction-sync-backend/internal/models"
	"transaction-sync-backend/internal/repository"
	"transaction-sync-backend/internal/routes"
	syncsvc "transaction-sync-backend/internal/services/sync"
	"transaction-sync-backend/internal/services/upstream"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	logger := newLogger()
	defer logger.Sync()

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	records := repository.NewTransactionRecords(db)
	sourceIDs := make([]models.SourceID, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sourceIDs = append(sourceIDs, models.SourceID(src.Code))
	}
	if err := records.Migrate(sourceIDs); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	delayer := syncsvc.RandomDelayer{}
	orchestrator := syncsvc.NewOrchestrator(syncsvc.DefaultOrchestratorConfig(), records, delayer, logger)

	clientCfg := upstream.Config{
		ProducerURL:    cfg.ProducerURL,
		WithdrawURL:    cfg.WithdrawURL,
		Timeout:        cfg.UpstreamTimeout,
		ProducerSettle: cfg.ProducerSettle,
	}
	sources := make([]syncsvc.Source, 0, len(cfg.Sources))
	sourceCodes := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		client := upstream.NewClient(clientCfg, upstream.SourceConfig{
			Code:      src.Code,
			Channel:   src.Channel,
			AID:       src.AID,
			Token:     src.Token,
			GAID:      src.GAID,
			UID:       src.UID,
			Pkg:       src.Pkg,
			UserAgent: src.UserAgent,
		}, logger)
		sources = append(sources, syncsvc.Source{ID: models.SourceID(src.Code), Client: client})
		sourceCodes = append(sourceCodes, src.Code)
	}

	schedulerCfg := syncsvc.DefaultSchedulerConfig()
	schedulerCfg.Interval = cfg.SyncInterval
	scheduler := syncsvc.NewScheduler(schedulerCfg, orchestrator, sources, delayer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if !cfg.ExternalCron {
		scheduler.Start(ctx)
	} else {
		logger.Info("built-in timer disabled, sync driven by external scheduler")
	}

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	syncHandler := handler.NewSyncHandler(scheduler, cfg.TriggerSecret, handler.StatusInfo{
		ExternalCron: cfg.ExternalCron,
		Interval:     cfg.SyncInterval,
		Sources:      sourceCodes,
	}, logger)
	routes.RegisterRoutes(r, syncHandler)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()
	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("APP_ENV") == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}
