// Package main provides the Precedent research worker.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomasbielik/precedent/internal/agent"
	"github.com/tomasbielik/precedent/internal/bus"
	"github.com/tomasbielik/precedent/internal/config"
	"github.com/tomasbielik/precedent/internal/db"
	"github.com/tomasbielik/precedent/internal/docs"
	"github.com/tomasbielik/precedent/internal/metrics"
	"github.com/tomasbielik/precedent/internal/queue"
	"github.com/tomasbielik/precedent/internal/service"
)

func main() {
	concurrency := flag.Int("concurrency", 4, "number of researches processed in parallel")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()
	dbClient = dbClient.WithMetrics(collector)

	if err := dbClient.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	eventBus, err := bus.NewRedisBus(ctx, bus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisEventsDB,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to redis event bus", "error", err)
		os.Exit(1)
	}
	defer func() { _ = eventBus.Close() }()

	workQueue, err := queue.NewRedisQueue(ctx, queue.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisWorkerDB,
		Channel:  cfg.WorkerChannel,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to redis work queue", "error", err)
		os.Exit(1)
	}
	defer func() { _ = workQueue.Close() }()

	model, err := agent.NewModel(cfg, collector)
	if err != nil {
		logger.Error("failed to initialize llm", "error", err)
		os.Exit(1)
	}
	analyst := agent.NewAnalyst(model)
	index := docs.NewClient(cfg.DecisionAPIURL, cfg.DecisionAPITimeout, collector)

	recorder := service.NewRecorder(dbClient, eventBus, logger)
	pipeline := service.NewPipeline(dbClient, dbClient, index, analyst, recorder, service.PipelineConfig{
		MaxTurns:       cfg.MaxTurns,
		SearchLimit:    cfg.SearchLimit,
		AnalysisFanout: cfg.AnalysisFanout,
	}, logger)
	worker := service.NewWorker(dbClient, workQueue, pipeline, *concurrency, logger)

	logger.Info("worker starting", "concurrency", *concurrency)
	if err := worker.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
