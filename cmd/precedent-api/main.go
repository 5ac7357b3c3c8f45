// Package main provides the Precedent API server.
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
	"github.com/tomasbielik/precedent/internal/gateway"
	"github.com/tomasbielik/precedent/internal/metrics"
	"github.com/tomasbielik/precedent/internal/queue"
	"github.com/tomasbielik/precedent/internal/server"
	"github.com/tomasbielik/precedent/internal/service"
	"github.com/tomasbielik/precedent/internal/store"
)

func main() {
	standalone := flag.Bool("standalone", false, "run with in-memory store and an embedded worker (no SurrealDB or Redis)")
	wipeDB := flag.Bool("wipe", false, "wipe all data from the database on startup (testing only)")
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

	var (
		st       store.Store
		ledger   store.Ledger
		eventBus bus.Bus
		producer queue.Producer
		consumer queue.Consumer
	)

	if *standalone {
		logger.Info("running standalone, state is not persisted")
		memory := store.NewMemory()
		st = memory
		ledger = memory
		eventBus = bus.NewLocalBus(logger)
		local := queue.NewLocalQueue(256, logger)
		producer = local
		consumer = local
	} else {
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
		if *wipeDB {
			if err := dbClient.WipeData(ctx); err != nil {
				logger.Error("failed to wipe database", "error", err)
				os.Exit(1)
			}
		}
		st = dbClient
		ledger = dbClient

		redisBus, err := bus.NewRedisBus(ctx, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisEventsDB,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to redis event bus", "error", err)
			os.Exit(1)
		}
		defer func() { _ = redisBus.Close() }()
		eventBus = redisBus

		redisQueue, err := queue.NewRedisQueue(ctx, queue.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisWorkerDB,
			Channel:  cfg.WorkerChannel,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to redis work queue", "error", err)
			os.Exit(1)
		}
		defer func() { _ = redisQueue.Close() }()
		producer = redisQueue
	}

	research := service.NewResearchService(st, producer, logger)
	registry := gateway.NewRegistry(eventBus, logger)
	ws := gateway.NewHandler(registry, st, logger)

	if *standalone {
		model, err := agent.NewModel(cfg, collector)
		if err != nil {
			logger.Error("failed to initialize llm", "error", err)
			os.Exit(1)
		}
		analyst := agent.NewAnalyst(model)
		index := docs.NewClient(cfg.DecisionAPIURL, cfg.DecisionAPITimeout, collector)
		recorder := service.NewRecorder(st, eventBus, logger)
		pipeline := service.NewPipeline(st, ledger, index, analyst, recorder, service.PipelineConfig{
			MaxTurns:       cfg.MaxTurns,
			SearchLimit:    cfg.SearchLimit,
			AnalysisFanout: cfg.AnalysisFanout,
		}, logger)
		worker := service.NewWorker(st, consumer, pipeline, cfg.AnalysisFanout, logger)
		go func() {
			if err := worker.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("embedded worker stopped", "error", err)
			}
		}()
	}

	srv := server.New(server.Config{
		ListenAddr:     cfg.ListenAddr,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, research, ws, collector, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
