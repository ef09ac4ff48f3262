package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/app"
	"github.com/kailas-cloud/catalograg/internal/config"
	"github.com/kailas-cloud/catalograg/internal/metrics"
	"github.com/kailas-cloud/catalograg/internal/repository/session"
	chiTransport "github.com/kailas-cloud/catalograg/internal/transport/chi"
	agentuc "github.com/kailas-cloud/catalograg/internal/usecase/agent"
	chatuc "github.com/kailas-cloud/catalograg/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/catalograg/internal/usecase/health"
	usageuc "github.com/kailas-cloud/catalograg/internal/usecase/usage"
	"github.com/kailas-cloud/catalograg/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := app.NewLogger(env, &cfg)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting catalograg API server", append(version.Fields(),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("chat_model", cfg.Chat.Model),
	)...)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterCompletionMetrics()
	metrics.RegisterPipelineMetrics()

	ctx := context.Background()

	backend, err := app.OpenBackend(ctx, &cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer backend.Close()

	// Composition root: one budget per provider, shared by embeddings and completions.
	budgets := app.NewBudgets(ctx, &cfg, backend.KV, logger)
	emb, err := app.NewEmbedding(&cfg, backend.KV, budgets, logger)
	if err != nil {
		logger.Fatal("Failed to build embedders", zap.Error(err))
	}
	docStore := backend.DocumentStore(emb.Embedders, emb.Dim, logger)
	completer := app.NewCompleter(&cfg, budgets, logger)

	if cfg.Ingest.StartupFile != "" {
		if _, err := app.NewIngestService(&cfg, docStore, emb, "", logger).Ingest(ctx, cfg.Ingest.StartupFile); err != nil {
			logger.Fatal("Startup ingestion failed", zap.Error(err))
		}
	}

	agent := agentuc.New(docStore, completer, agentuc.Options{
		Collection:  cfg.Agent.Collection,
		TopK:        cfg.Agent.TopK,
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
		Timeout:     time.Duration(cfg.Agent.TimeoutSec) * time.Second,
	}, logger)

	sessions := session.New(time.Duration(cfg.Session.TTLSec) * time.Second)
	chatSvc := chatuc.New(sessions, agent, logger)
	usageSvc := usageuc.New(budgetReaders(budgets)...)
	healthSvc := healthuc.New(backend.Pinger, emb, logger)

	server := chiTransport.NewServer(chatSvc, usageSvc, healthSvc, logger)
	handler := chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func budgetReaders(b app.Budgets) []usageuc.BudgetReader {
	trackers := b.Sorted()
	out := make([]usageuc.BudgetReader, len(trackers))
	for i, t := range trackers {
		out[i] = t
	}
	return out
}
