package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/writeflow-dev/writeflow/internal/api"
	"github.com/writeflow-dev/writeflow/internal/config"
	"github.com/writeflow-dev/writeflow/internal/cover"
	"github.com/writeflow-dev/writeflow/internal/imagegen"
	"github.com/writeflow-dev/writeflow/internal/llm"
	"github.com/writeflow-dev/writeflow/internal/material"
	"github.com/writeflow-dev/writeflow/internal/review"
	"github.com/writeflow-dev/writeflow/internal/rewrite"
	"github.com/writeflow-dev/writeflow/internal/server"
	"github.com/writeflow-dev/writeflow/internal/storage/sqlite"
	"github.com/writeflow-dev/writeflow/internal/style"
	"github.com/writeflow-dev/writeflow/internal/telemetry"
	"github.com/writeflow-dev/writeflow/internal/workflow"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.LLM.APIKey == "" {
		log.Fatal("LLM API key is required (set WRITEFLOW_LLM_API_KEY)")
	}

	// Initialize OpenTelemetry
	shutdown, err := telemetry.InitTracer("writeflow", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	llmClient := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, llm.WithBaseURL(cfg.LLM.BaseURL))
	imageKey := cfg.Image.APIKey
	if imageKey == "" {
		imageKey = cfg.LLM.APIKey
	}
	images := imagegen.NewClient(imageKey, cfg.Image.Model, imagegen.WithBaseURL(cfg.Image.BaseURL))

	var embedder material.Embedder
	if cfg.Embedding.Model != "" {
		embedKey := cfg.Embedding.APIKey
		if embedKey == "" {
			embedKey = cfg.LLM.APIKey
		}
		embedBase := cfg.Embedding.BaseURL
		if embedBase == "" {
			embedBase = cfg.LLM.BaseURL
		}
		embedder = material.NewEmbeddingsClient(embedKey, cfg.Embedding.Model, embedBase, nil)
	}

	styles := style.NewService(store, llmClient, logger)
	materials := material.NewService(store, embedder, logger)
	rewrites := rewrite.NewService(store, store, materials, llmClient, logger)
	reviews := review.NewService(store, llmClient, logger)
	covers := cover.NewService(store, store, store, llmClient, images, logger)
	workflows := workflow.NewService(rewrites, reviews, store, store, store, logger)

	srv := server.New(cfg.Server.Port, logger)
	handlers := api.NewHandlers(styles, materials, rewrites, reviews, covers, workflows, store, logger)
	handlers.Routes(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("writeflow started",
		slog.Int("port", cfg.Server.Port),
		slog.String("db", cfg.DB.Path),
		slog.String("llm_model", cfg.LLM.Model),
		slog.String("image_model", cfg.Image.Model))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	case <-sigChan:
	}

	logger.Info("Shutdown signal received, stopping server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Server shutdown complete")
}
