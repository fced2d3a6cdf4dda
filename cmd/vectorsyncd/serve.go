package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/chunking"
	"github.com/vantagekit/vectorsync/internal/config"
	"github.com/vantagekit/vectorsync/internal/embeddings"
	"github.com/vantagekit/vectorsync/internal/httpserver"
	"github.com/vantagekit/vectorsync/internal/logging"
	"github.com/vantagekit/vectorsync/internal/resilience"
	"github.com/vantagekit/vectorsync/internal/telemetry"
	"github.com/vantagekit/vectorsync/internal/usage"
	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vectorsync daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting vectorsyncd",
		zap.String("version", version),
		zap.String("commit", gitCommit),
	)

	tel, err := telemetry.New(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	store, err := vectorstore.NewQdrantStore(ctx, cfg.Qdrant, logger)
	if err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	storeExecutor, err := resilience.NewExecutor(cfg.StoreExecutor, logger)
	if err != nil {
		return fmt.Errorf("creating store executor: %w", err)
	}
	embeddingExecutor, err := resilience.NewExecutor(cfg.EmbeddingExecutor, logger)
	if err != nil {
		return fmt.Errorf("creating embedding executor: %w", err)
	}

	provider, err := embeddings.NewHTTPProvider(cfg.Provider)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	embedder, err := embeddings.NewService(cfg.Embeddings, provider, embeddingExecutor, logger)
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	client, err := vectorstore.NewClient(store, embedder, storeExecutor, cfg.Client, logger)
	if err != nil {
		return fmt.Errorf("creating vector client: %w", err)
	}

	tracker, err := usage.NewTracker(cfg.Usage, client, nil, logger)
	if err != nil {
		return fmt.Errorf("creating usage tracker: %w", err)
	}

	documents, err := chunking.NewDocumentStore(cfg.Chunking, client, embedder, logger)
	if err != nil {
		return fmt.Errorf("creating document store: %w", err)
	}

	server, err := httpserver.New(cfg.Server, httpserver.Deps{
		Health:    client,
		Vectors:   client,
		Documents: documents,
		Usage:     tracker,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
