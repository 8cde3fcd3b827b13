package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/config"
	"github.com/fyrsmithlabs/snipd/internal/embeddings"
	"github.com/fyrsmithlabs/snipd/internal/extraction"
	"github.com/fyrsmithlabs/snipd/internal/gitclone"
	"github.com/fyrsmithlabs/snipd/internal/httpapi"
	"github.com/fyrsmithlabs/snipd/internal/job"
	"github.com/fyrsmithlabs/snipd/internal/logging"
	"github.com/fyrsmithlabs/snipd/internal/mcp"
	"github.com/fyrsmithlabs/snipd/internal/pipeline"
	"github.com/fyrsmithlabs/snipd/internal/reranker"
	"github.com/fyrsmithlabs/snipd/internal/search"
	"github.com/fyrsmithlabs/snipd/internal/vectorstore"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ingestion worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildSearchDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = deps.vectors.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	extractor, err := extraction.NewClient(extraction.Config{
		BaseURL:           cfg.Extraction.BaseURL,
		Timeout:           cfg.Extraction.Timeout,
		RequestsPerSecond: cfg.Extraction.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("building extraction client: %w", err)
	}

	cloner := gitclone.NewGitCloner(gitclone.Options{
		WorkspaceDir: cfg.Clone.WorkspaceDir,
		Timeout:      cfg.Clone.Timeout,
	}, logger)

	jobs := job.NewMemoryStore(cfg.Worker.QueueSize)

	processor := pipeline.NewProcessor(jobs, cloner, extractor, deps.embedder, deps.vectors,
		pipeline.Options{
			ExtractConcurrency: cfg.Worker.ExtractConcurrency,
			BatchSize:          cfg.Embeddings.BatchSize,
			ProgressInterval:   cfg.Worker.ProgressInterval,
			DefaultMaxFileSize: cfg.Extraction.DefaultMaxFileSize,
			Retry:              pipeline.DefaultRetryPolicy(),
		},
		pipeline.NewMetrics(registry), logger)
	pool := pipeline.NewPool(jobs, processor, cfg.Worker.Workers, logger)

	searcher := search.NewOrchestrator(deps.embedder, deps.vectors, deps.reranker,
		cfg.Reranker.Overfetch, search.NewMetrics(registry), logger)

	server := httpapi.New(httpapi.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, jobs, searcher, deps.vectors, registry, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
	}

	jobs.Close()
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	wg.Wait()
	return nil
}

// searchDeps are the adapters shared by serve and the MCP command.
type searchDeps struct {
	embedder *embeddings.Service
	vectors  vectorstore.Store
	reranker reranker.Reranker
}

func buildSearchDeps(cfg *config.Config, logger *zap.Logger) (*searchDeps, error) {
	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
		Timeout: cfg.Embeddings.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	vectors, err := vectorstore.New(cfg.VectorStore.Provider,
		vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			Collection: cfg.VectorStore.Qdrant.Collection,
			VectorSize: uint64(cfg.VectorStore.Qdrant.VectorSize),
			MaxRetries: cfg.VectorStore.Qdrant.MaxRetries,
		},
		vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Collection: cfg.VectorStore.Chromem.Collection,
			Compress:   cfg.VectorStore.Chromem.Compress,
		}, logger)
	if err != nil {
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	deps := &searchDeps{embedder: embedder, vectors: vectors}
	if cfg.Reranker.Enabled {
		deps.reranker = reranker.NewOverlapReranker()
	}
	return deps, nil
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search_snippets MCP tool over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logging.Sync(logger) }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := buildSearchDeps(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = deps.vectors.Close() }()

			searcher := search.NewOrchestrator(deps.embedder, deps.vectors, deps.reranker,
				cfg.Reranker.Overfetch, nil, logger)

			srv, err := mcp.NewServer(mcp.Config{Name: "snipd", Version: version}, searcher, logger)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
