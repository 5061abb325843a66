// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mimir/internal/api"
	"github.com/starford/mimir/internal/blob"
	"github.com/starford/mimir/internal/docservice"
	"github.com/starford/mimir/internal/docstore"
	"github.com/starford/mimir/internal/embed"
	"github.com/starford/mimir/internal/inbox"
	"github.com/starford/mimir/internal/sse"
	"github.com/starford/mimir/internal/vecindex"
	"github.com/starford/mimir/internal/vecstore"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.String("archive_path", cfg.Archive.Path),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, closeStores, err := buildService(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	// SSE broker, fed by the service's mutation events.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	svc.OnDocumentEvent(broker.PublishDocumentEvent)

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Tokens, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the inbox watcher when configured.
	if cfg.Inbox.Enabled {
		g.Go(func() error {
			inbox.Watch(gCtx, svc, cfg.Inbox.Path, logger, nil)
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// buildService assembles the document service from configuration: the
// SQLite store, the vector index with its embedding provider, and the blob
// archive. The returned func closes everything the service opened.
func buildService(cfg *Config, logger *slog.Logger) (*docservice.Service, func(), error) {
	store, err := docstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	var (
		vectors    vecstore.Store
		closeIndex func()
	)
	if cfg.Index.Path == "" {
		vectors = vecstore.NewMemory()
	} else {
		vdb, err := vecstore.Open(cfg.Index.Path)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("init index: %w", err)
		}
		vectors = vdb
		closeIndex = func() { vdb.Close() }
	}

	provider, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		if closeIndex != nil {
			closeIndex()
		}
		store.Close()
		return nil, nil, fmt.Errorf("init embedder: %w", err)
	}

	manager := vecindex.New(provider, vectors, logger, vecindex.Options{
		BatchSize:   cfg.Index.BatchSize,
		Concurrency: cfg.Index.Concurrency,
		MaxRetries:  cfg.Index.MaxRetries,
	})

	blobs, err := blob.NewFS(cfg.Archive.Path)
	if err != nil {
		if closeIndex != nil {
			closeIndex()
		}
		store.Close()
		return nil, nil, fmt.Errorf("init archive: %w", err)
	}

	svc := docservice.NewService(store, manager, blobs, logger, docservice.Config{
		ChunkSize: cfg.Ingest.ChunkSize,
		Topics:    cfg.Ingest.Topics,
	})

	closeAll := func() {
		if closeIndex != nil {
			closeIndex()
		}
		store.Close()
	}
	return svc, closeAll, nil
}

func buildEmbedder(cfg EmbeddingConfig) (embed.Provider, error) {
	switch cfg.Provider {
	case EmbedProviderOpenAI:
		return embed.NewOpenAI(embed.OpenAIOptions{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	default:
		return embed.NewLocal(cfg.Dimension), nil
	}
}
