package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"helpdesk/backend/features/knowledge"
	"helpdesk/backend/features/stats"
	"helpdesk/backend/internal/adapter/gemini"
	openaiadapter "helpdesk/backend/internal/adapter/openai"
	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/middleware"
	"helpdesk/backend/internal/worker"
)

// Database is satisfied by *sql.DB; the interface keeps New mockable with
// sqlmock while repositories still receive the concrete handle.
type Database interface {
	PingContext(ctx context.Context) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// Options overrides selected collaborators, used by end to end tests to
// stub external services.
type Options struct {
	Embedder knowledge.Embedder
}

type App struct {
	Handler        http.Handler
	Indexer        *knowledge.Indexer
	IngestConsumer *worker.IngestConsumer

	port int
}

func New(
	cfg *config.Config,
	db Database,
	index knowledge.VectorIndex,
	taskPub TaskPublisher,
	opts *Options,
) (*App, error) {

	// Cast db to *sql.DB for repositories that require it.
	// This allows us to use interfaces in the signature (for mocking with sqlmock)
	// while maintaining compatibility with existing repositories.
	sqlDB := db.(*sql.DB)

	repo := knowledge.NewPostgresRepo(sqlDB)

	var embedder knowledge.Embedder
	if opts != nil && opts.Embedder != nil {
		embedder = opts.Embedder
	} else {
		var err error
		embedder, err = newEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("embedder init: %w", err)
		}
	}

	// Feature: Stats
	statsService := stats.NewService(repo, time.Duration(cfg.StatsCacheTTL)*time.Second)
	statsHandler := stats.NewHandler(statsService)

	// Feature: Knowledge
	indexer := knowledge.NewIndexer(repo, embedder, index, statsService)

	queryLogger, err := knowledge.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = knowledge.NewQueryLogger(os.Stdout)
	}
	retriever := knowledge.NewRetriever(embedder, index, repo, queryLogger)

	opTimeout := time.Duration(cfg.OperationTimeout) * time.Second
	knowledgeHandler := knowledge.NewHandler(indexer, retriever, taskPub, opTimeout)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(knowledgeHandler.ProcessDocument)))
	mux.Handle("POST /documents/enqueue", middleware.CorrelationID(enableCORS(knowledgeHandler.EnqueueDocument)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(knowledgeHandler.DeleteDocument)))

	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(knowledgeHandler.Search)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker (Ingest Consumer) Setup
	ingestConsumer := worker.NewIngestConsumer(indexer)

	return &App{
		Handler:        mux,
		Indexer:        indexer,
		IngestConsumer: ingestConsumer,
		port:           cfg.ServerPort,
	}, nil
}

// newEmbedder selects the provider once at boot; requests never fall back
// between providers.
func newEmbedder(cfg *config.Config) (knowledge.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return openaiadapter.NewEmbedder(openaiadapter.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
		}), nil
	case "gemini":
		return gemini.NewEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.GeminiEmbeddingModel, cfg.EmbeddingDimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
