package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/analyzer"
	"github.com/groundlabs/sopqa/internal/answer"
	"github.com/groundlabs/sopqa/internal/chunker"
	"github.com/groundlabs/sopqa/internal/config"
	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/embcache"
	"github.com/groundlabs/sopqa/internal/index"
	"github.com/groundlabs/sopqa/internal/ingest"
	"github.com/groundlabs/sopqa/internal/loader"
	logpkg "github.com/groundlabs/sopqa/internal/logger"
	"github.com/groundlabs/sopqa/internal/metrics"
	"github.com/groundlabs/sopqa/internal/retrieval"
	"github.com/groundlabs/sopqa/internal/store"
	storeRedis "github.com/groundlabs/sopqa/internal/store/redis"
	storeSqlite "github.com/groundlabs/sopqa/internal/store/sqlite"
	chiTransport "github.com/groundlabs/sopqa/internal/transport/chi"
	openaiTransport "github.com/groundlabs/sopqa/internal/transport/openai"
	"github.com/groundlabs/sopqa/internal/version"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting sopqa API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("collection", cfg.Store.Collection),
	)

	ctx := context.Background()

	// Create vector store based on driver
	var (
		vecStore store.Store
		kv       store.KV
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := storeSqlite.New(cfg.Store.Directory, cfg.Store.Collection)
		if err != nil {
			logger.Fatal("Failed to open sqlite store", zap.Error(err))
		}
		vecStore, kv = st, st
	case "redis":
		st, err := storeRedis.New(storeRedis.Config{
			Addrs:      cfg.Store.Addrs,
			Password:   cfg.Store.Password,
			Collection: cfg.Store.Collection,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		readiness := time.Duration(cfg.Store.ReadinessTimeout) * time.Second
		if err := st.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Redis store not ready", zap.Error(err))
		}
		vecStore, kv = st, st
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
	}
	defer vecStore.Close()

	logger.Info("Vector store ready", zap.String("location", vecStore.Location()))

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	// Embedder chain: OpenAI -> cache
	providerEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	var embedder domain.Embedder = providerEmbedder
	if cfg.Embedding.Cache {
		embedder = embcache.New(embedder, kv, logger)
	}

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Logger:      logger,
	})

	idx := index.New(vecStore, embedder, cfg.Store.Collection, logger)
	engine := retrieval.New(idx, cfg.Retrieval.TopK, cfg.Retrieval.SimilarityThreshold, logger)
	answerSvc := answer.New(engine, generator, logger)

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap, logger)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	var docAnalyzer ingest.Analyzer
	if cfg.Generation.Analyze {
		docAnalyzer = analyzer.New(generator, cfg.Generation.Model, logger)
	}

	docLoader := loader.New(logger)
	ingestSvc := ingest.New(docLoader, splitter, docAnalyzer, idx, cfg.Chunking.Size, logger)

	if cfg.Ingest.OnStartup && cfg.Ingest.Folder != "" {
		count, err := ingestSvc.IngestPath(ctx, cfg.Ingest.Folder)
		if err != nil {
			logger.Error("Startup ingest failed", zap.String("folder", cfg.Ingest.Folder), zap.Error(err))
		} else {
			logger.Info("Startup ingest complete",
				zap.String("folder", cfg.Ingest.Folder),
				zap.Int("chunks", count),
			)
		}
	}

	server := chiTransport.NewServer(answerSvc, ingestSvc, engine, vecStore, providerEmbedder, cfg.Ingest.Folder, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
