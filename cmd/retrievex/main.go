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
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/config"
	"github.com/kailas-cloud/retrievex/internal/db"
	dbRedis "github.com/kailas-cloud/retrievex/internal/db/redis"
	"github.com/kailas-cloud/retrievex/internal/domain"
	logpkg "github.com/kailas-cloud/retrievex/internal/logger"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/retrievex/internal/repository/budget"
	"github.com/kailas-cloud/retrievex/internal/repository/embcache"
	"github.com/kailas-cloud/retrievex/internal/repository/expcache"
	keywordrepo "github.com/kailas-cloud/retrievex/internal/repository/keyword"
	vectorrepo "github.com/kailas-cloud/retrievex/internal/repository/vector"
	chiTransport "github.com/kailas-cloud/retrievex/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/retrievex/internal/transport/openai"
	"github.com/kailas-cloud/retrievex/internal/usecase/aggregate"
	embeddinguc "github.com/kailas-cloud/retrievex/internal/usecase/embedding"
	"github.com/kailas-cloud/retrievex/internal/usecase/expand"
	"github.com/kailas-cloud/retrievex/internal/usecase/funnel"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/retrievex/internal/usecase/ingest"
	"github.com/kailas-cloud/retrievex/internal/usecase/multiquery"
	"github.com/kailas-cloud/retrievex/internal/usecase/retrieve"
	searchuc "github.com/kailas-cloud/retrievex/internal/usecase/search"
	usageuc "github.com/kailas-cloud/retrievex/internal/usecase/usage"
	"github.com/kailas-cloud/retrievex/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting retrievex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Redis and Valkey speak the same wire protocol; one driver covers both.
	var store db.Store
	switch cfg.Database.Driver {
	case "redis", "valkey":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	// Build embedder chain — composition root
	// Take the first vectorizer config
	var vecCfg config.VectorizerConfig
	var provName string
	for _, vc := range cfg.Embedding.Vectorizers {
		vecCfg = vc
		provName = vc.Provider
		break
	}
	provCfg := cfg.Embedding.Providers[provName]

	// Single BudgetTracker shared across both embedders.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := provCfg.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			provName, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		// Connect persistence store — loads current counters from DB.
		budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
		budget.WithStore(ctx, budgetStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	docEmbedder := buildEmbedder(
		provName, provCfg, vecCfg, vecCfg.DocumentInstruction,
		store, budgetChecker, logger,
	)
	queryEmbedder := buildEmbedder(
		provName, provCfg, vecCfg, vecCfg.QueryInstruction,
		store, budgetChecker, logger,
	)
	logger.Info("Embedders created",
		zap.String("provider", provName),
		zap.String("model", vecCfg.Model),
		zap.Int("dimensions", vecCfg.Dimensions),
	)

	// Repositories
	vectorDim := vecCfg.Dimensions
	if vectorDim == 0 {
		vectorDim = domain.DefaultVectorConfig().Dimensions
	}

	vecRepo := vectorrepo.New(store)
	if err := vecRepo.EnsureIndex(ctx, vectorDim, cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	var kwRepo *keywordrepo.Repo
	if cfg.Keyword.IndexPath != "" {
		kwRepo, err = keywordrepo.New(cfg.Keyword.IndexPath)
	} else {
		kwRepo, err = keywordrepo.NewInMemory()
	}
	if err != nil {
		logger.Fatal("Failed to open keyword index", zap.Error(err))
	}
	defer func() { _ = kwRepo.Close() }()

	// Use case services
	limits := cfg.Retrieval.Limits
	expCfg := cfg.Retrieval.Expansion

	var expander searchuc.Expander = expcache.New(
		expand.New(queryEmbedder, expCfg.MaxVariants, expCfg.MinWeight, logger),
		store,
		time.Duration(cfg.Embedding.CacheTTLSec)*time.Second,
		metrics.ExpansionCacheTotal,
		logger,
	)

	retriever := retrieve.New(
		vecRepo, kwRepo,
		time.Duration(limits.CallTimeoutSec)*time.Second, limits.MaxRetries,
		logger,
	)

	scoring := cfg.Retrieval.Scoring
	aggregator := aggregate.New(aggregate.Weights{
		MaxSimilarity: scoring.MaxSimilarityWeight,
		AvgSimilarity: scoring.AvgSimilarityWeight,
		Position:      scoring.PositionWeight,
		DiversityStep: scoring.DiversityBonusStep,
		DiversityCap:  scoring.DiversityBonusCap,
		Vector:        scoring.VectorWeight,
		Keyword:       scoring.KeywordWeight,
	})

	funnelCfg := funnel.DefaultConfig()
	funnelCfg.RecallThreshold = cfg.Retrieval.Funnel.RecallThreshold
	funnelCfg.RecallMultiplier = cfg.Retrieval.Funnel.RecallMultiplier
	funnelCfg.PlainMultiplier = limits.CandidateMultiplier
	funnelCfg.KeywordLimit = limits.KeywordLimit
	funnelCfg.RetentionFloor = cfg.Retrieval.Funnel.FilterRetentionFloor
	funnelCfg.OverlapMax = cfg.Retrieval.Funnel.DiversityOverlapMax
	funnelSvc := funnel.New(retriever, aggregator, funnelCfg, logger)

	engine := searchuc.New(expander, retriever, aggregator, funnelSvc, searchuc.Config{
		CandidateMultiplier: limits.CandidateMultiplier,
		KeywordLimit:        limits.KeywordLimit,
		BaseThreshold:       expCfg.BaseThreshold,
	}, logger)

	multiSvc, err := multiquery.New(
		searchuc.NewSubQuerySearcher(engine), limits.MultiQueryWorkers, logger,
	)
	if err != nil {
		logger.Fatal("Failed to create multi-query pool", zap.Error(err))
	}
	multiSvc.WithPerCallLimit(limits.MultiQueryPerCall)
	defer multiSvc.Close()

	ingestSvc := ingestuc.New(docEmbedder, vecRepo, kwRepo, ingestuc.DefaultChunkWords, logger)

	healthSvc := healthuc.New(store, kwRepo, newEmbeddingHealthChecker(queryEmbedder))

	// Usage service reads from the shared BudgetTracker.
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	usageSvc := usageuc.New(budgetReader)

	// HTTP server
	server := chiTransport.NewServer(engine, multiSvc, ingestSvc, healthSvc, usageSvc, logger)

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

// batchingEmbedder is what the decorator chain actually produces: single and
// batch embedding behind one value.
type batchingEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	provName string,
	provCfg config.ProviderConfig,
	vecCfg config.VectorizerConfig,
	instruction string,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) batchingEmbedder {
	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: vecCfg.Dimensions,
		Provider:   provName,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (budget + logging); restores batch support over the cache
	instrumented := embeddinguc.NewInstrumentedEmbedder(
		embedder, provName, vecCfg.Model, budget, logger,
	)

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(instrumented, instruction)
	}

	return instrumented
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
