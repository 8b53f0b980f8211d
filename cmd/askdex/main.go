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

	"github.com/kailas-cloud/askdex/internal/config"
	"github.com/kailas-cloud/askdex/internal/db"
	dbPostgres "github.com/kailas-cloud/askdex/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/askdex/internal/db/redis"
	"github.com/kailas-cloud/askdex/internal/domain"
	logpkg "github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/metrics"
	"github.com/kailas-cloud/askdex/internal/repository/embcache"
	historyrepo "github.com/kailas-cloud/askdex/internal/repository/history"
	searchrepo "github.com/kailas-cloud/askdex/internal/repository/search"
	chiTransport "github.com/kailas-cloud/askdex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/askdex/internal/transport/openai"
	"github.com/kailas-cloud/askdex/internal/transport/rerank"
	"github.com/kailas-cloud/askdex/internal/transport/websearch"
	agentuc "github.com/kailas-cloud/askdex/internal/usecase/agent"
	embeddinguc "github.com/kailas-cloud/askdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/askdex/internal/usecase/health"
	"github.com/kailas-cloud/askdex/internal/usecase/orchestrator"
	"github.com/kailas-cloud/askdex/internal/usecase/router"
	"github.com/kailas-cloud/askdex/internal/usecase/synthesis"
	"github.com/kailas-cloud/askdex/internal/usecase/tools/database"
	"github.com/kailas-cloud/askdex/internal/usecase/tools/document"
	"github.com/kailas-cloud/askdex/internal/usecase/tools/web"
	"github.com/kailas-cloud/askdex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting askdex API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Database.Addrs),
	)

	ctx := logpkg.ContextWithLogger(context.Background(), logger)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create Redis store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to Redis")

	searchRepo := searchrepo.New(store, searchrepo.Schema{
		Index:          cfg.Index.Name,
		Prefix:         cfg.Index.KeyPrefix,
		Dimensions:     cfg.Index.Dimensions,
		M:              cfg.Index.HNSWM,
		EFConstruction: cfg.Index.HNSWEFConstruct,
	})
	if err := searchRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure document index", zap.Error(err))
	}

	// Registered explicitly, no init().
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterLLMMetrics()
	metrics.RegisterToolMetrics()

	queryEmbedder, err := buildEmbedder(cfg.Embedding, store, logger)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}

	llm, err := openaiTransport.NewLLM(&openaiTransport.LLMConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxRetries:  cfg.LLM.MaxRetries,
		Backoff:     time.Duration(cfg.LLM.BackoffMS) * time.Millisecond,
		SchemaHint:  cfg.Postgres.SchemaDescription,
	})
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	tools := []orchestrator.Tool{buildDocumentTool(cfg, searchRepo, queryEmbedder, logger)}

	if cfg.WebSearch.APIKey != "" {
		searcher, err := websearch.New(&websearch.Config{
			BaseURL:    cfg.WebSearch.BaseURL,
			APIKey:     cfg.WebSearch.APIKey,
			MaxResults: cfg.WebSearch.MaxResults,
			Depth:      cfg.WebSearch.Depth,
			Timeout:    time.Duration(cfg.WebSearch.TimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Fatal("Failed to create web search client", zap.Error(err))
		}
		tools = append(tools, web.New(llm, searcher, llm).WithOptions(web.Options{
			Reformulations: cfg.WebSearch.Reformulations,
			MaxParallel:    cfg.WebSearch.MaxParallel,
			SearchTimeout:  time.Duration(cfg.WebSearch.SearchTimeoutSec) * time.Second,
		}))
	} else {
		logger.Warn("web_search.api_key is empty, web tool disabled")
	}

	// Pass nil interface (not typed nil pointer!) to health when Postgres is off.
	var pgPinger healthuc.Pinger
	if cfg.Postgres.DSN != "" {
		pg, err := dbPostgres.NewStore(ctx, dbPostgres.Config{
			DSN:              cfg.Postgres.DSN,
			MaxConns:         cfg.Postgres.MaxConns,
			RowLimit:         cfg.Postgres.RowLimit,
			StatementTimeout: time.Duration(cfg.Postgres.StatementTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer pg.Close()
		pgPinger = pg
		tools = append(tools, database.New(llm, pg))
	} else {
		logger.Warn("postgres.dsn is empty, database tool disabled")
	}

	orch := orchestrator.New(tools...).WithTimeouts(
		time.Duration(cfg.Orchestrator.DefaultTimeoutSec)*time.Second,
		cfg.Orchestrator.ToolTimeoutDurations(),
	)

	rt, err := router.New(llm, llm, orch.Descriptors())
	if err != nil {
		logger.Fatal("Failed to create router", zap.Error(err))
	}
	rt = rt.WithOptions(router.Options{
		DecisionTimeout: time.Duration(cfg.Router.DecisionTimeoutSec) * time.Second,
		DateTimeout:     time.Duration(cfg.Router.DateTimeoutSec) * time.Second,
		MinConfidence:   cfg.Router.MinConfidence,
	})

	history := historyrepo.New(store, time.Duration(cfg.History.TTLHours)*time.Hour, cfg.History.MaxStored)
	agent := agentuc.New(rt, orch, synthesis.New(llm)).WithHistory(history, cfg.History.MaxTurns)

	healthSvc := healthuc.New(store).
		WithPostgres(pgPinger).
		WithEmbedding(queryEmbedder).
		WithLLM(llm)

	server := chiTransport.NewServer(agent, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(cfg.Auth.APIKeys),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", addr),
			zap.Int("tools", len(tools)),
		)
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

// embedder is the query embedder chain as seen by the document tool and health.
type embedder interface {
	domain.Embedder
	HealthCheck(ctx context.Context) error
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
func buildEmbedder(cfg config.EmbeddingConfig, store db.KVStore, logger *zap.Logger) (embedder, error) {
	base, err := openaiTransport.NewEmbedder(openaiTransport.EmbedderConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	cached := embcache.New(base, store, cfg.Model, metrics.EmbeddingCacheTotal, logger).
		WithMemorySize(cfg.CacheSize).
		WithTTL(time.Duration(cfg.CacheTTLHours) * time.Hour)

	logger.Info("Embedder created",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions),
	)
	instrumented := embeddinguc.NewInstrumented(cached, cfg.Provider, cfg.Model)

	// Instruction prefix is outermost so the cache key includes it.
	if cfg.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(instrumented, cfg.QueryInstruction), nil
	}
	return instrumented, nil
}

func buildDocumentTool(
	cfg config.Config, repo *searchrepo.Repo, emb domain.Embedder, logger *zap.Logger,
) *document.Service {
	svc := document.New(repo, repo, emb).WithOptions(document.Options{
		TopK:        cfg.Retrieval.TopK,
		Alpha:       *cfg.Retrieval.Alpha,
		Overfetch:   cfg.Retrieval.Overfetch,
		BoostFloor:  *cfg.Retrieval.BoostFloor,
		DecayWindow: time.Duration(cfg.Retrieval.DecayWindowDays) * 24 * time.Hour,
		RerankTopN:  cfg.Reranker.TopN,
	})
	if !cfg.Reranker.Enabled {
		return svc
	}
	rr, err := rerank.New(&rerank.Config{
		BaseURL: cfg.Reranker.BaseURL,
		APIKey:  cfg.Reranker.APIKey,
		Model:   cfg.Reranker.Model,
		TopN:    cfg.Reranker.TopN,
		Timeout: time.Duration(cfg.Reranker.TimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to create reranker", zap.Error(err))
	}
	return svc.WithReranker(rr)
}
