// Command server runs the HTTP API: workspace and document management,
// direct ingest, ask and the answer stream.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SaintWyss/rag-corp-sub003/pkg/api"
	"github.com/SaintWyss/rag-corp-sub003/pkg/auth"
	"github.com/SaintWyss/rag-corp-sub003/pkg/chunking"
	"github.com/SaintWyss/rag-corp-sub003/pkg/config"
	"github.com/SaintWyss/rag-corp-sub003/pkg/embedding"
	embcache "github.com/SaintWyss/rag-corp-sub003/pkg/embedding/cache"
	"github.com/SaintWyss/rag-corp-sub003/pkg/ingestion"
	"github.com/SaintWyss/rag-corp-sub003/pkg/llm"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/prompts"
	"github.com/SaintWyss/rag-corp-sub003/pkg/queue"
	"github.com/SaintWyss/rag-corp-sub003/pkg/quota"
	"github.com/SaintWyss/rag-corp-sub003/pkg/rag"
	"github.com/SaintWyss/rag-corp-sub003/pkg/repository"
	"github.com/SaintWyss/rag-corp-sub003/pkg/retry"
	"github.com/SaintWyss/rag-corp-sub003/pkg/storage"
)

func main() {
	logger := observability.NewStandardLogger("server")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, falling back to in-process cache and quota", map[string]interface{}{
				"error": err.Error(),
			})
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var blobs storage.FileStorage
	if cfg.Storage.Bucket != "" {
		s3Storage, err := storage.NewS3Storage(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Fatal("Failed to initialize blob storage", map[string]interface{}{"error": err.Error()})
		}
		blobs = s3Storage
	} else {
		logger.Warn("Blob storage not configured, uploads disabled", nil)
	}

	// The API process only enqueues; job execution belongs to the worker.
	// The registry entry keeps the path resolvable for enqueue validation.
	registry := queue.NewRegistry()
	registry.Register(queue.ProcessDocumentJobPath, func(context.Context, string, string) error { return nil })

	var jobs queue.ProcessingQueue
	if cfg.Queue.QueueURL != "" {
		sqsQueue, err := queue.NewSQSQueue(ctx, cfg.Queue, registry, logger)
		if err != nil {
			logger.Fatal("Failed to initialize queue", map[string]interface{}{"error": err.Error()})
		}
		jobs = sqsQueue
	} else {
		logger.Warn("Processing queue not configured, uploads disabled", nil)
	}

	retryer := retry.New(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, logger, nil)

	embedder := buildEmbedder(cfg, redisClient, logger)
	llmService := buildLLM(cfg)
	promptLoader := prompts.NewLoader(prompts.DefaultFS(), logger)

	docRepo := repository.NewDocumentRepository(db, logger)
	wsRepo := repository.NewWorkspaceRepository(db)
	auditWriter := repository.NewAuditWriter(repository.NewAuditRepository(db), logger)
	policy := auth.NewPolicy(wsRepo)

	var quotaStore quota.Store
	if redisClient != nil {
		quotaStore = quota.NewRedisStore(redisClient)
	} else {
		quotaStore = quota.NewMemoryStore()
	}
	limiter := quota.NewLimiter(quotaStore, quota.Limits{
		MessagesPerHour: cfg.Quota.MessagesPerHour,
		TokensPerHour:   cfg.Quota.TokensPerHour,
		UploadsPerHour:  cfg.Quota.UploadsPerHour,
	})

	extractor := ingestion.NewExtractor()
	chunker := chunking.NewFixedSizeChunker(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)

	uploadUC := ingestion.NewUploadUseCase(policy, docRepo, blobs, jobs, limiter, auditWriter, extractor, logger)
	manageUC := ingestion.NewManageUseCase(policy, docRepo, blobs, jobs, auditWriter, logger)
	directUC := ingestion.NewDirectIngestUseCase(policy, docRepo, chunker, embedder, auditWriter, logger)

	answerer := buildAnswerer(cfg, embedder, docRepo, llmService, promptLoader, retryer, logger)

	server := api.NewServer(api.Options{
		Policy:       policy,
		Workspaces:   wsRepo,
		Documents:    docRepo,
		Upload:       uploadUC,
		Manage:       manageUC,
		DirectIngest: directUC,
		Answerer:     answerer,
		Blobs:        blobs,
		Quota:        limiter,
		Audit:        auditWriter,
		Logger:       logger,
		JWTSecret:    cfg.API.JWTSecret,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.ListenAddress,
		Handler:      server.Router(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", map[string]interface{}{"address": cfg.API.ListenAddress})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

// buildEmbedder assembles the embedding stack: provider, resilience wrapper,
// cache decorator.
func buildEmbedder(cfg *config.Config, redisClient *redis.Client, logger observability.Logger) embedding.Service {
	var provider embedding.Service
	if cfg.Embedding.Fake {
		provider = embedding.NewFakeService(cfg.Embedding.Dimension)
	} else {
		var opts []embedding.OpenAIOption
		if cfg.Embedding.BaseURL != "" {
			opts = append(opts, embedding.WithBaseURL(cfg.Embedding.BaseURL))
		}
		provider = embedding.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.ModelID, cfg.Embedding.Dimension, opts...)
	}

	resilient := embedding.NewResilientService(provider, embedding.ResilientConfig{
		RequestsPerMinute: cfg.Embedding.RPM,
		Retry: retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
	}, logger, nil)

	var vectorCache embcache.Cache
	if redisClient != nil {
		vectorCache = embcache.NewRedisCache(redisClient, cfg.Embedding.CacheTTL)
	} else if lru, err := embcache.NewLRUCache(cfg.Embedding.CacheEntries); err == nil {
		vectorCache = lru
	}
	if vectorCache == nil {
		return resilient
	}
	return embcache.NewCachedService(resilient, vectorCache, logger, nil)
}

func buildLLM(cfg *config.Config) llm.Service {
	if cfg.LLM.Fake {
		return llm.NewFakeService()
	}
	var opts []llm.OpenAIOption
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	return llm.NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.ModelID, opts...)
}

// buildAnswerer assembles the retrieval and answering pipeline from config
func buildAnswerer(
	cfg *config.Config,
	embedder embedding.Service,
	searchRepo rag.SearchRepository,
	llmService llm.Service,
	loader *prompts.Loader,
	retryer *retry.Retryer,
	logger observability.Logger,
) *rag.Answerer {
	rewriter := rag.NewRewriter(llmService, loader, logger, rag.RewriterConfig{
		Enabled:       cfg.RAG.EnableRewriter,
		PromptVersion: cfg.Prompts.Version,
		Language:      cfg.Prompts.Language,
	})
	searcher := rag.NewSearcher(embedder, searchRepo, logger, rag.SearcherConfig{
		TopK:   cfg.RAG.TopK,
		Hybrid: cfg.RAG.EnableHybridSearch,
		RRFK:   cfg.RAG.RRFK,
	})
	filter := rag.NewInjectionFilter(rag.FilterMode(cfg.RAG.InjectionFilterMode), cfg.RAG.InjectionFilterThreshold, logger)

	rerankMode := rag.RerankDisabled
	if cfg.RAG.EnableReranker {
		rerankMode = rag.RerankMode(cfg.RAG.RerankMode)
	}
	reranker := rag.NewReranker(llmService, loader, logger, rag.RerankerConfig{
		Mode:          rerankMode,
		TopK:          cfg.RAG.RerankTopK,
		PromptVersion: cfg.Prompts.Version,
		Language:      cfg.Prompts.Language,
	})
	builder := rag.NewContextBuilder(cfg.RAG.MaxContextChars)

	return rag.NewAnswerer(rewriter, searcher, filter, reranker, builder, llmService, loader, retryer, logger, rag.AnswererConfig{
		PromptVersion: cfg.Prompts.Version,
		Language:      cfg.Prompts.Language,
	})
}
