// Command worker consumes document processing jobs from the queue and runs
// the extract, chunk, embed, persist pipeline.
package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SaintWyss/rag-corp-sub003/pkg/chunking"
	"github.com/SaintWyss/rag-corp-sub003/pkg/config"
	"github.com/SaintWyss/rag-corp-sub003/pkg/embedding"
	embcache "github.com/SaintWyss/rag-corp-sub003/pkg/embedding/cache"
	"github.com/SaintWyss/rag-corp-sub003/pkg/ingestion"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/queue"
	"github.com/SaintWyss/rag-corp-sub003/pkg/repository"
	"github.com/SaintWyss/rag-corp-sub003/pkg/retry"
	"github.com/SaintWyss/rag-corp-sub003/pkg/storage"
)

const (
	receiveBatchSize  = 5
	receiveWaitSecs   = 10
	idempotencyPrefix = "jobs:seen:"
)

func main() {
	logger := observability.NewStandardLogger("worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", map[string]interface{}{"error": err.Error()})
	}
	if cfg.Queue.QueueURL == "" {
		logger.Fatal("Worker requires a configured queue", nil)
	}
	if cfg.Storage.Bucket == "" {
		logger.Fatal("Worker requires configured blob storage", nil)
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
			logger.Warn("Redis unreachable, idempotency guard disabled", map[string]interface{}{
				"error": err.Error(),
			})
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	blobs, err := storage.NewS3Storage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize blob storage", map[string]interface{}{"error": err.Error()})
	}

	docRepo := repository.NewDocumentRepository(db, logger)
	extractor := ingestion.NewExtractor()
	chunker := chunking.NewFixedSizeChunker(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	embedder := buildEmbedder(cfg, redisClient, logger)

	processor := ingestion.NewProcessor(docRepo, blobs, extractor, chunker, embedder, logger, nil)

	registry := queue.NewRegistry()
	registry.Register(queue.ProcessDocumentJobPath, func(ctx context.Context, documentID, workspaceID string) error {
		status, err := processor.Process(ctx, documentID, workspaceID)
		if err != nil {
			return err
		}
		logger.Info("Processed document", map[string]interface{}{
			"document_id":  documentID,
			"workspace_id": workspaceID,
			"status":       string(status),
		})
		return nil
	})

	sqsQueue, err := queue.NewSQSQueue(ctx, cfg.Queue, registry, logger)
	if err != nil {
		logger.Fatal("Failed to initialize queue", map[string]interface{}{"error": err.Error()})
	}

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	logger.Info("Worker starting", map[string]interface{}{"concurrency": concurrency})

	var ledger jobLedger
	if redisClient != nil {
		ledger = &redisLedger{client: redisClient, ttl: cfg.Worker.IdempotencyTTL, logger: logger}
	}
	c := &consumer{queue: sqsQueue, ledger: ledger, logger: logger}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.poll(ctx)
		}()
	}
	wg.Wait()
	logger.Info("Worker stopped", nil)
}

// jobQueue is the slice of the SQS queue the consumer loop needs
type jobQueue interface {
	Receive(ctx context.Context, maxMessages, waitSeconds int32) ([]queue.Job, []string, error)
	Dispatch(ctx context.Context, job queue.Job) error
	DeleteMessage(ctx context.Context, receiptHandle string) error
}

// jobLedger remembers recently completed job ids so duplicate deliveries can
// be acknowledged without re-running the pipeline
type jobLedger interface {
	// Seen reports whether the job id already completed successfully
	Seen(ctx context.Context, jobID string) bool
	// MarkDone records a successfully completed job id
	MarkDone(ctx context.Context, jobID string)
}

// redisLedger implements jobLedger on Redis with a short TTL. Errors degrade
// to "not seen": processing twice is safe, dropping a job is not.
type redisLedger struct {
	client *redis.Client
	ttl    time.Duration
	logger observability.Logger
}

func (l *redisLedger) Seen(ctx context.Context, jobID string) bool {
	n, err := l.client.Exists(ctx, idempotencyPrefix+jobID).Result()
	if err != nil {
		l.logger.Warn("Idempotency check failed, processing anyway", map[string]interface{}{"error": err.Error()})
		return false
	}
	return n > 0
}

func (l *redisLedger) MarkDone(ctx context.Context, jobID string) {
	if err := l.client.Set(ctx, idempotencyPrefix+jobID, "1", l.ttl).Err(); err != nil {
		l.logger.Warn("Failed to record completed job", map[string]interface{}{"error": err.Error()})
	}
}

// consumer drains the queue until its context is cancelled
type consumer struct {
	queue  jobQueue
	ledger jobLedger
	logger observability.Logger
}

func (c *consumer) poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		jobs, receipts, err := c.queue.Receive(ctx, receiveBatchSize, receiveWaitSecs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Failed to receive jobs", map[string]interface{}{"error": err.Error()})
			continue
		}
		for i, job := range jobs {
			c.handle(ctx, job, receipts[i])
		}
	}
}

// handle processes one delivery. A job is marked in the ledger only after a
// successful dispatch; failed dispatches leave the message (and the ledger)
// untouched so redelivery retries the work.
func (c *consumer) handle(ctx context.Context, job queue.Job, receipt string) {
	if job.Path == "" {
		// Poison message; drop it so it does not cycle forever
		if err := c.queue.DeleteMessage(ctx, receipt); err != nil {
			c.logger.Warn("Failed to delete malformed message", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	if c.ledger != nil && job.JobID != "" && c.ledger.Seen(ctx, job.JobID) {
		if err := c.queue.DeleteMessage(ctx, receipt); err != nil {
			c.logger.Warn("Failed to delete duplicate message", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	if err := c.queue.Dispatch(ctx, job); err != nil {
		// Leave the message for redelivery; the processor is idempotent
		// under at-least-once delivery
		c.logger.Error("Job failed", map[string]interface{}{
			"job_id":      job.JobID,
			"document_id": job.DocumentID,
			"error":       err.Error(),
		})
		return
	}

	if c.ledger != nil && job.JobID != "" {
		c.ledger.MarkDone(ctx, job.JobID)
	}
	if err := c.queue.DeleteMessage(ctx, receipt); err != nil {
		c.logger.Warn("Failed to acknowledge job", map[string]interface{}{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}
}

// buildEmbedder mirrors the API server's embedding stack so worker-computed
// vectors come from the same provider and cache
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
		BreakerName: "embedding-worker",
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
