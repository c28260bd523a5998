// Package bootstrap wires infrastructure to the core and owns resource
// lifetimes.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asafonov/docqa/internal/config"
	"github.com/asafonov/docqa/internal/core/domain"
	"github.com/asafonov/docqa/internal/core/ports"
	"github.com/asafonov/docqa/internal/core/usecase"
	"github.com/asafonov/docqa/internal/infrastructure/cache"
	redisadapter "github.com/asafonov/docqa/internal/infrastructure/cache/redis"
	"github.com/asafonov/docqa/internal/infrastructure/llm/ollama"
	natsqueue "github.com/asafonov/docqa/internal/infrastructure/queue/nats"
	"github.com/asafonov/docqa/internal/infrastructure/rerank"
	"github.com/asafonov/docqa/internal/infrastructure/repository/postgres"
	"github.com/asafonov/docqa/internal/infrastructure/resilience"
	"github.com/asafonov/docqa/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Collector

	Cache *cache.Manager
	Queue *natsqueue.Queue

	Answers  ports.AnswerService
	Clusters ports.ClusterService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	collector := metrics.NewCollector()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	chunkRepo := postgres.NewChunkRepository(db)
	if err := chunkRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure chunk schema: %w", err)
	}
	chatRepo := postgres.NewChatRepository(db)
	if err := chatRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure chat schema: %w", err)
	}

	// The persistent tier is optional; without Redis the cache runs on the
	// two in-memory tiers alone.
	var persistent cache.PersistentBackend
	var redisCache *redisadapter.Cache
	if cfg.RedisAddr != "" {
		redisCache, err = redisadapter.New(ctx, redisadapter.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Warn("redis_unavailable", "error", err)
		} else {
			persistent = redisCache
		}
	}

	cacheManager := cache.NewManager(persistent, cache.Config{
		MemoryCapacity: cfg.CacheMemoryCapacity,
		MemoryTTLCap:   time.Duration(cfg.CacheMemoryTTLCapSeconds) * time.Second,
		SweepInterval:  time.Duration(cfg.CacheSweepSeconds) * time.Second,
	}, collector, logger)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:    cfg.OllamaURL,
		GenModel:   cfg.OllamaGenModel,
		EmbedModel: cfg.OllamaEmbedModel,
		Timeout:    time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
	}, executor)

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	engine := usecase.NewRetrievalEngine(ollamaClient, chunkRepo, rerank.NewLexicalScorer(), cacheManager, logger)
	classifier := usecase.NewClassifier()

	var general ports.GenerationProvider
	if cfg.AgentGeneralKnowledgeOn {
		general = ollamaClient
	}

	agent := usecase.NewAgent(
		classifier,
		engine,
		ollamaClient,
		general,
		chunkRepo,
		chatRepo,
		cacheManager,
		domain.AgentLimits{
			ContextChunkLimit:          cfg.AgentContextChunkLimit,
			FallbackThreshold:          cfg.AgentFallbackThreshold,
			LowConfidenceTopScore:      cfg.AgentLowConfidenceTopScore,
			ExpansionThresholdRatio:    cfg.AgentExpansionRatio,
			FollowUpMaxChars:           cfg.AgentFollowUpMaxChars,
			ClarifyMaxWords:            cfg.AgentClarifyMaxWords,
			StepTimeout:                time.Duration(cfg.AgentStepTimeoutSeconds) * time.Second,
			ResultCacheTTL:             time.Duration(cfg.AgentResultCacheTTLSeconds) * time.Second,
			GeneralKnowledgeConfidence: cfg.AgentGeneralKnowledgeConf,
			Confidence:                 domain.DefaultConfidenceConfig(),
		},
		logger,
	)

	clusterUC := usecase.NewClusterUseCase(chunkRepo, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: collector,

		Cache: cacheManager,
		Queue: queue,

		Answers:  agent,
		Clusters: clusterUC,

		closeFn: func() {
			queue.Close()
			if redisCache != nil {
				_ = redisCache.Close()
			}
			_ = db.Close()
		},
	}, nil
}

// RunBackground starts the cache sweeper and the document-change subscriber.
// Both stop when the context is done.
func (a *App) RunBackground(ctx context.Context) {
	go a.Cache.Run(ctx)
	go func() {
		err := a.Queue.SubscribeDocumentsChanged(ctx, func(ctx context.Context, event natsqueue.DocumentsChanged) {
			a.Logger.Info("documents_changed", "document_count", len(event.DocumentIDs))
			a.Cache.Invalidate(ctx, ports.CacheNamespaceEmbeddings)
			a.Cache.Invalidate(ctx, ports.CacheNamespaceResults)
		})
		if err != nil && ctx.Err() == nil {
			a.Logger.Error("documents_changed_subscription_failed", "error", err)
		}
	}()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
