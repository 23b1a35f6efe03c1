package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/docs-rag/internal/core/cache"
	"github.com/jinford/docs-rag/internal/core/chunk"
	"github.com/jinford/docs-rag/internal/core/index"
	"github.com/jinford/docs-rag/internal/core/ingestion"
	"github.com/jinford/docs-rag/internal/core/llm"
	"github.com/jinford/docs-rag/internal/core/rag"
	"github.com/jinford/docs-rag/internal/infra/localfs"
	"github.com/jinford/docs-rag/internal/infra/openai"
	"github.com/jinford/docs-rag/internal/infra/postgres"
	"github.com/jinford/docs-rag/internal/platform/config"
)

// ServiceContainer はアプリケーションの依存関係を1箇所で構築して保持する
// グローバルなシングルトンは持たず、必要な場所へ明示的に渡す
type ServiceContainer struct {
	RAGService       *rag.Service
	IngestionService *ingestion.Service
	Worker           *ingestion.Worker
	Index            index.Index
	Cache            *cache.Cache
	DocumentStore    ingestion.DocumentStore
	Generator        llm.Generator

	logger *slog.Logger
	db     *postgres.DB
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  llm.Embedder
	generator llm.Generator
	idx       index.Index
	store     ingestion.DocumentStore
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder llm.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerGenerator はカスタム Generator を注入する
func WithContainerGenerator(generator llm.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// WithContainerIndex はカスタム Index を注入する
// 指定した場合はデータベース接続を確立しない
func WithContainerIndex(idx index.Index) ContainerOption {
	return func(opts *containerOptions) {
		opts.idx = idx
	}
}

// WithContainerDocumentStore は DocumentStore を差し替える
func WithContainerDocumentStore(store ingestion.DocumentStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// NewContainer は設定からコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		embedder = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
	}

	// Generator (OpenAI)
	generator := options.generator
	if generator == nil {
		client, err := openai.NewClient(
			cfg.OpenAI.APIKey,
			openai.WithModel(cfg.OpenAI.LLMModel),
			openai.WithClientLogger(options.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		generator = client
	}

	// Index (PostgreSQL + pgvector)
	var db *postgres.DB
	idx := options.idx
	if idx == nil {
		var err error
		db, err = postgres.New(ctx, postgres.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		idx = postgres.NewIndexRepository(db.Pool, embedder,
			postgres.WithIndexLogger(options.logger),
		)
	}

	// DocumentStore (ローカルディレクトリ)
	store := options.store
	if store == nil {
		store = localfs.NewStore(cfg.Ingestion.DocsDir)
	}

	// Chunker
	chunker, err := chunk.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	// Cache
	responseCache := cache.New(cache.WithDefaultTTL(cfg.RAG.CacheTTL))

	// RAGService
	ragService := rag.NewService(idx, generator, responseCache,
		rag.WithLogger(options.logger),
		rag.WithTopK(cfg.RAG.TopKResults),
		rag.WithSimilarityThreshold(cfg.RAG.SimilarityThreshold),
		rag.WithCacheTTL(cfg.RAG.CacheTTL),
		rag.WithHybridSearch(cfg.RAG.HybridSearch),
	)

	// IngestionService + Worker
	ingestionService := ingestion.NewService(store, idx, chunker,
		ingestion.WithLogger(options.logger),
	)
	worker := ingestion.NewWorker(ingestionService, store,
		ingestion.WithWorkerLogger(options.logger),
		ingestion.WithPollInterval(cfg.Ingestion.PollInterval),
	)

	return &ServiceContainer{
		RAGService:       ragService,
		IngestionService: ingestionService,
		Worker:           worker,
		Index:            idx,
		Cache:            responseCache,
		DocumentStore:    store,
		Generator:        generator,
		logger:           options.logger,
		db:               db,
	}, nil
}

// Pool はデータベース接続プールを返す。DB未接続の場合はnil
func (c *ServiceContainer) Pool() *pgxpool.Pool {
	if c.db == nil {
		return nil
	}
	return c.db.Pool
}

// Close はコンテナが保持するリソースを解放する
func (c *ServiceContainer) Close() {
	if c.db != nil {
		c.db.Close()
	}
}
