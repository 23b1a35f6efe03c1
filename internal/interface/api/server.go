package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/docs-rag/internal/core/cache"
	"github.com/jinford/docs-rag/internal/core/index"
	"github.com/jinford/docs-rag/internal/core/ingestion"
	"github.com/jinford/docs-rag/internal/core/llm"
	"github.com/jinford/docs-rag/internal/core/rag"
)

// Version はAPIのバージョン文字列
const Version = "1.0.0"

// ServerConfig はAPIサーバーの構成
type ServerConfig struct {
	Logger           *slog.Logger
	RAGService       *rag.Service       // 必須
	IngestionService *ingestion.Service // 必須
	DocumentStore    ingestion.DocumentStore
	Index            index.Index
	Cache            *cache.Cache
	Generator        llm.Generator // 省略時は /api/v1/chat を公開しない
	Pool             *pgxpool.Pool // 省略時は readiness のDBチェックをスキップ

	Environment     string // development / staging / production
	ModelName       string
	EmbeddingModel  string
	ChunkSize       int
	TopK            int
	RateLimitCount  int
	RateLimitWindow time.Duration
}

// Server はRAGパイプラインを公開するJSON APIサーバー
type Server struct {
	handler http.Handler
}

// NewServer はルーティングとミドルウェアを構成したサーバーを返す
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.RAGService == nil {
		return nil, errors.New("RAG service is required")
	}
	if cfg.IngestionService == nil {
		return nil, errors.New("ingestion service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	production := cfg.Environment == "production"

	qh := &queryHandler{
		service:    cfg.RAGService,
		logger:     logger,
		production: production,
	}
	ih := &ingestHandler{
		service:    cfg.IngestionService,
		store:      cfg.DocumentStore,
		idx:        cfg.Index,
		logger:     logger,
		production: production,
	}
	sh := &statsHandler{
		cache:          cfg.Cache,
		modelName:      cfg.ModelName,
		embeddingModel: cfg.EmbeddingModel,
		chunkSize:      cfg.ChunkSize,
		topK:           cfg.TopK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", qh.query)
	mux.HandleFunc("POST /api/v1/query/stream", qh.stream)
	if cfg.Generator != nil {
		ch := &chatHandler{
			generator:  cfg.Generator,
			logger:     logger,
			production: production,
		}
		mux.HandleFunc("POST /api/v1/chat", ch.chat)
	}
	mux.HandleFunc("PUT /api/v1/documents/{name}", ih.ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{name}", ih.deleteDocument)
	mux.HandleFunc("DELETE /api/v1/records", ih.deleteRecords)
	mux.HandleFunc("GET /api/v1/stats", sh.stats)

	rl := newRateLimiter(cfg.RateLimitCount, cfg.RateLimitWindow)

	// ミドルウェアスタック（外側から）:
	// Recovery → RequestID → Logging → RateLimit → Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// ヘルスプローブはレート制限やログの対象にしない
	hh := &healthHandler{
		version:     Version,
		environment: cfg.Environment,
		pool:        cfg.Pool,
	}
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", hh.live)
	topMux.HandleFunc("GET /health/ready", hh.ready)
	topMux.Handle("/", handler)

	return &Server{handler: topMux}, nil
}

// Handler はHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.handler
}

// statsHandler は運用向けの統計エンドポイント
type statsHandler struct {
	cache          *cache.Cache
	modelName      string
	embeddingModel string
	chunkSize      int
	topK           int
}

func (h *statsHandler) stats(w http.ResponseWriter, r *http.Request) {
	cacheEntries := 0
	if h.cache != nil {
		cacheEntries = h.cache.Len()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"config": map[string]any{
			"model":           h.modelName,
			"embedding_model": h.embeddingModel,
			"chunk_size":      h.chunkSize,
			"top_k":           h.topK,
		},
		"cache": map[string]any{
			"entries": cacheEntries,
		},
	})
}
