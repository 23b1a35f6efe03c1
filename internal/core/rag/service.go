package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/docs-rag/internal/core/cache"
	"github.com/jinford/docs-rag/internal/core/index"
	"github.com/jinford/docs-rag/internal/core/llm"
)

const (
	// DefaultTopK はデフォルトの検索件数
	DefaultTopK = 5

	// DefaultSimilarityThreshold はデフォルトの類似度しきい値
	// これを下回る検索結果はコンテキストから除外される
	DefaultSimilarityThreshold = 0.75

	// DefaultTemperature はRAG回答生成のデフォルト温度
	DefaultTemperature = 0.1

	// DefaultMaxTokens は回答のデフォルト最大トークン数
	DefaultMaxTokens = 2000

	// DefaultCacheTTL はレスポンスキャッシュのTTL
	DefaultCacheTTL = 3600 * time.Second
)

// Service はRAGパイプラインのオーケストレーションを提供する
// クエリ時のフロー: キャッシュ確認 → 検索 → しきい値フィルタ → コンテキスト構築
// → 生成 → キャッシュ保存
type Service struct {
	idx       index.Index
	generator llm.Generator
	cache     *cache.Cache

	topK        int
	threshold   float64
	temperature float64
	maxTokens   int
	cacheTTL    time.Duration
	hybrid      bool
	logger      *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithTopK はデフォルトの検索件数を上書きする
func WithTopK(topK int) ServiceOption {
	return func(s *Service) { s.topK = topK }
}

// WithSimilarityThreshold は類似度しきい値を上書きする
// しきい値はハイブリッド・純ベクトルの検索モードに関わらず
// そのまま適用される（スコアのスケール差は設定側で吸収する）
func WithSimilarityThreshold(threshold float64) ServiceOption {
	return func(s *Service) { s.threshold = threshold }
}

// WithCacheTTL はキャッシュTTLを上書きする
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithTemperature は生成温度を上書きする
func WithTemperature(temperature float64) ServiceOption {
	return func(s *Service) { s.temperature = temperature }
}

// WithHybridSearch はハイブリッド検索の有効/無効を切り替える
func WithHybridSearch(enabled bool) ServiceOption {
	return func(s *Service) { s.hybrid = enabled }
}

// NewService は新しいServiceを作成する
func NewService(idx index.Index, generator llm.Generator, responseCache *cache.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		idx:         idx,
		generator:   generator,
		cache:       responseCache,
		topK:        DefaultTopK,
		threshold:   DefaultSimilarityThreshold,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		cacheTTL:    DefaultCacheTTL,
		hybrid:      true,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Query は質問に対してRAGベースで回答を生成する
// キャッシュヒット時は FromCache=true を立てたレスポンスを即座に返す
// キャッシュ確認以降のいずれかの段階で失敗した場合、クエリ全体が失敗する
// （部分的なレスポンスは返さない）
func (s *Service) Query(ctx context.Context, params QueryParams) (*Response, error) {
	if params.Question == "" {
		return nil, fmt.Errorf("%w: question is required", llm.ErrInvalidInput)
	}

	start := time.Now()
	key := cache.Key(params.Question)

	// 1. キャッシュ確認
	if !params.NoCache {
		if cached, found := s.cache.Get(key); found {
			if resp, ok := cached.(*Response); ok {
				s.logger.Info("cache hit", "key", key)
				return fromCache(resp, time.Since(start)), nil
			}
		}
	}

	// 2. 検索
	topK := params.TopK.OrElse(s.topK)
	results, err := s.idx.Search(ctx, params.Question, index.SearchOptions{
		TopK:   topK,
		Filter: params.Filter,
		Hybrid: s.hybrid,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	// 3. しきい値フィルタ（順序は保持）
	relevant := filterByScore(results, s.threshold)
	if len(relevant) == 0 {
		// 根拠となるコンテキストが無くても失敗にはしない
		// 生成側のプロンプトが情報不足を回答させる
		s.logger.Warn("no relevant context found",
			"question", truncate(params.Question, 100),
			"retrieved", len(results),
			"threshold", s.threshold,
		)
	}

	// 4. コンテキスト構築
	docs, sources := buildContext(relevant)

	// 5. 生成
	s.logger.Info("generating answer", "contextDocs", len(docs))
	genResp, err := s.generator.Generate(ctx, llm.GenerateRequest{
		UserMessage:      params.Question,
		SystemPrompt:     SystemPrompt,
		Temperature:      s.temperature,
		MaxTokens:        s.maxTokens,
		ContextDocuments: docs,
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	resp := &Response{
		Answer:  genResp.Content,
		Sources: sources,
		Metadata: Metadata{
			RetrievedDocuments: len(relevant),
			InputTokens:        genResp.InputTokens,
			OutputTokens:       genResp.OutputTokens,
			TotalTokens:        genResp.TotalTokens,
			EstimatedCostUSD:   genResp.EstimatedCostUSD(),
			FromCache:          false,
			LatencyMS:          float64(time.Since(start).Microseconds()) / 1000,
		},
	}

	// 6. キャッシュ保存（非キャッシュ経路のみ）
	if !params.NoCache {
		s.cache.Set(key, resp, s.cacheTTL)
	}

	s.logger.Info("query completed",
		"latencyMS", resp.Metadata.LatencyMS,
		"tokens", resp.Metadata.TotalTokens,
		"sources", len(sources),
	)

	return resp, nil
}

// QueryStream は検索とフィルタを同期的に実行した後、
// 回答をストリーミングで返す。Sources は検索完了時点で確定する
// ストリーミング経路ではキャッシュを使用しない
func (s *Service) QueryStream(ctx context.Context, params QueryParams) (*StreamResult, error) {
	if params.Question == "" {
		return nil, fmt.Errorf("%w: question is required", llm.ErrInvalidInput)
	}

	topK := params.TopK.OrElse(s.topK)
	results, err := s.idx.Search(ctx, params.Question, index.SearchOptions{
		TopK:   topK,
		Filter: params.Filter,
		Hybrid: s.hybrid,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	relevant := filterByScore(results, s.threshold)
	docs, sources := buildContext(relevant)

	deltas, err := s.generator.GenerateStream(ctx, llm.GenerateRequest{
		UserMessage:      params.Question,
		SystemPrompt:     SystemPrompt,
		Temperature:      s.temperature,
		MaxTokens:        s.maxTokens,
		ContextDocuments: docs,
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return &StreamResult{
		Sources: sources,
		Deltas:  deltas,
	}, nil
}

// filterByScore はしきい値未満の結果を除外する。元の順序を保持する
func filterByScore(results []*index.SearchResult, threshold float64) []*index.SearchResult {
	filtered := make([]*index.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// fromCache はキャッシュされたレスポンスからキャッシュヒット用の
// レスポンスを複製する。保存済みエントリは変更しない
func fromCache(cached *Response, elapsed time.Duration) *Response {
	resp := *cached
	resp.Metadata.FromCache = true
	resp.Metadata.LatencyMS = float64(elapsed.Microseconds()) / 1000
	return &resp
}

// truncate は文字列を最大長に切り詰める（ログ用）
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
