package openai

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/docs-rag/internal/core/llm"
	"github.com/jinford/docs-rag/internal/platform/retry"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDimension はデフォルトのベクトル次元
	// text-embedding-3-small は 1536、text-embedding-3-large は 3072
	DefaultEmbeddingDimension = 1536

	// DefaultEmbeddingBatchSize は1回のAPI呼び出しに含めるテキスト数の上限
	DefaultEmbeddingBatchSize = 100
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
	policy    retry.Policy
}

type embedderOptions struct {
	model     string
	dimension int
	batchSize int
	policy    *retry.Policy
	reqOpts   []option.RequestOption
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingBatchSize はバッチサイズを上書きする
func WithEmbeddingBatchSize(size int) EmbedderOption {
	return func(o *embedderOptions) {
		o.batchSize = size
	}
}

// WithEmbedderRetryPolicy はリトライ方針を上書きする
func WithEmbedderRetryPolicy(p retry.Policy) EmbedderOption {
	return func(o *embedderOptions) {
		o.policy = &p
	}
}

// WithEmbedderRequestOptions は追加のリクエストオプションを渡す
// （テストでのベースURL差し替えなど）
func WithEmbedderRequestOptions(opts ...option.RequestOption) EmbedderOption {
	return func(o *embedderOptions) {
		o.reqOpts = append(o.reqOpts, opts...)
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		batchSize: DefaultEmbeddingBatchSize,
	}
	for _, opt := range opts {
		opt(&options)
	}

	// SDK内蔵のリトライは無効化し、リトライ制御は retry.Policy に一元化する
	// 両方が有効だと試行回数と待機時間が掛け算で膨らむ
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, options.reqOpts...)

	policy := retry.DefaultPolicy(isRetryable)
	if options.policy != nil {
		policy = *options.policy
		if policy.Retryable == nil {
			policy.Retryable = isRetryable
		}
	}

	return &Embedder{
		client:    openai.NewClient(reqOpts...),
		model:     options.model,
		dimension: options.dimension,
		batchSize: options.batchSize,
		policy:    policy,
	}
}

// Embed は単一テキストの Embedding を生成する
// 空白のみのテキストは ErrInvalidInput で拒否する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", llm.ErrInvalidInput)
	}

	vectors, err := e.embedGroup(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	return vectors[0], nil
}

// BatchEmbed は複数テキストの Embedding を入力順で生成する
// バッチサイズ単位でAPI呼び出しを分割し、空文字列のエントリは除外する
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		group := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			if strings.TrimSpace(t) != "" {
				group = append(group, t)
			}
		}
		if len(group) == 0 {
			continue
		}

		vectors, err := e.embedGroup(ctx, group)
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}

	return all, nil
}

// embedGroup は1バッチ分のEmbeddingをリトライ付きで生成する
// プロバイダが入力順と異なる順序で返す場合に備えて
// レスポンスをインデックスで並べ直す
func (e *Embedder) embedGroup(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}

	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}

	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := retry.Do(ctx, e.policy, func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, classifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", wrapExhausted(err))
	}

	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, 0, len(data))
	for _, d := range data {
		vector := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vector[i] = float32(v)
		}
		embeddings = append(embeddings, vector)
	}

	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return e.batchSize
}

// CosineSimilarity は2つのベクトルのコサイン類似度を計算する
// 次元が一致しない場合やゼロベクトルを含む場合は 0 を返す
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// インターフェース実装の確認
var _ llm.Embedder = (*Embedder)(nil)
