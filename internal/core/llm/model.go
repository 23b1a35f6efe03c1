package llm

import "context"

// Embedder はテキストをEmbeddingベクトルに変換するインターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	// 空白のみのテキストは ErrInvalidInput で拒否される
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed は複数テキストのEmbeddingを入力順で生成する
	// 空文字列のエントリは黙って除外される（厳密な1:1対応が必要な
	// 呼び出し側は事前にフィルタすること）
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension はベクトル次元数を返す
	Dimension() int

	// MaxBatchSize は1回のAPI呼び出しに含められる最大テキスト数を返す
	MaxBatchSize() int
}

// Generator はテキスト生成プロバイダのインターフェース
type Generator interface {
	// Generate はチャット補完を実行する
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)

	// GenerateStream は生成結果を断片単位でストリーミングする
	// チャネルは生成完了時またはエラー時にクローズされる
	// 呼び出し側は ctx のキャンセルで早期中断できる
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamDelta, error)
}

// GenerateRequest はチャット補完のリクエストを表す
type GenerateRequest struct {
	UserMessage      string
	SystemPrompt     string
	Temperature      float64
	MaxTokens        int
	ContextDocuments []string // RAG用の検索済みコンテキスト
}

// GenerateResponse はチャット補完のレスポンスを表す
// トークン数はプロバイダが報告した実測値であり、推定値ではない
type GenerateResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	FinishReason string
}

// EstimatedCostUSD はトークン数と料金表から推定コストを計算する
func (r GenerateResponse) EstimatedCostUSD() float64 {
	pricing := PricingFor(r.Model)
	return float64(r.InputTokens)*pricing.InputPerToken + float64(r.OutputTokens)*pricing.OutputPerToken
}

// StreamDelta はストリーミング生成の1断片を表す
// Err が非nilの場合はストリームが異常終了したことを示す
type StreamDelta struct {
	Content string
	Err     error
}
