package rag

import (
	"github.com/samber/mo"

	"github.com/jinford/docs-rag/internal/core/llm"
)

// QueryParams は質問応答のパラメータを表す
type QueryParams struct {
	Question string
	TopK     mo.Option[int]    // 省略時は設定値を使用
	Filter   mo.Option[string] // 検索対象を絞るメタデータ述語（例: "source=manual.pdf"）
	NoCache  bool              // キャッシュを使用しない
}

// Source は回答の根拠となったソース引用を表す
type Source struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

// Metadata はレスポンスに付随する統計情報を表す
type Metadata struct {
	RetrievedDocuments int     `json:"retrievedDocuments"`
	InputTokens        int     `json:"inputTokens"`
	OutputTokens       int     `json:"outputTokens"`
	TotalTokens        int     `json:"totalTokens"`
	EstimatedCostUSD   float64 `json:"estimatedCostUSD"`
	FromCache          bool    `json:"fromCache"`
	LatencyMS          float64 `json:"latencyMS"`
}

// Response はRAGパイプラインの出力を表す
// キャッシュヒット時もミス時も同じ型で返され、FromCache フラグで区別する
type Response struct {
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Metadata Metadata `json:"metadata"`
}

// StreamResult はストリーミング質問応答の結果を表す
// Sources は検索完了時点で確定し、Deltas から回答断片が生成順に届く
type StreamResult struct {
	Sources []Source
	Deltas  <-chan llm.StreamDelta
}
