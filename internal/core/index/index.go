package index

import (
	"context"
	"errors"
	"time"

	"github.com/samber/mo"
)

var (
	// ErrIndexUnavailable は接続・認証などの理由でインデックス操作が
	// 失敗した場合のエラー
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrInvalidFilter はフィルタ式が不正な場合のエラー
	// ネットワーク呼び出しの前に拒否される
	ErrInvalidFilter = errors.New("invalid filter expression")

	// ErrDimensionMismatch はベクトル次元がインデックス設定と一致しない
	// 場合のエラー。永続化の前に拒否される
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Record はインデックスに永続化するチャンクレコードを表す
type Record struct {
	ID         string
	Content    string
	Title      string
	Source     string
	ChunkIndex int
	CreatedAt  time.Time
	Embedding  []float32 // Upsert(generateEmbeddings=false) の場合は必須
}

// SearchResult は検索結果の1件を表す。永続化されず、クエリごとに再計算される
// Score は上限のない関連度スコアで、大きいほど関連が強い
// ハイブリッド検索と純ベクトル検索ではスケールが異なるため、
// 呼び出し側は [0,1] への正規化を仮定してはならない
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Title    string
	Source   string
	Metadata map[string]any
}

// UpsertStats はUpsertの結果を表す。バッチ内の部分的な失敗は
// 全体のエラーではなく件数として報告される
type UpsertStats struct {
	Indexed int
	Failed  int
}

// SearchOptions は検索のオプションパラメータを表す
type SearchOptions struct {
	TopK   int
	Filter mo.Option[string] // "source=<値>" 形式のメタデータ述語
	Hybrid bool              // キーワード関連度をブレンドするかどうか
}

// Index はチャンク＋ベクトル＋メタデータの永続的な検索コレクションを表す
type Index interface {
	// EnsureSchema はスキーマが存在しない場合のみ作成する（冪等）
	EnsureSchema(ctx context.Context) error

	// Upsert はレコードを保存する。generateEmbeddings が真の場合は
	// 各レコードのContentをバッチEmbeddingしてから永続化する
	Upsert(ctx context.Context, records []Record, generateEmbeddings bool) (UpsertStats, error)

	// Search はクエリをEmbeddingして近傍検索を実行し、関連度降順で返す
	Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error)

	// Delete は指定IDのレコードを削除し、実際に削除された件数を返す
	Delete(ctx context.Context, ids []string) (int, error)
}
