package ingestion

import (
	"context"
	"time"
)

// DocumentInfo はストア上のドキュメントのメタデータ
type DocumentInfo struct {
	Name         string
	LastModified time.Time
}

// DocumentStore は取り込み対象のドキュメント置き場を表す
type DocumentStore interface {
	// EnsureContainer はドキュメント置き場が存在しない場合のみ作成する（冪等）
	EnsureContainer(ctx context.Context) error

	// List はドキュメントの一覧をメタデータ付きで返す
	List(ctx context.Context) ([]DocumentInfo, error)

	// Download はドキュメントの内容を読み込む
	Download(ctx context.Context, name string) ([]byte, error)
}

// ScanStats は1回のスキャンサイクルの結果を表す
type ScanStats struct {
	Scanned       int
	New           int
	ChunksCreated int
}
