package ingestion

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jinford/docs-rag/internal/core/chunk"
	"github.com/jinford/docs-rag/internal/core/index"
)

// Service はドキュメントの取り込みパイプラインを提供する
// フロー: ダウンロード → テキスト抽出 → チャンク分割 → Embedding付きでインデックス登録
type Service struct {
	store   DocumentStore
	idx     index.Index
	chunker *chunk.Chunker
	logger  *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService は新しい Service を作成する
func NewService(store DocumentStore, idx index.Index, chunker *chunk.Chunker, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		idx:     idx,
		chunker: chunker,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DocumentID はドキュメント名から安定したIDを導出する
func DocumentID(name string) string {
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])[:12]
}

// IngestDocument は単一ドキュメントを取り込み、作成したチャンク数を返す
// 空のドキュメントは取り込まれず0を返す
func (s *Service) IngestDocument(ctx context.Context, name string) (int, error) {
	start := time.Now()

	data, err := s.store.Download(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to download document %s: %w", name, err)
	}

	text := ExtractText(name, data)
	if strings.TrimSpace(text) == "" {
		s.logger.WarnContext(ctx, "empty document", slog.String("name", name))
		return 0, nil
	}

	chunks := s.chunker.Split(text, DocumentID(name), name)
	if len(chunks) == 0 {
		return 0, nil
	}

	records := make([]index.Record, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, index.Record{
			ID:         c.ID,
			Content:    c.Content,
			Title:      c.Title,
			Source:     c.Source,
			ChunkIndex: c.ChunkIndex,
		})
	}

	stats, err := s.idx.Upsert(ctx, records, true)
	if err != nil {
		return 0, fmt.Errorf("failed to index document %s: %w", name, err)
	}

	s.logger.InfoContext(ctx, "document ingested",
		slog.String("name", name),
		slog.Int("chunks", stats.Indexed),
		slog.Int("failed", stats.Failed),
		slog.Duration("elapsed", time.Since(start)),
	)
	return stats.Indexed, nil
}

// DeleteDocument はドキュメント由来の全チャンクをインデックスから削除する
// チャンクIDはドキュメントIDから決定的に導出できるため、
// インデックスを検索せずに候補IDを列挙して削除する
func (s *Service) DeleteDocument(ctx context.Context, name string, maxChunks int) (int, error) {
	if maxChunks <= 0 {
		maxChunks = 1000
	}

	docID := DocumentID(name)
	ids := make([]string, 0, maxChunks)
	for i := 0; i < maxChunks; i++ {
		ids = append(ids, chunk.ChunkID(docID, i))
	}

	deleted, err := s.idx.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", name, err)
	}

	s.logger.InfoContext(ctx, "document deleted",
		slog.String("name", name),
		slog.Int("chunks_deleted", deleted),
	)
	return deleted, nil
}

// ExtractText はファイル種別に応じてバイト列からテキストを抽出する
// テキスト系の拡張子はそのままUTF-8として解釈し、JSONは整形して返す
// 未対応の種別はテキストとして扱う
func ExtractText(name string, content []byte) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	switch ext {
	case "json":
		var data any
		if err := json.Unmarshal(content, &data); err == nil {
			if pretty, err := json.MarshalIndent(data, "", "  "); err == nil {
				return string(pretty)
			}
		}
		return string(content)
	case "txt", "md", "csv", "log", "":
		return string(content)
	default:
		return string(content)
	}
}
