package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/docs-rag/internal/core/index"
	"github.com/jinford/docs-rag/internal/core/llm"
)

const (
	// hybridCandidateFactor はハイブリッド検索で再ランキングする
	// ベクトル近傍候補の倍率
	hybridCandidateFactor = 4

	// defaultSearchTopK は検索件数未指定時のデフォルト
	defaultSearchTopK = 5
)

// IndexRepository は core/index.Index を実装する PostgreSQL + pgvector リポジトリ
// チャンクはHNSWインデックス付きの単一テーブルに永続化される
type IndexRepository struct {
	pool      *pgxpool.Pool
	embedder  llm.Embedder
	tableName string
	logger    *slog.Logger
}

// IndexRepositoryOption は IndexRepository のオプション設定
type IndexRepositoryOption func(*IndexRepository)

// WithIndexLogger はロガーを差し替える
func WithIndexLogger(logger *slog.Logger) IndexRepositoryOption {
	return func(r *IndexRepository) { r.logger = logger }
}

// WithTableName はテーブル名を上書きする
func WithTableName(name string) IndexRepositoryOption {
	return func(r *IndexRepository) { r.tableName = name }
}

// NewIndexRepository は新しい IndexRepository を返す
func NewIndexRepository(pool *pgxpool.Pool, embedder llm.Embedder, opts ...IndexRepositoryOption) *IndexRepository {
	r := &IndexRepository{
		pool:      pool,
		embedder:  embedder,
		tableName: "chunks",
		logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ index.Index = (*IndexRepository)(nil)

// EnsureSchema は拡張・テーブル・インデックスが存在しない場合のみ作成する（冪等）
// ベクトル次元はEmbedderの設定から決まる
func (r *IndexRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          text PRIMARY KEY,
			content     text NOT NULL,
			embedding   vector(%d) NOT NULL,
			title       text NOT NULL DEFAULT '',
			source      text NOT NULL DEFAULT '',
			chunk_index integer NOT NULL DEFAULT 0,
			created_at  timestamptz NOT NULL DEFAULT now(),
			content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
		)`, r.tableName, r.embedder.Dimension()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, r.tableName, r.tableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_content_tsv_idx ON %s USING gin (content_tsv)`, r.tableName, r.tableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, r.tableName, r.tableName),
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return wrapIndexError("failed to ensure schema", err)
		}
	}

	r.logger.InfoContext(ctx, "index schema ensured",
		slog.String("table", r.tableName),
		slog.Int("dimension", r.embedder.Dimension()),
	)
	return nil
}

// Upsert はレコードを保存する。generateEmbeddings が真の場合は各レコードの
// ContentをバッチEmbeddingしてから永続化する
// レコード単位の失敗は全体のエラーではなく件数として報告される
func (r *IndexRepository) Upsert(ctx context.Context, records []index.Record, generateEmbeddings bool) (index.UpsertStats, error) {
	if len(records) == 0 {
		return index.UpsertStats{}, nil
	}

	var stats index.UpsertStats
	valid := make([]index.Record, 0, len(records))

	for _, rec := range records {
		if rec.ID == "" || strings.TrimSpace(rec.Content) == "" {
			stats.Failed++
			continue
		}
		valid = append(valid, rec)
	}

	if generateEmbeddings {
		contents := make([]string, len(valid))
		for i, rec := range valid {
			contents[i] = rec.Content
		}

		embeddings, err := r.embedder.BatchEmbed(ctx, contents)
		if err != nil {
			return stats, fmt.Errorf("failed to embed records: %w", err)
		}
		if len(embeddings) != len(valid) {
			return stats, fmt.Errorf("embedding count mismatch: got %d for %d records", len(embeddings), len(valid))
		}

		for i := range valid {
			valid[i].Embedding = embeddings[i]
		}
	}

	// 永続化の前に全レコードの次元を検証する
	for _, rec := range valid {
		if len(rec.Embedding) != r.embedder.Dimension() {
			return stats, fmt.Errorf("%w: record %s has dimension %d, index expects %d",
				index.ErrDimensionMismatch, rec.ID, len(rec.Embedding), r.embedder.Dimension())
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, content, embedding, title, source, chunk_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content     = EXCLUDED.content,
			embedding   = EXCLUDED.embedding,
			title       = EXCLUDED.title,
			source      = EXCLUDED.source,
			chunk_index = EXCLUDED.chunk_index`, r.tableName)

	for _, rec := range valid {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err := r.pool.Exec(ctx, query,
			rec.ID,
			rec.Content,
			pgvector.NewVector(rec.Embedding),
			rec.Title,
			rec.Source,
			rec.ChunkIndex,
			createdAt,
		)
		if err != nil {
			if isConnectionError(err) {
				return stats, wrapIndexError("failed to upsert records", err)
			}
			r.logger.WarnContext(ctx, "failed to upsert record",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
			stats.Failed++
			continue
		}
		stats.Indexed++
	}

	r.logger.InfoContext(ctx, "records indexed",
		slog.Int("total", len(records)),
		slog.Int("indexed", stats.Indexed),
		slog.Int("failed", stats.Failed),
	)
	return stats, nil
}

// Search はクエリをEmbeddingして近傍検索を実行し、関連度降順で返す
// ハイブリッド検索ではベクトル近傍候補を広めに取得し、
// コサイン類似度にキーワード関連度（ts_rank）を加算して再ランキングする
func (r *IndexRepository) Search(ctx context.Context, query string, opts index.SearchOptions) ([]*index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", llm.ErrInvalidInput)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultSearchTopK
	}

	var predicate *filterPredicate
	if expr, ok := opts.Filter.Get(); ok {
		p, err := parseFilter(expr)
		if err != nil {
			return nil, err
		}
		predicate = &p
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var (
		sql  string
		args []any
	)

	where := ""
	args = append(args, pgvector.NewVector(queryVector))
	if predicate != nil {
		where = "WHERE source = $2"
		args = append(args, predicate.value)
	}

	if opts.Hybrid {
		args = append(args, query, topK*hybridCandidateFactor, topK)
		sql = fmt.Sprintf(`WITH candidates AS (
			SELECT id, content, title, source, chunk_index, content_tsv,
			       1 - (embedding <=> $1) AS similarity
			FROM %s
			%s
			ORDER BY embedding <=> $1
			LIMIT $%d
		)
		SELECT id, content, title, source, chunk_index,
		       similarity + COALESCE(ts_rank(content_tsv, websearch_to_tsquery('english', $%d)), 0) AS score
		FROM candidates
		ORDER BY score DESC
		LIMIT $%d`, r.tableName, where, len(args)-1, len(args)-2, len(args))
	} else {
		args = append(args, topK)
		sql = fmt.Sprintf(`SELECT id, content, title, source, chunk_index,
		       1 - (embedding <=> $1) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, r.tableName, where, len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapIndexError("failed to search index", err)
	}
	defer rows.Close()

	results := make([]*index.SearchResult, 0, topK)
	for rows.Next() {
		var (
			res        index.SearchResult
			chunkIndex int
		)
		if err := rows.Scan(&res.ID, &res.Content, &res.Title, &res.Source, &chunkIndex, &res.Score); err != nil {
			return nil, wrapIndexError("failed to scan search result", err)
		}
		res.Metadata = map[string]any{"chunk_index": chunkIndex}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapIndexError("failed to read search results", err)
	}

	topScore := 0.0
	if len(results) > 0 {
		topScore = results[0].Score
	}
	r.logger.InfoContext(ctx, "search completed",
		slog.Int("query_length", len(query)),
		slog.Int("results_count", len(results)),
		slog.Float64("top_score", topScore),
	)

	return results, nil
}

// Delete は指定IDのレコードを削除し、実際に削除された件数を返す
// 存在しないIDはエラーにならない
func (r *IndexRepository) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, r.tableName),
		ids,
	)
	if err != nil {
		return 0, wrapIndexError("failed to delete records", err)
	}

	deleted := int(tag.RowsAffected())
	r.logger.InfoContext(ctx, "records deleted", slog.Int("count", deleted))
	return deleted, nil
}

// wrapIndexError はデータベースエラーを ErrIndexUnavailable でラップする
func wrapIndexError(msg string, err error) error {
	return fmt.Errorf("%s: %w: %v", msg, index.ErrIndexUnavailable, err)
}

// isConnectionError は接続レベルの失敗かどうかを判定する
// 接続断はレコード単位の失敗ではなく全体のエラーとして扱う
func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, pgx.ErrTxClosed) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: Connection Exception / Class 57: Operator Intervention
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57")
	}

	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
