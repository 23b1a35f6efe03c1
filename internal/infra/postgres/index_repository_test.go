package postgres

import (
	"context"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/docs-rag/internal/core/index"
)

// stubEmbedder はテスト用のEmbedder実装
type stubEmbedder struct {
	dimension int
	vectors   [][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dimension), nil
}

func (s *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.vectors != nil {
		return s.vectors, nil
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, s.dimension)
	}
	return vectors, nil
}

func (s *stubEmbedder) Dimension() int    { return s.dimension }
func (s *stubEmbedder) MaxBatchSize() int { return 100 }

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    filterPredicate
		wantErr bool
	}{
		{
			name: "sourceフィルタ",
			expr: "source=manual.pdf",
			want: filterPredicate{column: "source", value: "manual.pdf"},
		},
		{
			name: "前後の空白は除去される",
			expr: " source = guide.md ",
			want: filterPredicate{column: "source", value: "guide.md"},
		},
		{
			name:    "区切りなし",
			expr:    "source",
			wantErr: true,
		},
		{
			name:    "未対応フィールド",
			expr:    "title=foo",
			wantErr: true,
		},
		{
			name:    "空の値",
			expr:    "source=",
			wantErr: true,
		},
		{
			name:    "SQL断片の注入",
			expr:    "source; DROP TABLE chunks=x",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilter(tt.expr)
			if tt.wantErr {
				assert.ErrorIs(t, err, index.ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchRejectsInvalidFilterBeforeQuery(t *testing.T) {
	// プールに触れる前にフィルタ検証で弾かれること
	repo := NewIndexRepository(nil, &stubEmbedder{dimension: 4})

	_, err := repo.Search(context.Background(), "question", index.SearchOptions{
		TopK:   5,
		Filter: mo.Some("created_at>now"),
	})
	assert.ErrorIs(t, err, index.ErrInvalidFilter)
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	// 永続化の前に次元検証で弾かれること
	repo := NewIndexRepository(nil, &stubEmbedder{dimension: 4})

	_, err := repo.Upsert(context.Background(), []index.Record{
		{ID: "a", Content: "some text", Embedding: []float32{1, 2}},
	}, false)
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)
}

func TestUpsertEmptyRecords(t *testing.T) {
	repo := NewIndexRepository(nil, &stubEmbedder{dimension: 4})

	stats, err := repo.Upsert(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Equal(t, index.UpsertStats{}, stats)
}

func TestUpsertCountsInvalidRecordsAsFailed(t *testing.T) {
	repo := NewIndexRepository(nil, &stubEmbedder{dimension: 4})

	stats, err := repo.Upsert(context.Background(), []index.Record{
		{ID: "", Content: "orphan"},
		{ID: "b", Content: "   "},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, index.UpsertStats{Indexed: 0, Failed: 2}, stats)
}

func TestUpsertEmbeddingCountMismatch(t *testing.T) {
	// Embedderが件数の合わないレスポンスを返した場合は全体のエラーになる
	repo := NewIndexRepository(nil, &stubEmbedder{
		dimension: 4,
		vectors:   [][]float32{make([]float32, 4)},
	})

	_, err := repo.Upsert(context.Background(), []index.Record{
		{ID: "a", Content: "first"},
		{ID: "b", Content: "second"},
	}, true)
	assert.ErrorContains(t, err, "mismatch")
}

func TestDeleteEmptyIDs(t *testing.T) {
	repo := NewIndexRepository(nil, &stubEmbedder{dimension: 4})

	deleted, err := repo.Delete(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
