package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkerRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative overlap", size: 100, overlap: -1},
		{name: "overlap equals size", size: 100, overlap: 100},
		{name: "overlap exceeds size", size: 100, overlap: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			assert.Error(t, err)
		})
	}
}

func TestChunkerSplitEmptyInput(t *testing.T) {
	chunker, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	assert.Empty(t, chunker.Split("", "doc1", "doc1.txt"))
	assert.Empty(t, chunker.Split("   \n\t  ", "doc1", "doc1.txt"))
}

func TestChunkerSplitShortTextProducesSingleChunk(t *testing.T) {
	chunker, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	chunks := chunker.Split("  short document  ", "doc1", "doc1.txt")
	require.Len(t, chunks, 1)

	assert.Equal(t, "short document", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, len("short document"), chunks[0].CharEnd)
	assert.Equal(t, "doc1.txt - Part 1", chunks[0].Title)
}

func TestChunkerSplitCoversFullText(t *testing.T) {
	chunker, err := NewChunker(1000, 200)
	require.NoError(t, err)

	text := strings.Repeat("a", 2500)
	chunks := chunker.Split(text, "doc1", "doc1.txt")
	require.Len(t, chunks, 4)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		if i > 0 {
			prev := chunks[i-1]
			// カーソルは単調に前進し、前のチャンクとオーバーラップする
			assert.Greater(t, c.CharStart, prev.CharStart)
			assert.Less(t, c.CharStart, prev.CharEnd)
		}
	}

	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, len(text), chunks[len(chunks)-1].CharEnd)
}

func TestChunkerSplitPrefersSentenceBoundary(t *testing.T) {
	chunker, err := NewChunker(1000, 200)
	require.NoError(t, err)

	text := strings.Repeat("x", 900) + ". " + strings.Repeat("y", 600)
	chunks := chunker.Split(text, "doc1", "doc1.txt")
	require.Len(t, chunks, 2)

	// 最初のチャンクは文境界（"."の直後）で切れる
	assert.True(t, strings.HasSuffix(chunks[0].Content, "."))
	assert.Equal(t, 902, chunks[0].CharEnd)
	assert.False(t, strings.Contains(chunks[0].Content, "y"))
}

func TestChunkerSplitMultibyteTextKeepsRunesIntact(t *testing.T) {
	chunker, err := NewChunker(1000, 200)
	require.NoError(t, err)

	// 文境界を含まない日本語テキスト。バイト単位で切ると必ず文字が壊れる
	text := strings.Repeat("あ", 2500)
	chunks := chunker.Split(text, "doc1", "doc1.txt")
	require.Len(t, chunks, 4)

	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content), "chunk %d content must be valid UTF-8", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 1000)
	}

	// サイズ・オーバーラップは文字数で解釈される
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0].Content))
	assert.Equal(t, 800, chunks[1].CharStart)
	assert.Equal(t, 2500, chunks[len(chunks)-1].CharEnd)
}

func TestChunkerSplitMultibyteBoundaryAdjustment(t *testing.T) {
	chunker, err := NewChunker(1000, 200)
	require.NoError(t, err)

	// 区切り文字の前後がマルチバイトでも文境界の位置が正しく換算される
	text := strings.Repeat("あ", 900) + ". " + strings.Repeat("い", 600)
	chunks := chunker.Split(text, "doc1", "doc1.txt")
	require.Len(t, chunks, 2)

	assert.True(t, strings.HasSuffix(chunks[0].Content, "."))
	assert.Equal(t, 902, chunks[0].CharEnd)
	assert.False(t, strings.Contains(chunks[0].Content, "い"))
	assert.True(t, utf8.ValidString(chunks[1].Content))
}

func TestChunkerSplitIsIdempotent(t *testing.T) {
	chunker, err := NewChunker(500, 100)
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40)

	first := chunker.Split(text, "doc1", "doc1.txt")
	second := chunker.Split(text, "doc1", "doc1.txt")
	require.Equal(t, len(first), len(second))

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestChunkIDIsDeterministic(t *testing.T) {
	assert.Equal(t, ChunkID("doc1", 0), ChunkID("doc1", 0))
	assert.NotEqual(t, ChunkID("doc1", 0), ChunkID("doc1", 1))
	assert.NotEqual(t, ChunkID("doc1", 0), ChunkID("doc2", 0))
	assert.Len(t, ChunkID("doc1", 0), 32)
}
