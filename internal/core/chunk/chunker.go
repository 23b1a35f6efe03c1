package chunk

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize はデフォルトのチャンクサイズ（文字数）
	DefaultChunkSize = 1000

	// DefaultChunkOverlap はデフォルトのオーバーラップ（文字数）
	DefaultChunkOverlap = 200

	// boundaryLookahead は文境界を探索する際に末尾から先読みする文字数
	boundaryLookahead = 100
)

// sentenceSeparators は文境界とみなす区切り文字列（優先順）
var sentenceSeparators = []string{". ", ".\n", "! ", "? ", "\n\n"}

// Chunk は元ドキュメントの連続した断片とそのメタデータを表す
type Chunk struct {
	ID         string // ドキュメントIDとチャンク位置から決定されるハッシュ
	Content    string
	Title      string
	Source     string
	DocumentID string
	ChunkIndex int // ドキュメント内の0始まりの位置
	CharStart  int // 整形後テキストに対する文字数オフセット（バイトではない）
	CharEnd    int
}

// Chunker はテキストをオーバーラップ付きのチャンクに分割する
type Chunker struct {
	size    int
	overlap int
}

// NewChunker は新しいChunkerを作成する
// overlap >= size の場合はカーソルが前進しなくなるため設定エラーとして拒否する
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive: %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative: %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}

	return &Chunker{size: size, overlap: overlap}, nil
}

// Size はチャンクサイズを返す
func (c *Chunker) Size() int { return c.size }

// Overlap はオーバーラップ幅を返す
func (c *Chunker) Overlap() int { return c.overlap }

// Split はテキストをオーバーラップ付きチャンク列に分割する
// 空白のみのテキストは空の結果を返す。sizeより短いテキストは1チャンクになる
// サイズ・オーバーラップ・切断位置はすべて文字数で扱う
// バイト単位で切るとマルチバイト文字の途中で分断されるため
func (c *Chunker) Split(text, documentID, source string) []Chunk {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	index := 0

	for start < len(runes) {
		end := start + c.size

		// 末尾に達していない場合は文境界での分割を試みる
		// チャンク中間から末尾+lookaheadの範囲で最後に現れる区切りを探す
		if end < len(runes) {
			end = c.adjustToBoundary(runes, start, end)
		}
		if end > len(runes) {
			end = len(runes)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, Chunk{
				ID:         ChunkID(documentID, index),
				Content:    content,
				Title:      fmt.Sprintf("%s - Part %d", source, index+1),
				Source:     source,
				DocumentID: documentID,
				ChunkIndex: index,
				CharStart:  start,
				CharEnd:    end,
			})
			index++
		}

		// 境界調整の有無に関わらず固定幅で前進する
		start += c.size - c.overlap
	}

	return chunks
}

// adjustToBoundary は naive な切断位置endを文境界に合わせて調整する
// 境界が見つからない場合はendをそのまま返す。引数・戻り値は文字数オフセット
func (c *Chunker) adjustToBoundary(runes []rune, start, end int) int {
	from := start + c.size/2
	to := end + boundaryLookahead
	if to > len(runes) {
		to = len(runes)
	}
	if from >= to {
		return end
	}

	window := string(runes[from:to])
	for _, sep := range sentenceSeparators {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			// LastIndexはバイト位置を返すため文字数位置へ換算する
			// 区切り文字列自体はASCIIなのでlenをそのまま文字数として扱える
			return from + utf8.RuneCountInString(window[:idx]) + len(sep)
		}
	}

	return end
}

// ChunkID はドキュメントIDとチャンク位置から決定的なチャンクIDを導出する
// 同一ドキュメントの再インデックスで同じIDになり、重複ではなく上書きが起きる
func ChunkID(documentID string, index int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_chunk_%d", documentID, index)))
	return hex.EncodeToString(sum[:])
}
