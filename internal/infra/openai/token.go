package openai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// fallbackEncoding はモデル名からエンコーディングを解決できない場合に使う
	fallbackEncoding = "cl100k_base"

	// messageTokenOverhead はメッセージ1件あたりのフォーマットオーバーヘッド
	messageTokenOverhead = 4

	// conversationPrimingTokens は会話全体に加算される固定トークン数
	conversationPrimingTokens = 2
)

// TokenCounter は tiktoken によるトークン数の計測を提供する
// コンテキストウィンドウの管理と事前のコスト見積もりに使用する
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter はモデルに対応するトークンカウンターを作成する
// モデル名からエンコーディングを解決できない場合は cl100k_base にフォールバックする
func NewTokenCounter(model string) (*TokenCounter, error) {
	encoder, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoder, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load token encoding: %w", err)
		}
	}

	return &TokenCounter{encoder: encoder}, nil
}

// Count はテキストのトークン数を返す
func (c *TokenCounter) Count(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

// ChatMessage はトークン計測用のメッセージ表現
type ChatMessage struct {
	Role    string
	Content string
}

// CountMessages はメッセージリスト全体のトークン数を返す
// メッセージごとのフォーマットオーバーヘッドを含めて概算する
func (c *TokenCounter) CountMessages(messages []ChatMessage) int {
	tokens := 0
	for _, m := range messages {
		tokens += messageTokenOverhead
		tokens += c.Count(m.Content)
		tokens += c.Count(m.Role)
	}
	tokens += conversationPrimingTokens
	return tokens
}
