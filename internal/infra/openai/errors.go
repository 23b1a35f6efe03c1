package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/jinford/docs-rag/internal/core/llm"
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// classifyError はプロバイダエラーをリトライ可否で分類し、
// ドメインのエラー種別でラップする
// 429と5xxは一時的エラー、その他のAPIエラーは恒久的な拒否として扱う
// HTTP層のエラー（接続断、タイムアウト）は一時的エラーとみなす
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return err
		}
		return fmt.Errorf("%w: %v", llm.ErrProviderRejected, err)
	}

	return err
}

// isRetryable はリトライポリシーに渡す判定関数
func isRetryable(err error) bool {
	if errors.Is(err, llm.ErrProviderRejected) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// wrapExhausted はリトライを使い切った一時的エラーを
// ErrProviderUnavailable でラップする
func wrapExhausted(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, llm.ErrProviderRejected) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, err)
}
