package llm

import "errors"

var (
	// ErrInvalidInput は入力がプロバイダ呼び出し前に拒否された場合のエラー
	// （空テキストのEmbedding要求など）。リトライ対象外
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable は一時的な失敗のリトライを使い切った場合のエラー
	// 当該操作は失敗するがプロセスは継続する
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRejected はプロバイダがリクエストを恒久的に拒否した場合のエラー
	// （コンテンツフィルタ、不正なリクエスト形式、認証失敗）。リトライしない
	ErrProviderRejected = errors.New("provider rejected request")
)
