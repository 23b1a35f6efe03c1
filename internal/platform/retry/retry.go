package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts はデフォルトの最大試行回数
	DefaultMaxAttempts = 3

	// DefaultBaseDelay はExponential Backoffの基底時間
	DefaultBaseDelay = 2 * time.Second

	// DefaultMaxDelay はExponential Backoffの最大待機時間
	DefaultMaxDelay = 10 * time.Second
)

// Policy はプロバイダ呼び出しに適用するリトライ方針を表す
// 一時的な失敗のみをリトライし、それ以外は即座に伝播させる
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable はエラーがリトライ対象かどうかを判定する
	// nil の場合は全てのエラーをリトライ対象とみなす
	Retryable func(error) bool
}

// DefaultPolicy はデフォルトのリトライ方針を返す（3回試行、2秒基底、10秒上限）
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Retryable:   retryable,
	}
}

// Do は op をリトライ方針に従って実行する
// リトライ対象外のエラーは即座に返す。最終試行の失敗はそのまま返す
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	b := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		b.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.MaxElapsedTime = 0 // 試行回数のみで制御する
	b.Reset()

	operation := func() (T, error) {
		result, err := op(ctx)
		if err != nil {
			if p.Retryable != nil && !p.Retryable(err) {
				return result, backoff.Permanent(err)
			}
			return result, err
		}
		return result, nil
	}

	return backoff.RetryWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx),
	)
}
