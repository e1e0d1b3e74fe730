package fal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy は一時的な失敗に対する有界リトライの方針です。
// 元仕様ではリトライ予算が未規定のため、最大3試行・指数バックオフを採用しています。
type RetryPolicy struct {
	MaxAttempts     int           // 初回を含む総試行回数
	InitialInterval time.Duration // 初回待機時間
	Multiplier      float64       // 待機時間の逓増率
	MaxInterval     time.Duration // 待機時間の上限
}

// DefaultRetryPolicy は既定のリトライポリシー（3試行、2秒から指数増加）を返します。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		Multiplier:      2.0,
		MaxInterval:     30 * time.Second,
	}
}

// Do は op を実行し、KindTransient の失敗のみポリシーの範囲で再試行します。
// それ以外の失敗分類は即座に確定（Permanent）として返します。
func (p RetryPolicy) Do(ctx context.Context, name string, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0 // 回数で打ち切るため経過時間の上限は使わない

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}

		var fe *Error
		if errors.As(err, &fe) && fe.Retryable() && attempt < attempts {
			slog.Warn("一時的な失敗のため再試行します",
				"op", name, "attempt", attempt, "max_attempts", attempts, "error", fe.Message)
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
}
