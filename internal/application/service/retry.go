package service

import (
	"context"
	"time"

	"github.com/apex/log"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
)

// RetryPolicy 永続化のリトライ方針
// n回目の失敗の後は BaseDelay×n 待機する（線形バックオフ）
// 最後の失敗の後は待機せずに返すので、既定値での最悪ケースは約300ms
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy 最大3回、試行の間に100ms・200msの待機
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  defaultRetryAttempts,
		BaseDelay: defaultRetryBaseDelay,
	}
}

// Delay n回目の失敗後の待機時間
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// Do opを最大Attempts回実行する
// 戻り値は実行回数と最後のエラー。ctxがキャンセルされた場合は待機を打ち切る
func (p RetryPolicy) Do(ctx context.Context, name string, op func(context.Context) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return attempt, nil
		}

		log.WithFields(log.Fields{
			"op":      name,
			"attempt": attempt,
			"max":     attempts,
		}).WithError(err).Warn("[Retry] 永続化に失敗しました")

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return attempts, err
}
