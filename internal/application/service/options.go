package service

import (
	"time"

	"github.com/watanabetatsumi/nutricache/internal/utils"
)

// Option FactCacheの設定を変更する関数
type Option func(*FactCache)

// WithTTL エントリの有効期間を設定する（0以下は無視）
func WithTTL(ttl time.Duration) Option {
	return func(c *FactCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock 時計を差し替える
func WithClock(clock utils.Clock) Option {
	return func(c *FactCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithRetryPolicy 永続化のリトライ方針を設定する
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *FactCache) {
		c.retry = p
	}
}

// WithApproxEntrySize Statsの概算サイズに使う1エントリあたりのバイト数
func WithApproxEntrySize(n int) Option {
	return func(c *FactCache) {
		if n > 0 {
			c.approxEntrySize = n
		}
	}
}
