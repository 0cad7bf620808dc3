package worker

import (
	"context"
)

// CacheCleaner 期限切れエントリの掃除を行うハンドラー（プラグイン可能）
type CacheCleaner interface {
	// CleanupExpired 期限切れのエントリを削除し、削除件数を返す
	CleanupExpired(ctx context.Context) (int, error)
}
