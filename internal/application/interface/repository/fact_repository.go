package repository

import (
	"context"
	"time"

	"github.com/watanabetatsumi/nutricache/internal/application/model"
)

// PersistenceAdapter キャッシュエントリを永続化するストアのインターフェース
// Insert/Deleteは変更をステージするだけで、Saveでまとめて確定する
type PersistenceAdapter interface {
	// Insert エントリの追加をステージする
	Insert(ctx context.Context, entry model.CacheEntry) error

	// Delete エントリの削除をステージする
	Delete(ctx context.Context, entry model.CacheEntry) error

	// Save ステージされた変更を確定する
	// エラーは一時的な失敗として扱われ、呼び出し側でリトライされる
	Save(ctx context.Context) error

	// Rollback ステージされた変更を破棄する
	Rollback(ctx context.Context)

	// FetchAll 確定済みのエントリをすべて取得する
	FetchAll(ctx context.Context) ([]model.CacheEntry, error)

	// FetchMatching 条件に一致する確定済みのエントリを取得する
	FetchMatching(ctx context.Context, match func(model.CacheEntry) bool) ([]model.CacheEntry, error)
}

// CleanupMarker 最後に期限切れ掃除を行った時刻を保存する
type CleanupMarker interface {
	// LastCleanup 前回の掃除時刻を取得する（未記録の場合はfalse）
	LastCleanup(ctx context.Context) (time.Time, bool, error)

	// SetLastCleanup 掃除時刻を記録する
	SetLastCleanup(ctx context.Context, at time.Time) error
}
