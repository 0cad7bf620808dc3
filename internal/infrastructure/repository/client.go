package repository

import (
	"context"
)

// EntryRecord ストアに保存する1件分のデータ（infrastructure層の型）
// domain層のmodel.CacheEntryとは別の型として定義し、中身はJSONのまま扱う
type EntryRecord struct {
	Key  string // 正規化済みのキャッシュキー
	Data []byte // JSONエンコードされたエントリ
}

// Mutation 保存時にまとめて適用する変更
type Mutation struct {
	Delete bool
	Record EntryRecord
}

// FactRepoClient 永続化ストアごとの実装（プラグイン可能）
type FactRepoClient interface {
	// ApplyMutations 変更を順番どおりにまとめて適用する（全件成功か全件失敗）
	ApplyMutations(ctx context.Context, mutations []Mutation) error

	// ScanEntries 保存されているエントリをすべて取得する
	ScanEntries(ctx context.Context) ([]EntryRecord, error)

	// GetMarker 名前付きの値を取得する（存在しない場合はnil）
	GetMarker(ctx context.Context, name string) ([]byte, error)

	// SetMarker 名前付きの値を保存する
	SetMarker(ctx context.Context, name string, data []byte) error
}
