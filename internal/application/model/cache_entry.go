package model

import (
	"strings"
	"time"
)

const (
	// ProvenanceExternalAPI 外部の栄養APIから取得した値
	ProvenanceExternalAPI = "external-api"
	// ProvenanceEstimated 推定値
	ProvenanceEstimated = "estimated"
)

// CacheEntry キャッシュエントリ（永続化ストアに保存される）
// キャッシュの外には NutritionFact だけを渡し、メタデータは公開しない
type CacheEntry struct {
	// Key 正規化済みのキャッシュキー
	Key string `json:"key"`

	// Fact 基準サービングあたりの栄養値
	Fact NutritionFact `json:"fact"`

	// CreatedAt エントリ作成時刻
	CreatedAt time.Time `json:"created_at"`

	// Provenance 値の取得元（external-api / estimated など）
	Provenance string `json:"provenance"`
}

// NewCacheEntry キーを正規化してエントリを生成する
func NewCacheEntry(key string, fact NutritionFact, provenance string, now time.Time) CacheEntry {
	if provenance == "" {
		provenance = ProvenanceExternalAPI
	}
	return CacheEntry{
		Key:        NormalizeKey(key),
		Fact:       fact,
		CreatedAt:  now,
		Provenance: provenance,
	}
}

// IsExpired 作成からttlを超えて経過したかどうか（domain層のロジック）
// 境界ちょうどはまだ有効とみなす
func (ce CacheEntry) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(ce.CreatedAt) > ttl
}

// NormalizeKey 食品名をキャッシュキーに正規化する
// 前後の空白を除去し、連続する空白を1つにまとめて小文字化する
func NormalizeKey(key string) string {
	return strings.ToLower(strings.Join(strings.Fields(key), " "))
}

// MatchesKey 候補のキーが検索キーと一致するかを判定する
// 部分一致で候補を絞り込んだ後、大文字小文字を無視した完全一致で判定する
// 部分一致だけでヒットにはしない（"rice" と "brown rice" は一致しない）
func MatchesKey(candidate, key string) bool {
	c := NormalizeKey(candidate)
	k := NormalizeKey(key)
	if !strings.Contains(c, k) {
		return false
	}
	return c == k
}
