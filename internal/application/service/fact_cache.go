package service

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	platformerrors "github.com/jmgilman/go/errors"

	"github.com/watanabetatsumi/nutricache/internal/application/interface/repository"
	"github.com/watanabetatsumi/nutricache/internal/application/model"
	"github.com/watanabetatsumi/nutricache/internal/utils"
)

const (
	// DefaultTTL エントリの既定の有効期間
	DefaultTTL = time.Hour

	defaultApproxEntrySize = 256
)

// FactCache 栄養値の短期キャッシュ
//
// 書き込み系（Put, InvalidateAndPut, CleanupExpired, ClearAll）は書き込みロックの中で
// 存在確認・永続化・インデックス反映までを一続きに行う。リトライの待機中もロックは保持する。
// 読み込み系（Get, Stats）は読み込みロックで並行に実行できる。
type FactCache struct {
	mu      sync.RWMutex
	store   repository.PersistenceAdapter
	entries map[string]model.CacheEntry

	ttl             time.Duration
	clock           utils.Clock
	retry           RetryPolicy
	approxEntrySize int
}

func NewFactCache(store repository.PersistenceAdapter, opts ...Option) *FactCache {
	c := &FactCache{
		store:           store,
		entries:         make(map[string]model.CacheEntry),
		ttl:             DefaultTTL,
		clock:           utils.SystemClock{},
		retry:           DefaultRetryPolicy(),
		approxEntrySize: defaultApproxEntrySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL エントリの有効期間
func (c *FactCache) TTL() time.Duration {
	return c.ttl
}

// Load 永続化ストアの内容でインデックスを作り直す
// 同じキーのエントリが複数ある場合は新しいものを採用する
func (c *FactCache) Load(ctx context.Context) error {
	entries, err := c.store.FetchAll(ctx)
	if err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeDatabase, "failed to load cache entries")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]model.CacheEntry, len(entries))
	for _, e := range entries {
		e.Key = model.NormalizeKey(e.Key)
		if cur, ok := c.entries[e.Key]; ok && cur.CreatedAt.After(e.CreatedAt) {
			continue
		}
		c.entries[e.Key] = e
	}

	log.WithField("entries", len(c.entries)).Info("[FactCache] ストアからエントリを読み込みました")
	return nil
}

// Get キーに対応する栄養値を取得する
// 期限切れのエントリはallowExpiredがtrueの場合だけ返す。読み込み時に削除はしない
func (c *FactCache) Get(key string, allowExpired bool) (model.NutritionFact, bool) {
	k := model.NormalizeKey(key)

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[k]
	if !ok {
		return model.NutritionFact{}, false
	}
	if !allowExpired && e.IsExpired(c.clock.Now(), c.ttl) {
		return model.NutritionFact{}, false
	}
	return e.Fact, true
}

// Put 栄養値をキャッシュに保存する
//
// 有効なエントリが既にある場合は何もしない（有効期間内は最初の書き込みが勝つ）。
// 不正な栄養値は永続化を試みずにINVALID_INPUTエラーを返す。
// リトライを使い切った場合はABANDONED_WRITEエラーを返し、キャッシュは呼び出し前の状態のまま。
func (c *FactCache) Put(ctx context.Context, key string, fact model.NutritionFact, provenance string) error {
	k, err := validatePut(key, fact)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	existing, found := c.entries[k]
	if found && !existing.IsExpired(now, c.ttl) {
		log.WithField("key", k).Debug("[FactCache] 有効なエントリがあるため保存をスキップします")
		return nil
	}

	entry := model.NewCacheEntry(k, fact, provenance, now)
	err = c.commit(ctx, "put", func(ctx context.Context) error {
		if found {
			if err := c.store.Delete(ctx, existing); err != nil {
				return err
			}
		}
		return c.store.Insert(ctx, entry)
	})
	if err != nil {
		log.WithField("key", k).WithError(err).Error("[FactCache] 保存を断念しました")
		return platformerrors.WithContext(err, "key", k)
	}

	c.entries[k] = entry
	log.WithFields(log.Fields{"key": k, "provenance": entry.Provenance}).Debug("[FactCache] エントリを保存しました")
	return nil
}

// InvalidateAndPut 既存のエントリを（期限内でも）削除して新しい値を保存する
// 削除と追加は1回の保存で確定する。失敗時の扱いはPutと同じ
func (c *FactCache) InvalidateAndPut(ctx context.Context, key string, fact model.NutritionFact, provenance string) error {
	k, err := validatePut(key, fact)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, found := c.entries[k]
	entry := model.NewCacheEntry(k, fact, provenance, c.clock.Now())
	err = c.commit(ctx, "invalidate-and-put", func(ctx context.Context) error {
		if found {
			if err := c.store.Delete(ctx, existing); err != nil {
				return err
			}
		}
		return c.store.Insert(ctx, entry)
	})
	if err != nil {
		log.WithField("key", k).WithError(err).Error("[FactCache] 置き換えを断念しました")
		return platformerrors.WithContext(err, "key", k)
	}

	c.entries[k] = entry
	log.WithFields(log.Fields{"key": k, "replaced": found}).Debug("[FactCache] エントリを置き換えました")
	return nil
}

// CleanupExpired 期限切れのエントリを削除して件数を返す
// 期限切れがなければ書き込みは行わずに0を返す。
// 失敗した場合はインデックスを変更せずにエラーを返す（次回の掃除で再試行する想定）
func (c *FactCache) CleanupExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	expired := make(map[string]model.CacheEntry)
	for k, e := range c.entries {
		if e.IsExpired(now, c.ttl) {
			expired[k] = e
		}
	}

	// インデックスに載っていない期限切れエントリもストアから拾う
	var stored []model.CacheEntry
	attempts, err := c.retry.Do(ctx, "cleanup-fetch", func(ctx context.Context) error {
		var err error
		stored, err = c.store.FetchMatching(ctx, func(e model.CacheEntry) bool {
			return e.IsExpired(now, c.ttl)
		})
		return err
	})
	if err != nil {
		return 0, abandoned(err, "cleanup", attempts)
	}
	for _, e := range stored {
		k := model.NormalizeKey(e.Key)
		if cur, ok := c.entries[k]; ok && !cur.IsExpired(now, c.ttl) {
			continue
		}
		if _, ok := expired[k]; !ok {
			expired[k] = e
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}

	err = c.commit(ctx, "cleanup", func(ctx context.Context) error {
		for _, e := range expired {
			if err := c.store.Delete(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.WithField("expired", len(expired)).WithError(err).Warn("[FactCache] 期限切れエントリの削除に失敗しました")
		return 0, err
	}

	for k := range expired {
		delete(c.entries, k)
	}
	log.WithField("removed", len(expired)).Info("[FactCache] 期限切れエントリを削除しました")
	return len(expired), nil
}

// ClearAll すべてのエントリを削除する（リセット・テスト用）
func (c *FactCache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stored []model.CacheEntry
	attempts, err := c.retry.Do(ctx, "clear-fetch", func(ctx context.Context) error {
		var err error
		stored, err = c.store.FetchAll(ctx)
		return err
	})
	if err != nil {
		return abandoned(err, "clear", attempts)
	}

	all := make(map[string]model.CacheEntry, len(c.entries)+len(stored))
	for k, e := range c.entries {
		all[k] = e
	}
	for _, e := range stored {
		all[model.NormalizeKey(e.Key)] = e
	}
	if len(all) == 0 {
		return nil
	}

	err = c.commit(ctx, "clear", func(ctx context.Context) error {
		for _, e := range all {
			if err := c.store.Delete(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.entries = make(map[string]model.CacheEntry)
	log.WithField("removed", len(all)).Info("[FactCache] すべてのエントリを削除しました")
	return nil
}

// commit 変更をステージしてリトライ付きで保存する
// ステージか保存に失敗した場合はステージした変更を破棄してABANDONED_WRITEを返す
func (c *FactCache) commit(ctx context.Context, op string, stage func(context.Context) error) error {
	if err := stage(ctx); err != nil {
		c.store.Rollback(ctx)
		return stagingFailed(err, op)
	}

	attempts, err := c.retry.Do(ctx, op, c.store.Save)
	if err != nil {
		c.store.Rollback(ctx)
		return abandoned(err, op, attempts)
	}
	return nil
}

func validatePut(key string, fact model.NutritionFact) (string, error) {
	if err := fact.Validate(); err != nil {
		return "", err
	}
	k := model.NormalizeKey(key)
	if k == "" {
		return "", platformerrors.New(platformerrors.CodeInvalidInput, "cache key must not be empty")
	}
	return k, nil
}
