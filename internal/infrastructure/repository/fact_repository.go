package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"
	platformerrors "github.com/jmgilman/go/errors"

	"github.com/watanabetatsumi/nutricache/internal/application/model"
)

const lastCleanupMarker = "last_cleanup"

// FactRepository PersistenceAdapterとCleanupMarkerの実装
// Insert/Deleteはメモリ上にステージし、Saveでクライアントにまとめて渡す
type FactRepository struct {
	client FactRepoClient

	mu     sync.Mutex
	staged []Mutation
}

func NewFactRepository(client FactRepoClient) *FactRepository {
	return &FactRepository{
		client: client,
	}
}

// Insert エントリの追加をステージする
func (fr *FactRepository) Insert(ctx context.Context, entry model.CacheEntry) error {
	entry.Key = model.NormalizeKey(entry.Key)
	data, err := json.Marshal(entry)
	if err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInternal, "failed to encode cache entry")
	}

	fr.mu.Lock()
	fr.staged = append(fr.staged, Mutation{Record: EntryRecord{Key: entry.Key, Data: data}})
	fr.mu.Unlock()
	return nil
}

// Delete エントリの削除をステージする
func (fr *FactRepository) Delete(ctx context.Context, entry model.CacheEntry) error {
	fr.mu.Lock()
	fr.staged = append(fr.staged, Mutation{Delete: true, Record: EntryRecord{Key: model.NormalizeKey(entry.Key)}})
	fr.mu.Unlock()
	return nil
}

// Save ステージされた変更を確定する
// 失敗した場合はステージを残したままDATABASE_ERROR（リトライ可能）を返す
func (fr *FactRepository) Save(ctx context.Context) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	if len(fr.staged) == 0 {
		return nil
	}
	if err := fr.client.ApplyMutations(ctx, fr.staged); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeDatabase, "failed to save cache entries")
	}
	fr.staged = nil
	return nil
}

// Rollback ステージされた変更を破棄する
func (fr *FactRepository) Rollback(ctx context.Context) {
	fr.mu.Lock()
	fr.staged = nil
	fr.mu.Unlock()
}

// FetchAll 保存済みのエントリをすべて取得する
// デコードできないデータはスキップする
func (fr *FactRepository) FetchAll(ctx context.Context) ([]model.CacheEntry, error) {
	records, err := fr.client.ScanEntries(ctx)
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeDatabase, "failed to scan cache entries")
	}

	entries := make([]model.CacheEntry, 0, len(records))
	for _, r := range records {
		var e model.CacheEntry
		if err := json.Unmarshal(r.Data, &e); err != nil {
			log.WithField("key", r.Key).WithError(err).Warn("[FactRepository] エントリをデコードできません")
			continue
		}
		if e.Key == "" {
			e.Key = r.Key
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FetchMatching 条件に一致するエントリを取得する
func (fr *FactRepository) FetchMatching(ctx context.Context, match func(model.CacheEntry) bool) ([]model.CacheEntry, error) {
	all, err := fr.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	var matched []model.CacheEntry
	for _, e := range all {
		if match(e) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// LastCleanup 前回の掃除時刻を取得する
func (fr *FactRepository) LastCleanup(ctx context.Context) (time.Time, bool, error) {
	data, err := fr.client.GetMarker(ctx, lastCleanupMarker)
	if err != nil {
		return time.Time{}, false, platformerrors.Wrap(err, platformerrors.CodeDatabase, "failed to read cleanup marker")
	}
	if data == nil {
		return time.Time{}, false, nil
	}

	at, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		// 壊れた値は未記録として扱い、次の掃除で上書きする
		log.WithError(err).Warn("[FactRepository] 掃除時刻を解釈できません")
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// SetLastCleanup 掃除時刻を記録する
func (fr *FactRepository) SetLastCleanup(ctx context.Context, at time.Time) error {
	data := []byte(at.UTC().Format(time.RFC3339Nano))
	if err := fr.client.SetMarker(ctx, lastCleanupMarker, data); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeDatabase, "failed to write cleanup marker")
	}
	return nil
}
