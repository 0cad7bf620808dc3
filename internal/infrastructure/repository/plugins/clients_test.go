package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/watanabetatsumi/nutricache/internal/infrastructure/repository"
)

func newTestRedisClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rclient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rclient.Close() })

	return NewRedisClient(rclient, RedisClientConfig{
		EntryPrefix:  "nutricache:fact:",
		MarkerPrefix: "nutricache:marker:",
		ScanCount:    2,
		Expiration:   2 * time.Hour,
	}), mr
}

func newTestGormClient(t *testing.T) *GormClient {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: は接続ごとに別DBになるので1接続に固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gc, err := NewGormClient(db)
	require.NoError(t, err)
	return gc
}

// clientContract すべてのクライアント実装が満たすべき振る舞い
func clientContract(t *testing.T, client repository.FactRepoClient) {
	ctx := context.Background()

	records, err := client.ScanEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	err = client.ApplyMutations(ctx, []repository.Mutation{
		{Record: repository.EntryRecord{Key: "oats", Data: []byte(`{"key":"oats"}`)}},
		{Record: repository.EntryRecord{Key: "brown rice", Data: []byte(`{"key":"brown rice"}`)}},
		{Record: repository.EntryRecord{Key: "egg", Data: []byte(`{"key":"egg"}`)}},
	})
	require.NoError(t, err)

	// 削除と上書きを同じバッチで適用
	err = client.ApplyMutations(ctx, []repository.Mutation{
		{Delete: true, Record: repository.EntryRecord{Key: "egg"}},
		{Delete: true, Record: repository.EntryRecord{Key: "oats"}},
		{Record: repository.EntryRecord{Key: "oats", Data: []byte(`{"key":"oats","v":2}`)}},
	})
	require.NoError(t, err)

	records, err = client.ScanEntries(ctx)
	require.NoError(t, err)
	got := make(map[string]string, len(records))
	for _, r := range records {
		got[r.Key] = string(r.Data)
	}
	assert.Equal(t, map[string]string{
		"brown rice": `{"key":"brown rice"}`,
		"oats":       `{"key":"oats","v":2}`,
	}, got)

	data, err := client.GetMarker(ctx, "last_cleanup")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, client.SetMarker(ctx, "last_cleanup", []byte("a")))
	require.NoError(t, client.SetMarker(ctx, "last_cleanup", []byte("b")))
	data, err = client.GetMarker(ctx, "last_cleanup")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
}

func TestMemoryClient(t *testing.T) {
	clientContract(t, NewMemoryClient())
}

func TestRedisClient(t *testing.T) {
	client, mr := newTestRedisClient(t)
	clientContract(t, client)

	// マーカーはエントリのスキャン対象に含まれない
	assert.True(t, mr.Exists("nutricache:marker:last_cleanup"))
	assert.Equal(t, 2*time.Hour, mr.TTL("nutricache:fact:oats"))
}

func TestRedisClientApplyFailure(t *testing.T) {
	client, mr := newTestRedisClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーが落ちているとトランザクションは失敗する
	mr.Close()

	err := client.ApplyMutations(ctx, []repository.Mutation{
		{Record: repository.EntryRecord{Key: "oats", Data: []byte(`{}`)}},
	})
	require.Error(t, err)
	assert.NoError(t, ctx.Err())
}

func TestGormClient(t *testing.T) {
	clientContract(t, newTestGormClient(t))
}

func TestMemoryClientFaultInjection(t *testing.T) {
	mc := NewMemoryClient()
	mc.FailNextApply(1)

	m := []repository.Mutation{{Record: repository.EntryRecord{Key: "oats", Data: []byte(`{}`)}}}
	assert.ErrorIs(t, mc.ApplyMutations(context.Background(), m), ErrInjectedFailure)
	assert.Equal(t, 0, mc.Len())

	require.NoError(t, mc.ApplyMutations(context.Background(), m))
	assert.Equal(t, 1, mc.Len())
	assert.Equal(t, 1, mc.AppliedCount())

	mc.FailNextScan(1)
	_, err := mc.ScanEntries(context.Background())
	assert.ErrorIs(t, err, ErrInjectedFailure)
}
