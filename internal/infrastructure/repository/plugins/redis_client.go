package plugins

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watanabetatsumi/nutricache/internal/infrastructure/repository"
)

const defaultScanCount = 100

type RedisClientConfig struct {
	EntryPrefix  string        // エントリのキーの接頭辞（例: "nutricache:fact:"）
	MarkerPrefix string        // 掃除時刻などのキーの接頭辞
	ScanCount    int64         // SCANで1回に取得する件数
	Expiration   time.Duration // Redis側のEXPIRE（0の場合は設定しない）
}

// RedisClient RedisをFactRepoClientとして使う実装
type RedisClient struct {
	rclient *redis.Client
	config  RedisClientConfig
}

func NewRedisClient(rclient *redis.Client, config RedisClientConfig) *RedisClient {
	if config.ScanCount <= 0 {
		config.ScanCount = defaultScanCount
	}
	return &RedisClient{
		rclient: rclient,
		config:  config,
	}
}

// ApplyMutations MULTI/EXECでまとめて適用する
func (rc *RedisClient) ApplyMutations(ctx context.Context, mutations []repository.Mutation) error {
	pipe := rc.rclient.TxPipeline()
	for _, m := range mutations {
		key := rc.config.EntryPrefix + m.Record.Key
		if m.Delete {
			pipe.Del(ctx, key)
			continue
		}
		pipe.Set(ctx, key, m.Record.Data, rc.config.Expiration)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (rc *RedisClient) ScanEntries(ctx context.Context) ([]repository.EntryRecord, error) {
	// ページネーションを使用してキーをスキャン
	var cursor uint64
	var records []repository.EntryRecord
	pattern := rc.config.EntryPrefix + "*"

	for {
		keys, nextCursor, err := rc.rclient.Scan(ctx, cursor, pattern, rc.config.ScanCount).Result()
		if err != nil {
			return nil, err
		}

		if len(keys) > 0 {
			values, err := rc.rclient.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, err
			}
			for i, v := range values {
				// SCANとMGETの間に削除・期限切れになったキーはnil
				s, ok := v.(string)
				if !ok {
					continue
				}
				records = append(records, repository.EntryRecord{
					Key:  keys[i][len(rc.config.EntryPrefix):],
					Data: []byte(s),
				})
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return records, nil
}

func (rc *RedisClient) GetMarker(ctx context.Context, name string) ([]byte, error) {
	data, err := rc.rclient.Get(ctx, rc.config.MarkerPrefix+name).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return data, nil
}

func (rc *RedisClient) SetMarker(ctx context.Context, name string, data []byte) error {
	return rc.rclient.Set(ctx, rc.config.MarkerPrefix+name, data, 0).Err()
}
