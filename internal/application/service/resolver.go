package service

import (
	"context"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/singleflight"

	gateway "github.com/watanabetatsumi/nutricache/internal/application/interface/gateway"
	"github.com/watanabetatsumi/nutricache/internal/application/model"
)

// DefaultResolveTimeout 共有される取得と保存にかける時間の上限
const DefaultResolveTimeout = 30 * time.Second

// FactResolver キャッシュを優先し、ミスした場合だけ外部ソースから取得する
// 同じキーへの同時ミスは1回の取得にまとめる
type FactResolver struct {
	cache   *FactCache
	group   singleflight.Group
	timeout time.Duration
}

func NewFactResolver(cache *FactCache) *FactResolver {
	return &FactResolver{
		cache:   cache,
		timeout: DefaultResolveTimeout,
	}
}

// WithTimeout 共有される取得の上限時間を設定する（0以下は無視）
func (r *FactResolver) WithTimeout(d time.Duration) *FactResolver {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Resolve キーに対応する栄養値を返す
//
// 取得は呼び出し元のキャンセルから切り離して実行し、各呼び出し元は自分のctxでだけ待機を打ち切る。
// 取得した値の保存に失敗しても値自体は返す（次回はキャッシュミスになるだけ）
func (r *FactResolver) Resolve(ctx context.Context, key string, src gateway.FactSource) (model.NutritionFact, error) {
	if fact, ok := r.cache.Get(key, false); ok {
		return fact, nil
	}

	k := model.NormalizeKey(key)
	ch := r.group.DoChan(k, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.fetchAndStore(fetchCtx, k, src)
	})

	select {
	case <-ctx.Done():
		return model.NutritionFact{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.NutritionFact{}, res.Err
		}
		if res.Shared {
			log.WithField("key", k).Debug("[FactResolver] 同時の取得をまとめました")
		}
		return res.Val.(model.NutritionFact), nil
	}
}

func (r *FactResolver) fetchAndStore(ctx context.Context, k string, src gateway.FactSource) (model.NutritionFact, error) {
	if fact, ok := r.cache.Get(k, false); ok {
		return fact, nil
	}

	fact, provenance, err := src.FetchFact(ctx, k)
	if err != nil {
		return model.NutritionFact{}, err
	}
	if err := r.cache.Put(ctx, k, fact, provenance); err != nil {
		if IsValidation(err) {
			return model.NutritionFact{}, err
		}
		log.WithField("key", k).WithError(err).Warn("[FactResolver] 取得した値をキャッシュできませんでした")
	}
	return fact, nil
}
