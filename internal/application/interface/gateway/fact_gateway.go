package gateway_interfaces

import (
	"context"

	"github.com/watanabetatsumi/nutricache/internal/application/model"
)

// FactSource 栄養値を取得する外部ソース（栄養API、推定ロジックなど）
// キャッシュは値の取得方法には関知しない
type FactSource interface {
	// FetchFact キーに対応する栄養値と取得元を返す
	FetchFact(ctx context.Context, key string) (model.NutritionFact, string, error)
}

// FactSourceFunc 関数をFactSourceとして使うためのアダプター
type FactSourceFunc func(ctx context.Context, key string) (model.NutritionFact, string, error)

// FetchFact FactSourceの実装
func (f FactSourceFunc) FetchFact(ctx context.Context, key string) (model.NutritionFact, string, error) {
	return f(ctx, key)
}
