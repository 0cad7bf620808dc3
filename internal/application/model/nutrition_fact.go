package model

import (
	"math"

	platformerrors "github.com/jmgilman/go/errors"
)

// NutritionFact 基準サービングあたりの栄養値（不変の値型）
type NutritionFact struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// NewNutritionFact 値を検証してNutritionFactを生成する
// 負の値・NaN・Infが含まれる場合はINVALID_INPUTエラーを返す
func NewNutritionFact(calories, protein, carbs, fat float64) (NutritionFact, error) {
	f := NutritionFact{
		Calories: calories,
		Protein:  protein,
		Carbs:    carbs,
		Fat:      fat,
	}
	if err := f.Validate(); err != nil {
		return NutritionFact{}, err
	}
	return f, nil
}

// Validate 全フィールドが有限かつ0以上であることを確認する（domain層のロジック）
// 構造体リテラルやJSONデコードで作られた値もここで弾く
func (f NutritionFact) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"calories", f.Calories},
		{"protein", f.Protein},
		{"carbs", f.Carbs},
		{"fat", f.Fat},
	}
	for _, field := range fields {
		if math.IsNaN(field.value) || math.IsInf(field.value, 0) {
			err := platformerrors.Newf(platformerrors.CodeInvalidInput, "%s must be finite", field.name)
			return platformerrors.WithContext(err, "field", field.name)
		}
		if field.value < 0 {
			err := platformerrors.Newf(platformerrors.CodeInvalidInput, "%s must not be negative: %g", field.name, field.value)
			return platformerrors.WithContext(err, "field", field.name)
		}
	}
	return nil
}

// scaled 各フィールドに倍率を掛けた新しい値を返す
// 結果は0以上に丸め、NaN/Infは0にする
func (f NutritionFact) scaled(m float64) NutritionFact {
	return NutritionFact{
		Calories: clampNonNegative(f.Calories * m),
		Protein:  clampNonNegative(f.Protein * m),
		Carbs:    clampNonNegative(f.Carbs * m),
		Fat:      clampNonNegative(f.Fat * m),
	}
}

func clampNonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
