package model

import (
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
)

// ServingUnit サービングの単位
// 単位間の換算は行わない（グラムとカップを突き合わせることはしない）
type ServingUnit string

const (
	UnitGrams       ServingUnit = "grams"
	UnitOunces      ServingUnit = "ounces"
	UnitCups        ServingUnit = "cups"
	UnitTablespoons ServingUnit = "tablespoons"
	UnitTeaspoons   ServingUnit = "teaspoons"
	UnitPieces      ServingUnit = "pieces"
	UnitSlices      ServingUnit = "slices"
	UnitWhole       ServingUnit = "whole"
)

var servingUnits = map[ServingUnit]struct{}{
	UnitGrams:       {},
	UnitOunces:      {},
	UnitCups:        {},
	UnitTablespoons: {},
	UnitTeaspoons:   {},
	UnitPieces:      {},
	UnitSlices:      {},
	UnitWhole:       {},
}

// ParseServingUnit 文字列から単位を取得する（大文字小文字は区別しない）
func ParseServingUnit(s string) (ServingUnit, error) {
	u := ServingUnit(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := servingUnits[u]; !ok {
		return "", platformerrors.Newf(platformerrors.CodeInvalidInput, "unknown serving unit: %q", s)
	}
	return u, nil
}

// ServingSize サービング量と単位
type ServingSize struct {
	Amount float64     `json:"amount"`
	Unit   ServingUnit `json:"unit"`
}

// Multiplier 基準サービングから要求サービングへの倍率を計算する
// base.Amountが0以下の場合は1.0を返す（ゼロ除算でNaN/Infを下流に流さない）
func Multiplier(reported, base ServingSize) float64 {
	if base.Amount <= 0 {
		return 1.0
	}
	return reported.Amount / base.Amount
}

// Scale 基準サービングで記録された栄養値を要求サービング量に換算する
// 純粋関数なので同時に呼び出しても安全
func Scale(fact NutritionFact, reported, base ServingSize) NutritionFact {
	return fact.scaled(Multiplier(reported, base))
}
