package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/apex/log"
	platformerrors "github.com/jmgilman/go/errors"

	"github.com/watanabetatsumi/nutricache/internal/application/model"
)

const DefaultEdamamBaseURL = "https://api.edamam.com"

// Edamamの栄養素コード（値は可食部100gあたり）
const (
	nutrientEnergy  = "ENERC_KCAL"
	nutrientProtein = "PROCNT"
	nutrientCarbs   = "CHOCDF"
	nutrientFat     = "FAT"

	// エラーに含める応答本文の上限
	maxErrorBody = 200
)

type EdamamConfig struct {
	BaseURL string
	AppID   string
	AppKey  string
	Timeout time.Duration
}

// EdamamGateway Edamam Food Database APIから栄養値を取得するFactSource
type EdamamGateway struct {
	client *http.Client
	config EdamamConfig
}

func NewEdamamGateway(config EdamamConfig) *EdamamGateway {
	if config.BaseURL == "" {
		config.BaseURL = DefaultEdamamBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &EdamamGateway{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

type parserResponse struct {
	Parsed []struct {
		Food edamamFood `json:"food"`
	} `json:"parsed"`
	Hints []struct {
		Food edamamFood `json:"food"`
	} `json:"hints"`
}

type edamamFood struct {
	FoodID    string             `json:"foodId"`
	Label     string             `json:"label"`
	Nutrients map[string]float64 `json:"nutrients"`
}

// FetchFact 食品名で検索し、最も一致する食品の100gあたりの栄養値を返す
// 解析結果（parsed）があればそれを、なければ候補（hints）の先頭を使う
func (g *EdamamGateway) FetchFact(ctx context.Context, key string) (model.NutritionFact, string, error) {
	q := url.Values{}
	q.Set("ingr", key)
	q.Set("app_id", g.config.AppID)
	q.Set("app_key", g.config.AppKey)
	u := g.config.BaseURL + "/api/food-database/v2/parser?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.NutritionFact{}, "", platformerrors.Wrap(stripURL(err), platformerrors.CodeInternal, "failed to create edamam request")
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return model.NutritionFact{}, "", platformerrors.Wrap(stripURL(err), platformerrors.CodeNetwork, "failed to call edamam parser")
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return model.NutritionFact{}, "", platformerrors.Wrap(err, platformerrors.CodeNetwork, "failed to read edamam response")
	}
	if httpResp.StatusCode != http.StatusOK {
		code := platformerrors.CodeNetwork
		switch httpResp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			code = platformerrors.CodeUnauthorized
		case http.StatusTooManyRequests:
			code = platformerrors.CodeRateLimit
		}
		return model.NutritionFact{}, "", platformerrors.WithContext(
			platformerrors.Newf(code, "edamam parser API error %d: %s", httpResp.StatusCode, truncate(body, maxErrorBody)),
			"status", httpResp.StatusCode,
		)
	}

	var pr parserResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return model.NutritionFact{}, "", platformerrors.Wrap(err, platformerrors.CodeNetwork, "failed to parse edamam response")
	}

	var food *edamamFood
	switch {
	case len(pr.Parsed) > 0:
		food = &pr.Parsed[0].Food
	case len(pr.Hints) > 0:
		food = &pr.Hints[0].Food
	default:
		return model.NutritionFact{}, "", platformerrors.Newf(platformerrors.CodeNotFound, "no food matched %q", key)
	}

	fact, err := model.NewNutritionFact(
		food.Nutrients[nutrientEnergy],
		food.Nutrients[nutrientProtein],
		food.Nutrients[nutrientCarbs],
		food.Nutrients[nutrientFat],
	)
	if err != nil {
		return model.NutritionFact{}, "", err
	}

	log.WithFields(log.Fields{"key": key, "food_id": food.FoodID, "label": food.Label}).Debug("[EdamamGateway] 栄養値を取得しました")
	return fact, model.ProvenanceExternalAPI, nil
}

// stripURL url.Errorが持つリクエストURL（app_id/app_keyを含む）を落とす
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
