package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	platformerrors "github.com/jmgilman/go/errors"

	gateway_interfaces "github.com/watanabetatsumi/nutricache/internal/application/interface/gateway"
	scheduler_interfaces "github.com/watanabetatsumi/nutricache/internal/application/interface/scheduler"
	"github.com/watanabetatsumi/nutricache/internal/application/model"
	"github.com/watanabetatsumi/nutricache/internal/application/service"
)

type factHandler struct {
	cache    *service.FactCache
	notifier scheduler_interfaces.LifecycleNotifier
	resolver *service.FactResolver
	source   gateway_interfaces.FactSource
}

func NewFactHandler(cache *service.FactCache, notifier scheduler_interfaces.LifecycleNotifier) *factHandler {
	return &factHandler{
		cache:    cache,
		notifier: notifier,
	}
}

// WithSource キャッシュミス時に値を取得する外部ソースを設定する
// 設定した場合だけ GET /facts/:key/resolve を登録する
func (fh *factHandler) WithSource(src gateway_interfaces.FactSource) *factHandler {
	fh.source = src
	fh.resolver = service.NewFactResolver(fh.cache)
	return fh
}

// Register ルートを登録する
func (fh *factHandler) Register(r gin.IRouter) {
	r.GET("/facts/:key", fh.GetFact)
	if fh.source != nil {
		r.GET("/facts/:key/resolve", fh.ResolveFact)
	}
	r.PUT("/facts/:key", fh.PutFact)
	r.POST("/facts/:key/refresh", fh.RefreshFact)
	r.POST("/serving/scale", fh.Scale)

	admin := r.Group("/system/admin/cache")
	admin.GET("/stats", fh.Stats)
	admin.POST("/cleanup", fh.Cleanup)
	admin.DELETE("", fh.ClearAll)

	r.POST("/system/lifecycle/active", fh.Activate)
}

type factRequest struct {
	Fact       *model.NutritionFact `json:"fact" binding:"required"`
	Provenance string               `json:"provenance"`
}

type scaleRequest struct {
	Fact     *model.NutritionFact `json:"fact" binding:"required"`
	Reported model.ServingSize    `json:"reported"`
	Base     model.ServingSize    `json:"base"`
}

// GetFact キャッシュから栄養値を取得する
// allow_expired=true の場合は期限切れのエントリも返す
func (fh *factHandler) GetFact(c *gin.Context) {
	allowExpired := false
	if v := c.Query("allow_expired"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "allow_expired must be a boolean"})
			return
		}
		allowExpired = b
	}

	key := model.NormalizeKey(c.Param("key"))
	fact, ok := fh.cache.Get(key, allowExpired)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "fact not cached", "key": key})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "fact": fact})
}

// ResolveFact キャッシュになければ外部ソースから取得して保存する
func (fh *factHandler) ResolveFact(c *gin.Context) {
	key := model.NormalizeKey(c.Param("key"))
	fact, err := fh.resolver.Resolve(c.Request.Context(), key, fh.source)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "fact": fact})
}

// PutFact 栄養値を保存する（有効なエントリがあれば既存の値を返す）
func (fh *factHandler) PutFact(c *gin.Context) {
	fh.write(c, fh.cache.Put)
}

// RefreshFact 既存のエントリを置き換える
func (fh *factHandler) RefreshFact(c *gin.Context) {
	fh.write(c, fh.cache.InvalidateAndPut)
}

func (fh *factHandler) write(c *gin.Context, op func(ctx context.Context, key string, fact model.NutritionFact, provenance string) error) {
	var req factRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := model.NormalizeKey(c.Param("key"))
	if err := op(c.Request.Context(), key, *req.Fact, req.Provenance); err != nil {
		writeError(c, err)
		return
	}

	fact, _ := fh.cache.Get(key, false)
	c.JSON(http.StatusOK, gin.H{"key": key, "fact": fact})
}

// Scale 基準サービングの栄養値を要求サービング量に換算する
func (fh *factHandler) Scale(c *gin.Context) {
	var req scaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Fact.Validate(); err != nil {
		writeError(c, err)
		return
	}
	for _, s := range []model.ServingSize{req.Reported, req.Base} {
		if s.Unit == "" {
			continue
		}
		if _, err := model.ParseServingUnit(string(s.Unit)); err != nil {
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"fact":       model.Scale(*req.Fact, req.Reported, req.Base),
		"multiplier": model.Multiplier(req.Reported, req.Base),
	})
}

// Stats キャッシュの状態を返す
func (fh *factHandler) Stats(c *gin.Context) {
	s := fh.cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"total":             s.Total,
		"expired":           s.Expired,
		"approx_size_bytes": s.ApproxSizeBytes,
		"approx_size":       s.HumanSize(),
	})
}

// Cleanup 期限切れエントリを削除する
func (fh *factHandler) Cleanup(c *gin.Context) {
	removed, err := fh.cache.CleanupExpired(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Expired cache cleanup completed successfully",
		"removed": removed,
	})
}

// ClearAll すべてのエントリを削除する
func (fh *factHandler) ClearAll(c *gin.Context) {
	if err := fh.cache.ClearAll(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}

// Activate ホストがアクティブになったことを通知する
// 掃除の成否は呼び出し側には返さない
func (fh *factHandler) Activate(c *gin.Context) {
	fh.notifier.Notify()
	c.JSON(http.StatusAccepted, gin.H{"message": "Activation received"})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch code := platformerrors.GetCode(err); {
	case service.IsValidation(err):
		status = http.StatusBadRequest
	case service.IsAbandonedWrite(err):
		status = http.StatusServiceUnavailable
	case code == platformerrors.CodeNotFound:
		status = http.StatusNotFound
	case code == platformerrors.CodeNetwork, code == platformerrors.CodeUnauthorized, code == platformerrors.CodeRateLimit:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("[FactHandler] リクエストの処理に失敗しました")
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  platformerrors.GetCode(err),
	})
}
