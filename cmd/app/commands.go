package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/watanabetatsumi/nutricache/cmd/config"
	"github.com/watanabetatsumi/nutricache/internal/handlers"
	"github.com/watanabetatsumi/nutricache/internal/infrastructure/gateway"
	"github.com/watanabetatsumi/nutricache/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

func serveAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ============================================
	// 掃除スケジューラーの起動
	// ============================================
	notifier := scheduler.NewNotifier()
	sweeper := scheduler.NewSweeper(a.cache, a.repo, notifier,
		scheduler.WithInterval(a.conf.Cache.TTL),
		scheduler.WithSchedule(a.conf.Cache.SweepSchedule),
	)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	defer sweeper.Stop()

	// ============================================
	// サーバーのセットアップ
	// ============================================
	if a.conf.Server.Mode == config.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// セキュリティヘッダーを追加するミドルウェア
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Next()
	})
	r.Use(requestLogger())

	factHandler := handlers.NewFactHandler(a.cache, notifier)
	if a.conf.Edamam.AppID != "" {
		factHandler.WithSource(gateway.NewEdamamGateway(gateway.EdamamConfig{
			BaseURL: a.conf.Edamam.BaseURL,
			AppID:   a.conf.Edamam.AppID,
			AppKey:  a.conf.Edamam.AppKey,
			Timeout: a.conf.Edamam.Timeout,
		}))
		log.Info("[App] Edamamからの取得を有効にしました")
	}
	factHandler.Register(r)

	// ============================================
	// HTTPサーバーの起動
	// ============================================
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.conf.Server.Port),
		Handler: r,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", a.conf.Server.Port).Info("[App] HTTPサーバーを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("[App] HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	removed, err := a.cache.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	if err := a.repo.SetLastCleanup(ctx, time.Now()); err != nil {
		log.WithError(err).Warn("[App] 最終掃除時刻を記録できませんでした")
	}
	fmt.Printf("removed %d expired entries\n", removed)
	return nil
}

func statsAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	s := a.cache.Stats()
	fmt.Printf("total:   %d\n", s.Total)
	fmt.Printf("expired: %d\n", s.Expired)
	fmt.Printf("size:    ~%s\n", s.HumanSize())

	last, ok, err := a.repo.LastCleanup(ctx)
	switch {
	case err != nil:
		return err
	case ok:
		fmt.Printf("last cleanup: %s\n", last.Local().Format(time.DateTime))
	default:
		fmt.Println("last cleanup: never")
	}
	return nil
}

// requestLogger ginのアクセスログをapex/logに流すミドルウェア
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}).Info("[GIN] リクエストを処理しました")
	}
}
