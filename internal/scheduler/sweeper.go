package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/robfig/cron/v3"

	"github.com/watanabetatsumi/nutricache/internal/application/interface/repository"
	"github.com/watanabetatsumi/nutricache/internal/application/interface/worker"
	"github.com/watanabetatsumi/nutricache/internal/utils"
)

const defaultSweepInterval = time.Hour

// Sweeper 期限切れエントリの掃除を起動時・アクティブ化時・定期実行で呼び出す
// 掃除が実行中に来たトリガーはキューに積まずに捨てる
type Sweeper struct {
	cleaner  worker.CacheCleaner
	marker   repository.CleanupMarker
	notifier *Notifier

	interval time.Duration
	schedule string
	clock    utils.Clock

	cron    *cron.Cron
	running sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SweeperOption Sweeperの設定を変更する関数
type SweeperOption func(*Sweeper)

// WithInterval 起動時に掃除するかどうかを判断する間隔（通常はキャッシュのTTL）
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedule cronの定期実行を追加する（例: "@every 15m"）
func WithSchedule(schedule string) SweeperOption {
	return func(s *Sweeper) {
		s.schedule = schedule
	}
}

func WithClock(clock utils.Clock) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewSweeper(cleaner worker.CacheCleaner, marker repository.CleanupMarker, notifier *Notifier, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		cleaner:  cleaner,
		marker:   marker,
		notifier: notifier,
		interval: defaultSweepInterval,
		clock:    utils.SystemClock{},
		cron:     cron.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 前回の掃除から間隔以上経っていれば掃除してから、通知と定期実行の待ち受けを始める
// 待ち受けはctxがキャンセルされるかStopが呼ばれるまで続く
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.schedule != "" {
		if _, err := s.cron.AddFunc(s.schedule, func() { s.Trigger(ctx) }); err != nil {
			s.cancel()
			return err
		}
		s.cron.Start()
		log.WithField("schedule", s.schedule).Info("[Sweeper] 定期実行を開始しました")
	}

	if s.due(ctx) {
		s.Trigger(ctx)
	}

	if s.notifier != nil {
		s.wg.Add(1)
		go s.watchActivations(ctx)
	}
	return nil
}

// Stop 待ち受けを止め、実行中の掃除（定期実行・アクティブ化のどちらも）の終了を待つ
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Info("[Sweeper] 停止しました")
}

// Trigger 掃除を1回実行する。既に実行中の場合は何もせずfalseを返す
// 掃除の失敗はログに残すだけで呼び出し側には伝えない
func (s *Sweeper) Trigger(ctx context.Context) bool {
	if !s.running.TryLock() {
		log.Debug("[Sweeper] 掃除が実行中のためスキップします")
		return false
	}
	defer s.running.Unlock()

	removed, err := s.cleaner.CleanupExpired(ctx)
	if err != nil {
		log.WithError(err).Warn("[Sweeper] 掃除に失敗しました。次回に再試行します")
		return true
	}

	if err := s.marker.SetLastCleanup(ctx, s.clock.Now()); err != nil {
		log.WithError(err).Warn("[Sweeper] 最終掃除時刻を記録できませんでした")
	}
	log.WithField("removed", removed).Info("[Sweeper] 掃除が完了しました")
	return true
}

func (s *Sweeper) due(ctx context.Context) bool {
	last, ok, err := s.marker.LastCleanup(ctx)
	if err != nil {
		log.WithError(err).Warn("[Sweeper] 最終掃除時刻を読み込めませんでした")
		return true
	}
	if !ok {
		return true
	}
	return s.clock.Now().Sub(last) > s.interval
}

func (s *Sweeper) watchActivations(ctx context.Context) {
	defer s.wg.Done()
	log.Debug("[Sweeper] アクティブ化の監視を開始しました")
	defer log.Debug("[Sweeper] アクティブ化の監視を終了しました")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notifier.Activations():
			s.Trigger(ctx)
			// 掃除中に届いた通知は積まずに捨てる
			select {
			case <-s.notifier.Activations():
				log.Debug("[Sweeper] 掃除中に届いた通知をスキップしました")
			default:
			}
		}
	}
}
