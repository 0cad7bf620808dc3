package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scheduler_interfaces "github.com/watanabetatsumi/nutricache/internal/application/interface/scheduler"
	"github.com/watanabetatsumi/nutricache/internal/infrastructure/repository"
	"github.com/watanabetatsumi/nutricache/internal/infrastructure/repository/plugins"
	"github.com/watanabetatsumi/nutricache/internal/utils"
)

var _ scheduler_interfaces.LifecycleNotifier = (*Notifier)(nil)

var start = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fakeCleaner struct {
	calls   atomic.Int32
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeCleaner) CleanupExpired(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return 2, f.err
}

func newMarker() *repository.FactRepository {
	return repository.NewFactRepository(plugins.NewMemoryClient())
}

func TestStartSweepsWhenNeverCleaned(t *testing.T) {
	cleaner := &fakeCleaner{}
	marker := newMarker()
	clock := utils.NewManualClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSweeper(cleaner, marker, nil, WithClock(clock))
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	assert.Equal(t, int32(1), cleaner.calls.Load())
	last, ok, err := marker.LastCleanup(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, start.Equal(last))
}

func TestStartSkipsRecentCleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	marker := newMarker()
	clock := utils.NewManualClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, marker.SetLastCleanup(ctx, start.Add(-30*time.Minute)))

	s := NewSweeper(cleaner, marker, nil, WithClock(clock), WithInterval(time.Hour))
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	assert.Equal(t, int32(0), cleaner.calls.Load())
}

func TestStartSweepsAfterInterval(t *testing.T) {
	cleaner := &fakeCleaner{}
	marker := newMarker()
	clock := utils.NewManualClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, marker.SetLastCleanup(ctx, start.Add(-61*time.Minute)))

	s := NewSweeper(cleaner, marker, nil, WithClock(clock), WithInterval(time.Hour))
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	assert.Equal(t, int32(1), cleaner.calls.Load())
}

func TestFailedSweepKeepsMarker(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("store unavailable")}
	marker := newMarker()
	clock := utils.NewManualClock(start)
	ctx := context.Background()

	previous := start.Add(-2 * time.Hour)
	require.NoError(t, marker.SetLastCleanup(ctx, previous))

	s := NewSweeper(cleaner, marker, nil, WithClock(clock))
	assert.True(t, s.Trigger(ctx))

	last, ok, err := marker.LastCleanup(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, previous.Equal(last))
}

func TestTriggerCoalesces(t *testing.T) {
	cleaner := &fakeCleaner{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := NewSweeper(cleaner, newMarker(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.True(t, s.Trigger(ctx))
	}()
	<-cleaner.entered

	for i := 0; i < 5; i++ {
		assert.False(t, s.Trigger(ctx))
	}

	close(cleaner.block)
	wg.Wait()
	assert.Equal(t, int32(1), cleaner.calls.Load())

	// 実行が終われば再びトリガーできる
	cleaner.entered = nil
	assert.True(t, s.Trigger(ctx))
	assert.Equal(t, int32(2), cleaner.calls.Load())
}

func TestActivationTriggersSweep(t *testing.T) {
	cleaner := &fakeCleaner{}
	marker := newMarker()
	clock := utils.NewManualClock(start)
	notifier := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, marker.SetLastCleanup(ctx, start))

	s := NewSweeper(cleaner, marker, notifier, WithClock(clock))
	require.NoError(t, s.Start(ctx))
	defer s.Stop()
	require.Equal(t, int32(0), cleaner.calls.Load())

	notifier.Notify()
	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleRunsSweeps(t *testing.T) {
	cleaner := &fakeCleaner{}
	marker := newMarker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, marker.SetLastCleanup(ctx, time.Now()))

	s := NewSweeper(cleaner, marker, nil, WithSchedule("@every 1s"))
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(&fakeCleaner{}, newMarker(), nil, WithSchedule("not a schedule"))
	assert.Error(t, s.Start(context.Background()))
}

func TestNotifyNeverBlocks(t *testing.T) {
	n := NewNotifier()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			n.Notify()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}

	<-n.Activations()
	select {
	case <-n.Activations():
		t.Fatal("extra notifications must collapse")
	default:
	}
}

func TestActivationDuringSweepIsDropped(t *testing.T) {
	cleaner := &fakeCleaner{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	marker := newMarker()
	clock := utils.NewManualClock(start)
	notifier := NewNotifier()
	ctx := context.Background()

	require.NoError(t, marker.SetLastCleanup(ctx, start))

	s := NewSweeper(cleaner, marker, notifier, WithClock(clock))
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	notifier.Notify()
	<-cleaner.entered

	// 掃除中の通知はキューに積まれない
	notifier.Notify()
	close(cleaner.block)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), cleaner.calls.Load())

	// 掃除が終わった後の通知は再び受け付ける
	notifier.Notify()
	<-cleaner.entered
	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestStopWaitsForActivationSweep(t *testing.T) {
	cleaner := &fakeCleaner{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	marker := newMarker()
	clock := utils.NewManualClock(start)
	notifier := NewNotifier()
	ctx := context.Background()

	require.NoError(t, marker.SetLastCleanup(ctx, start))

	s := NewSweeper(cleaner, marker, notifier, WithClock(clock))
	require.NoError(t, s.Start(ctx))

	notifier.Notify()
	<-cleaner.entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sweep was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(cleaner.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the sweep finished")
	}
}
