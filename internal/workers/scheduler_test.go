package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

type mockWorker struct {
	*BaseWorker
	runCount int32
	runFunc  func(ctx context.Context) error
}

func newMockWorker(name string, interval time.Duration, enabled bool) *mockWorker {
	return &mockWorker{
		BaseWorker: NewBaseWorker(name, interval, enabled, logger.Nop()),
	}
}

func (m *mockWorker) Run(ctx context.Context) error {
	atomic.AddInt32(&m.runCount, 1)
	if m.runFunc != nil {
		return m.runFunc(ctx)
	}
	return nil
}

func (m *mockWorker) runs() int {
	return int(atomic.LoadInt32(&m.runCount))
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler := NewScheduler(time.Second, logger.Nop())

	worker := newMockWorker("ticker", 20*time.Millisecond, true)
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.True(t, scheduler.IsRunning())

	assert.Eventually(t, func() bool { return worker.runs() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, scheduler.Stop())
	assert.False(t, scheduler.IsRunning())

	health := worker.Health()
	assert.GreaterOrEqual(t, health.RunCount, int64(2))
	assert.Zero(t, health.ErrorCount)
	assert.False(t, health.LastRun.IsZero())
}

func TestScheduler_SkipsDisabledWorkers(t *testing.T) {
	scheduler := NewScheduler(time.Second, logger.Nop())

	enabled := newMockWorker("enabled", 10*time.Millisecond, true)
	disabled := newMockWorker("disabled", 10*time.Millisecond, false)
	scheduler.RegisterWorker(enabled)
	scheduler.RegisterWorker(disabled)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Eventually(t, func() bool { return enabled.runs() >= 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.Zero(t, disabled.runs())
	assert.Len(t, scheduler.GetWorkers(), 2)
}

func TestScheduler_RecordsErrors(t *testing.T) {
	scheduler := NewScheduler(time.Second, logger.Nop())

	worker := newMockWorker("failing", time.Hour, true)
	worker.runFunc = func(context.Context) error { return errors.New("boom") }
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Eventually(t, func() bool { return worker.Health().ErrorCount == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, scheduler.Stop())

	health := worker.Health()
	require.Error(t, health.LastError)
	assert.Contains(t, health.LastError.Error(), "boom")
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	scheduler := NewScheduler(time.Second, logger.Nop())

	worker := newMockWorker("panicking", 10*time.Millisecond, true)
	worker.runFunc = func(context.Context) error { panic("kaboom") }
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Eventually(t, func() bool { return worker.runs() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, scheduler.Stop())

	health := worker.Health()
	assert.GreaterOrEqual(t, health.ErrorCount, int64(2))
	assert.Contains(t, health.LastError.Error(), "kaboom")
}

func TestScheduler_StartTwice(t *testing.T) {
	scheduler := NewScheduler(time.Second, logger.Nop())
	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	assert.Error(t, scheduler.Start(context.Background()))
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(time.Second, logger.Nop())
	assert.Error(t, scheduler.Stop())
}

func TestScheduler_RegisterAfterStartIgnored(t *testing.T) {
	scheduler := NewScheduler(time.Second, logger.Nop())
	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	scheduler.RegisterWorker(newMockWorker("late", time.Second, true))
	assert.Empty(t, scheduler.GetWorkers())
}

func TestScheduler_StopTimesOut(t *testing.T) {
	scheduler := NewScheduler(20*time.Millisecond, logger.Nop())

	release := make(chan struct{})
	defer close(release)

	worker := newMockWorker("stuck", time.Hour, true)
	worker.runFunc = func(context.Context) error {
		<-release
		return nil
	}
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Eventually(t, func() bool { return worker.runs() == 1 }, time.Second, 5*time.Millisecond)

	err := scheduler.Stop()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
}
