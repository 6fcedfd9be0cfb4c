package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/parkwait/internal/ingest"
	"github.com/neexbeast/parkwait/internal/scheduler"
)

var defaultConfig = scheduler.Config{
	Default: 10 * time.Minute,
	Short:   15 * time.Minute,
	Long:    30 * time.Minute,
}

// fakeRunner returns queued outcomes in order, repeating the last one.
type fakeRunner struct {
	mu       sync.Mutex
	outcomes []outcome
	calls    atomic.Int32
	started  chan struct{}
	release  chan struct{}
}

type outcome struct {
	res   *ingest.Result
	err   error
	panic any
	delay time.Duration
}

func (f *fakeRunner) RunOnce(context.Context) (*ingest.Result, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	o := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	f.mu.Unlock()

	time.Sleep(o.delay)
	if o.panic != nil {
		panic(o.panic)
	}
	return o.res, o.err
}

func ok(operating int, lowSignal bool) outcome {
	return outcome{res: &ingest.Result{OperatingCount: operating, LowSignal: lowSignal}}
}

func failed(msg string) outcome {
	return outcome{err: errors.New(msg)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatus_Initial(t *testing.T) {
	s := scheduler.New(&fakeRunner{outcomes: []outcome{ok(10, false)}}, defaultConfig, discardLogger())

	st := s.Status()
	assert.Nil(t, st.LastSuccess)
	assert.Nil(t, st.LastError)
	assert.Equal(t, 10, st.PollMinutes)
	assert.True(t, st.Healthy())
}

func TestTrigger_LowSignalWidensInterval(t *testing.T) {
	s := scheduler.New(&fakeRunner{outcomes: []outcome{ok(4, true)}}, defaultConfig, discardLogger())

	require.True(t, s.Trigger(context.Background()))

	st := s.Status()
	assert.Equal(t, 30, st.PollMinutes)
	assert.NotNil(t, st.LastSuccess, "low-signal runs still count as success")
	assert.True(t, st.Healthy())
}

func TestTrigger_HealthyRunNarrowsInterval(t *testing.T) {
	runner := &fakeRunner{outcomes: []outcome{ok(4, true), ok(10, false)}}
	s := scheduler.New(runner, defaultConfig, discardLogger())

	s.Trigger(context.Background())
	assert.Equal(t, 30, s.Status().PollMinutes)

	s.Trigger(context.Background())
	assert.Equal(t, 15, s.Status().PollMinutes)
}

func TestTrigger_ErrorKeepsInterval(t *testing.T) {
	runner := &fakeRunner{outcomes: []outcome{ok(4, true), failed("destination not found")}}
	s := scheduler.New(runner, defaultConfig, discardLogger())

	s.Trigger(context.Background())
	s.Trigger(context.Background())

	st := s.Status()
	assert.Equal(t, 30, st.PollMinutes)
	require.NotNil(t, st.LastError)
	assert.Equal(t, "destination not found", *st.LastError)
}

func TestHealth_Transitions(t *testing.T) {
	runner := &fakeRunner{outcomes: []outcome{failed("boom"), ok(10, false), failed("again")}}
	s := scheduler.New(runner, defaultConfig, discardLogger())
	ctx := context.Background()

	s.Trigger(ctx)
	st := s.Status()
	assert.False(t, st.Healthy(), "error with no prior success is unhealthy")
	assert.Nil(t, st.LastSuccess)

	s.Trigger(ctx)
	st = s.Status()
	assert.True(t, st.Healthy())
	assert.Nil(t, st.LastError, "success clears the last error")
	require.NotNil(t, st.LastSuccess)

	s.Trigger(ctx)
	st = s.Status()
	assert.True(t, st.Healthy(), "an earlier success keeps the status healthy")
	require.NotNil(t, st.LastError)
	assert.Equal(t, "again", *st.LastError)
}

func TestTrigger_PanicIsRecorded(t *testing.T) {
	s := scheduler.New(&fakeRunner{outcomes: []outcome{{panic: "nil map"}}}, defaultConfig, discardLogger())

	require.True(t, s.Trigger(context.Background()))

	st := s.Status()
	require.NotNil(t, st.LastError)
	assert.Contains(t, *st.LastError, "nil map")
	assert.Equal(t, 10, st.PollMinutes)

	// The guard is released after a panic.
	assert.True(t, s.TriggerAsync(context.Background()))
	s.Wait()
}

func TestTrigger_SingleFlight(t *testing.T) {
	runner := &fakeRunner{
		outcomes: []outcome{ok(10, false)},
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	s := scheduler.New(runner, defaultConfig, discardLogger())
	ctx := context.Background()

	require.True(t, s.TriggerAsync(ctx))
	<-runner.started

	assert.False(t, s.Trigger(ctx))
	assert.False(t, s.TriggerAsync(ctx))

	close(runner.release)
	s.Wait()

	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, 15, s.Status().PollMinutes)
	assert.NotNil(t, s.Status().LastSuccess)
}

func TestStart_ImmediateRunThenTicks(t *testing.T) {
	runner := &fakeRunner{outcomes: []outcome{ok(10, false)}}
	cfg := scheduler.Config{Default: 5 * time.Millisecond, Short: 5 * time.Millisecond, Long: time.Hour}
	s := scheduler.New(runner, cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStart_RearmsAfterIntervalChange(t *testing.T) {
	runner := &fakeRunner{outcomes: []outcome{ok(10, false)}}
	cfg := scheduler.Config{Default: time.Hour, Short: 5 * time.Millisecond, Long: time.Hour}
	s := scheduler.New(runner, cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	// With the default of one hour only the immediate run would happen; more
	// calls prove the ticker picked up the short interval.
	require.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestStart_LowSignalSlowsTicks(t *testing.T) {
	runner := &fakeRunner{outcomes: []outcome{ok(2, true)}}
	cfg := scheduler.Config{Default: 5 * time.Millisecond, Short: 5 * time.Millisecond, Long: time.Hour}
	s := scheduler.New(runner, cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, 60, s.Status().PollMinutes)
}

func TestStart_RunLongerThanIntervalDropsMissedTicks(t *testing.T) {
	slowLowSignal := ok(2, true)
	slowLowSignal.delay = 60 * time.Millisecond
	cfg := scheduler.Config{Default: 20 * time.Millisecond, Short: 20 * time.Millisecond, Long: time.Hour}

	for i := 0; i < 10; i++ {
		runner := &fakeRunner{outcomes: []outcome{ok(10, false), slowLowSignal}}
		s := scheduler.New(runner, cfg, discardLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = s.Start(ctx)
		}()

		require.Eventually(t, func() bool { return s.Status().PollMinutes == 60 }, 2*time.Second, time.Millisecond)
		time.Sleep(80 * time.Millisecond)

		// Ticks that fired during the slow run must not start another one.
		assert.Equal(t, int32(2), runner.calls.Load(), "iteration %d", i)

		cancel()
		<-done
	}
}

func TestStart_SteadyIntervalCountsFromCompletion(t *testing.T) {
	slow := ok(10, false)
	slow.delay = 50 * time.Millisecond
	runner := &fakeRunner{outcomes: []outcome{slow}}
	cfg := scheduler.Config{Default: 20 * time.Millisecond, Short: 20 * time.Millisecond, Long: time.Hour}
	s := scheduler.New(runner, cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	time.Sleep(260 * time.Millisecond)

	// Each cycle is 50ms of work plus 20ms of waiting, so runs start at
	// 0, 70, 140 and 210ms at the earliest.
	assert.LessOrEqual(t, runner.calls.Load(), int32(4))
	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
}
