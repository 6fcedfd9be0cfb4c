// Package scheduler drives the ingestion pipeline on an adaptive interval and
// keeps the liveness state reported by the health endpoint.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/neexbeast/parkwait/internal/ingest"
)

// Runner executes one ingestion run. *ingest.Pipeline satisfies it.
type Runner interface {
	RunOnce(ctx context.Context) (*ingest.Result, error)
}

// Config holds the three polling intervals.
type Config struct {
	// Default is the interval armed at start, before any run has completed.
	Default time.Duration
	// Short is used after a run that met the operating threshold.
	Short time.Duration
	// Long is used after a low-signal run.
	Long time.Duration
}

// Status is a point-in-time copy of the liveness state.
type Status struct {
	LastSuccess *time.Time `json:"lastSuccess"`
	LastError   *string    `json:"lastError"`
	PollMinutes int        `json:"pollMinutes"`
}

// Healthy reports whether a run has ever succeeded or no error is recorded.
func (s Status) Healthy() bool {
	return s.LastSuccess != nil || s.LastError == nil
}

// Scheduler runs at most one pipeline execution at a time. Triggers that
// arrive while a run is in flight are dropped.
type Scheduler struct {
	runner Runner
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	running     bool
	lastSuccess *time.Time
	lastError   string
	interval    time.Duration

	// rearm carries a new interval to the ticker loop.
	rearm chan time.Duration
	wg    sync.WaitGroup
}

func New(runner Runner, cfg Config, log *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		interval: cfg.Default,
		rearm:    make(chan time.Duration, 1),
	}
}

// Start performs one immediate run, then triggers a run on every tick until
// ctx is cancelled. The ticker is re-armed when a run completes, so the next
// run is one interval after the previous completion and ticks that fire
// mid-run are dropped. Start waits for any
// in-flight asynchronous run before returning ctx.Err().
func (s *Scheduler) Start(ctx context.Context) error {
	s.log.Info("scheduler starting", "poll_minutes", s.Status().PollMinutes)
	s.Trigger(ctx)

	ticker := time.NewTicker(s.currentInterval())
	defer ticker.Stop()
	s.drainRearm()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case d := <-s.rearm:
			// Interval changed by an asynchronous run.
			ticker.Reset(d)
		case <-ticker.C:
			if s.Trigger(ctx) {
				// Counting restarts at completion. Reset also discards a
				// tick that fired while the run was in flight.
				s.drainRearm()
				ticker.Reset(s.currentInterval())
			}
		}
	}
}

// drainRearm discards a pending re-arm left by a synchronous run, which
// the loop applies itself.
func (s *Scheduler) drainRearm() {
	select {
	case <-s.rearm:
	default:
	}
}

// Trigger runs the pipeline synchronously. It returns false without running
// when another run is in flight.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.acquire() {
		return false
	}
	s.run(ctx)
	return true
}

// TriggerAsync claims the single-flight guard and runs the pipeline in a new
// goroutine. It returns false when another run is in flight.
func (s *Scheduler) TriggerAsync(ctx context.Context) bool {
	if !s.acquire() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return true
}

// Wait blocks until asynchronous runs started by TriggerAsync have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Status returns the liveness state. It has no side effects.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{PollMinutes: int(math.Round(s.interval.Minutes()))}
	if s.lastSuccess != nil {
		t := *s.lastSuccess
		st.LastSuccess = &t
	}
	if s.lastError != "" {
		e := s.lastError
		st.LastError = &e
	}
	return st
}

func (s *Scheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Info("ingestion already running, trigger dropped")
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// run executes the pipeline and records the outcome. The caller must hold
// the single-flight guard; run releases it.
func (s *Scheduler) run(ctx context.Context) {
	started := s.now()
	res, err := s.runSafely(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false

	if err != nil {
		s.lastError = err.Error()
		s.log.Error("ingestion run failed", "err", err, "elapsed", s.now().Sub(started))
		return
	}

	finished := s.now()
	s.lastSuccess = &finished
	s.lastError = ""

	next := s.cfg.Short
	if res != nil && res.LowSignal {
		next = s.cfg.Long
	}
	if next != s.interval {
		s.log.Info("poll interval changed", "from", s.interval, "to", next)
		s.interval = next
		s.signalRearm(next)
	}
}

func (s *Scheduler) runSafely(ctx context.Context) (res *ingest.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panicked: %v", r)
		}
	}()
	return s.runner.RunOnce(ctx)
}

// signalRearm replaces any pending interval with d. Callers hold s.mu, so
// the channel is empty after the drain and the send never blocks.
func (s *Scheduler) signalRearm(d time.Duration) {
	select {
	case <-s.rearm:
	default:
	}
	s.rearm <- d
}
