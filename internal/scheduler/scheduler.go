// Package scheduler drives the recurring inbox polling cycle. A single
// cron entry fires at a fixed interval; cycles never overlap, and a
// fire that arrives too late after its due time is skipped instead of
// compressing the schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/replykit-io/replykit/internal/metrics"
	"github.com/replykit-io/replykit/internal/models"
)

// ErrCycleInProgress is returned by TriggerNow when a polling cycle is
// already running.
var ErrCycleInProgress = errors.New("scheduler: polling cycle already in progress")

// ErrNotRunning is returned when an operation needs a started scheduler.
var ErrNotRunning = errors.New("scheduler: not running")

// CycleFunc runs one full polling cycle across all accounts and
// reports what happened per account.
type CycleFunc func(ctx context.Context) []models.ProcessingResult

// Scheduler fires the polling cycle on an interval.
type Scheduler struct {
	cycle        CycleFunc
	interval     time.Duration
	misfireGrace time.Duration
	cycleTimeout time.Duration
	logger       *log.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
	due     time.Time

	// flight is held for the duration of one cycle. TryLock gives the
	// overlap guard without queueing blocked cycles behind it.
	flight sync.Mutex
	wg     sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics attaches tick counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithCycleTimeout bounds how long one polling cycle may run.
func WithCycleTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.cycleTimeout = timeout
		}
	}
}

// New builds a scheduler that runs cycle every interval. Fires that
// land more than misfireGrace past their due time are skipped.
func New(cycle CycleFunc, interval, misfireGrace time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if misfireGrace <= 0 {
		misfireGrace = 30 * time.Second
	}
	s := &Scheduler{
		cycle:        cycle,
		interval:     interval,
		misfireGrace: misfireGrace,
		cycleTimeout: interval,
		logger:       log.New(os.Stdout, "[SCHEDULER] ", log.LstdFlags),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the polling entry and begins firing. An immediate
// first cycle runs in the background so a fresh process checks mail
// right away instead of waiting out the first interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()

	spec := fmt.Sprintf("@every %s", s.interval)
	entryID, err := s.cron.AddFunc(spec, s.onFire)
	if err != nil {
		s.cancel()
		return fmt.Errorf("schedule polling entry: %w", err)
	}
	s.entryID = entryID
	s.due = s.now().Add(s.interval)
	s.cron.Start()
	s.running = true
	s.logger.Printf("started, polling every %s (misfire grace %s)", s.interval, s.misfireGrace)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle("startup")
	}()
	return nil
}

// Stop halts the schedule and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cronCtx := s.cron.Stop()
	s.cancel()
	s.mu.Unlock()

	<-cronCtx.Done()
	s.wg.Wait()
	s.logger.Println("stopped")
}

// Restart stops a running scheduler and starts it again. Starting a
// stopped scheduler is also fine.
func (s *Scheduler) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// TriggerNow starts one polling cycle immediately in the background.
// It reports ErrCycleInProgress without queueing when one is running.
func (s *Scheduler) TriggerNow() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	if !s.flight.TryLock() {
		if s.metrics != nil {
			s.metrics.TicksRejected.Inc()
		}
		return ErrCycleInProgress
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.flight.Unlock()
		s.execute("manual")
	}()
	return nil
}

// Status reports whether the scheduler runs, when the polling entry
// fires next, and how many entries are registered.
func (s *Scheduler) Status() models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.SchedulerStatus{Running: s.running}
	if !s.running || s.cron == nil {
		return status
	}
	status.JobCount = len(s.cron.Entries())
	entry := s.cron.Entry(s.entryID)
	if !entry.Next.IsZero() {
		next := entry.Next
		status.NextRunTime = &next
	}
	return status
}

func (s *Scheduler) onFire() {
	now := s.now()

	s.mu.Lock()
	due := s.due
	s.due = now.Add(s.interval)
	s.mu.Unlock()

	if !due.IsZero() && now.Sub(due) > s.misfireGrace {
		s.logger.Printf("skipping fire %s past its due time", now.Sub(due))
		if s.metrics != nil {
			s.metrics.TicksSkipped.Inc()
		}
		return
	}
	s.runCycle("interval")
}

func (s *Scheduler) runCycle(reason string) {
	if !s.flight.TryLock() {
		s.logger.Printf("%s fire skipped, cycle still in progress", reason)
		if s.metrics != nil {
			s.metrics.TicksSkipped.Inc()
		}
		return
	}
	defer s.flight.Unlock()
	s.execute(reason)
}

func (s *Scheduler) execute(reason string) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	if base == nil || base.Err() != nil {
		return
	}

	ctx, cancelFn := context.WithTimeout(base, s.cycleTimeout)
	defer cancelFn()

	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
	}

	start := s.now()
	results := s.cycle(ctx)
	elapsed := s.now().Sub(start)

	var summary models.ProcessingResult
	for _, result := range results {
		summary.Merge(result)
	}
	s.logger.Printf("%s cycle done in %v: %d attempted, %d sent, %d skipped, %d failed across %d account(s)",
		reason, elapsed, summary.Attempted, summary.Sent, summary.Skipped, summary.Failed, len(results))
}
