// Package scheduler owns the probe runners: one goroutine per runner,
// independent fixed-rate ticking, and a two-phase shutdown that drains
// in-flight probe executions before forcing cancellation.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	errNilProbe    = errors.New("runner requires a probe")
	errBadInterval = errors.New("runner interval must be positive")
	errNoDataType  = errors.New("runner requires a data type")
	errStarted     = errors.New("scheduler already started")
)

const defaultStopGrace = 5 * time.Second

type Scheduler struct {
	logger *slog.Logger
	grace  time.Duration

	mu      sync.Mutex
	runners []*Runner
	started bool
	stopped bool

	tickCancel context.CancelFunc
	execCancel context.CancelFunc
	wg         sync.WaitGroup
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithStopGrace(grace time.Duration) Option {
	return func(s *Scheduler) {
		if grace > 0 {
			s.grace = grace
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{grace: defaultStopGrace}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a runner. Registration is rejected once started.
func (s *Scheduler) Register(r *Runner) error {
	if r == nil {
		return errNilProbe
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errStarted
	}
	s.runners = append(s.runners, r)
	return nil
}

// Start launches every registered runner on its own goroutine. A
// panicking runner is isolated and reported; its siblings keep ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errStarted
	}
	s.started = true

	tickCtx, tickCancel := context.WithCancel(ctx)
	// Execution deliberately does not inherit ctx: cancelling the
	// parent (a shutdown signal) stops new ticks, while in-flight runs
	// keep their context until Stop's grace period expires.
	execCtx, execCancel := context.WithCancel(context.Background())
	s.tickCancel = tickCancel
	s.execCancel = execCancel
	runners := s.runners
	s.mu.Unlock()

	for _, r := range runners {
		r := r
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if v := recover(); v != nil && s.logger != nil {
					s.logger.Error("runner panicked", "probe", r.Name(), "panic", v)
				}
			}()
			r.loop(tickCtx, execCtx)
		}()
	}
	return nil
}

// Stop shuts the scheduler down: no new ticks are accepted, in-flight
// probe executions get the grace period to finish, then are cancelled.
// Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tickCancel := s.tickCancel
	execCancel := s.execCancel
	s.mu.Unlock()

	tickCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.grace):
		execCancel()
		<-done
	}
	execCancel()
}

// Runners returns the number of registered runners.
func (s *Scheduler) Runners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runners)
}
