package debounce

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// ProcessFunc runs one deferred processing pass for a sender.
type ProcessFunc func(ctx context.Context, sender string) error

// Scheduler defers one processing pass for sender by delay.
type Scheduler interface {
	Schedule(ctx context.Context, sender string, delay time.Duration) error
}

// ErrSchedulerClosed is returned by Schedule after Close.
var ErrSchedulerClosed = errors.New("debounce: scheduler closed")

const (
	defaultPoolSize       = 8
	defaultProcessTimeout = 2 * time.Minute
)

type pendingTimer struct {
	timer  *time.Timer
	sender string
}

// TimerScheduler fires passes with time.AfterFunc and runs them on a bounded
// worker pool, so many senders are processed in parallel without a goroutine
// per pass. Panics inside a pass are recovered and logged.
type TimerScheduler struct {
	process        ProcessFunc
	logger         *logging.Logger
	processTimeout time.Duration

	jobs     chan string
	workers  sync.WaitGroup
	inflight sync.WaitGroup

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]pendingTimer
	closed  bool
}

// TimerOption configures a TimerScheduler.
type TimerOption func(*TimerScheduler)

// WithProcessTimeout bounds the context handed to each pass.
func WithProcessTimeout(d time.Duration) TimerOption {
	return func(s *TimerScheduler) {
		if d > 0 {
			s.processTimeout = d
		}
	}
}

// NewTimerScheduler starts a pool of workers running process.
func NewTimerScheduler(process ProcessFunc, workers int, logger *logging.Logger, opts ...TimerOption) *TimerScheduler {
	if process == nil {
		panic("debounce: process func cannot be nil")
	}
	if workers <= 0 {
		workers = defaultPoolSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &TimerScheduler{
		process:        process,
		logger:         logger,
		processTimeout: defaultProcessTimeout,
		jobs:           make(chan string, workers),
		pending:        make(map[uint64]pendingTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.loop()
	}
	return s
}

// Schedule runs a pass for sender once delay elapses.
func (s *TimerScheduler) Schedule(_ context.Context, sender string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = pendingTimer{
		sender: sender,
		timer:  time.AfterFunc(delay, func() { s.fire(id) }),
	}
	return nil
}

func (s *TimerScheduler) fire(id uint64) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok {
		// Close took ownership of this pass.
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.inflight.Add(1)
	s.mu.Unlock()

	s.jobs <- p.sender
	s.inflight.Done()
}

func (s *TimerScheduler) loop() {
	defer s.workers.Done()
	for sender := range s.jobs {
		s.run(sender)
	}
}

func (s *TimerScheduler) run(sender string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("debounce pass panicked", "sender", sender, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), s.processTimeout)
	defer cancel()
	if err := s.process(ctx, sender); err != nil {
		s.logger.Error("debounce pass failed", "sender", sender, "error", err)
	}
}

// Close stops accepting new passes, runs every pending pass immediately and
// waits for the pool to finish.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	flush := make([]string, 0, len(s.pending))
	for id, p := range s.pending {
		p.timer.Stop()
		flush = append(flush, p.sender)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	for _, sender := range flush {
		s.jobs <- sender
	}
	s.inflight.Wait()
	close(s.jobs)
	s.workers.Wait()
}
