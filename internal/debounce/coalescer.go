package debounce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

const (
	DefaultWindow      = 10 * time.Second
	DefaultGuardMargin = time.Second
)

// Batch outcomes reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
	OutcomePartial = "partial"
)

// TurnHandler consumes coalesced input.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn conversation.Turn) error
	HandleInteractive(ctx context.Context, msg conversation.InboundMessage) error
}

// Observer receives coalescer events. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveEnqueued()
	ObserveScheduled()
	ObserveGuardHit()
	ObserveBatch(size int, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveEnqueued()         {}
func (nopObserver) ObserveScheduled()        {}
func (nopObserver) ObserveGuardHit()         {}
func (nopObserver) ObserveBatch(int, string) {}

// Coalescer buffers inbound messages per sender and runs one processing pass
// per debounce window.
type Coalescer struct {
	buffer    Buffer
	handler   TurnHandler
	scheduler Scheduler
	logger    *logging.Logger
	observer  Observer
	tracer    trace.Tracer

	window  time.Duration
	margin  time.Duration
	workers int
	timer   *TimerScheduler
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithWindow sets the debounce window. Zero disables buffering: every
// message is processed inline as its own batch.
func WithWindow(d time.Duration) Option {
	return func(c *Coalescer) {
		if d >= 0 {
			c.window = d
		}
	}
}

// WithGuardMargin extends the guard TTL beyond the window.
func WithGuardMargin(d time.Duration) Option {
	return func(c *Coalescer) {
		if d >= 0 {
			c.margin = d
		}
	}
}

// WithScheduler replaces the built-in timer scheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Coalescer) { c.scheduler = s }
}

// WithPoolSize sets the worker count of the built-in timer scheduler.
func WithPoolSize(n int) Option {
	return func(c *Coalescer) { c.workers = n }
}

// WithObserver installs a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Coalescer) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCoalescer wires a buffer to a handler. Without WithScheduler a
// TimerScheduler bound to Process is started; call Close to drain it.
func NewCoalescer(buffer Buffer, handler TurnHandler, logger *logging.Logger, opts ...Option) *Coalescer {
	if buffer == nil {
		panic("debounce: buffer cannot be nil")
	}
	if handler == nil {
		panic("debounce: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Coalescer{
		buffer:   buffer,
		handler:  handler,
		logger:   logger,
		observer: nopObserver{},
		tracer:   otel.Tracer("gateway.internal.debounce"),
		window:   DefaultWindow,
		margin:   DefaultGuardMargin,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil && c.window > 0 {
		c.timer = NewTimerScheduler(c.Process, c.workers, logger)
		c.scheduler = c.timer
	}
	return c
}

// Window returns the configured debounce window.
func (c *Coalescer) Window() time.Duration { return c.window }

// Enqueue appends msg to its sender's batch and schedules a pass if none is
// pending. Appending happens before the guard check so a pass that drains
// concurrently either sees the message or leaves the guard free for this call.
// Enqueue is safe to retry with the same message after an error: the batch
// keeps one copy per message ID and a failed schedule releases the guard.
func (c *Coalescer) Enqueue(ctx context.Context, msg conversation.InboundMessage) error {
	sender := strings.TrimSpace(msg.Sender)
	if sender == "" {
		return errors.Join(conversation.ErrInvalidMessage, errors.New("sender is required"))
	}
	c.observer.ObserveEnqueued()

	if c.window == 0 {
		c.processBatch(ctx, sender, []conversation.InboundMessage{msg})
		return nil
	}

	if err := c.buffer.Append(ctx, sender, msg, 2*c.window); err != nil {
		return err
	}
	acquired, err := c.buffer.AcquireGuard(ctx, sender, c.window+c.margin)
	if err != nil {
		return err
	}
	if !acquired {
		c.observer.ObserveGuardHit()
		c.logger.Debug("debounce pass already scheduled", "sender", sender)
		return nil
	}
	if err := c.scheduler.Schedule(ctx, sender, c.window); err != nil {
		// The message stays buffered; a redelivery or the next message
		// must be able to schedule the pass.
		if relErr := c.buffer.ReleaseGuard(ctx, sender); relErr != nil {
			c.logger.Error("failed to release debounce guard", "sender", sender, "error", relErr)
		}
		return fmt.Errorf("debounce: schedule pass: %w", err)
	}
	c.observer.ObserveScheduled()
	c.logger.Debug("debounce pass scheduled", "sender", sender, "window", c.window.String())
	return nil
}

// Process drains the sender's batch and hands it to the handler. An empty
// batch is a no-op. Handler errors are logged; the batch is consumed either way.
func (c *Coalescer) Process(ctx context.Context, sender string) error {
	ctx, span := c.tracer.Start(ctx, "debounce.process", trace.WithAttributes(attribute.String("sender", sender)))
	defer span.End()

	batch, err := c.buffer.Drain(ctx, sender)
	if err != nil {
		span.RecordError(err)
		c.observer.ObserveBatch(0, OutcomeFailed)
		return err
	}
	if len(batch) == 0 {
		c.observer.ObserveBatch(0, OutcomeEmpty)
		c.logger.Debug("debounce pass found no messages", "sender", sender)
		return nil
	}
	span.SetAttributes(attribute.Int("batch.size", len(batch)))
	c.processBatch(ctx, sender, batch)
	return nil
}

func (c *Coalescer) processBatch(ctx context.Context, sender string, batch []conversation.InboundMessage) {
	segments := segment(batch)
	failures := 0
	for _, seg := range segments {
		var err error
		if seg.interactive != nil {
			err = c.handler.HandleInteractive(ctx, *seg.interactive)
		} else {
			err = c.handler.HandleTurn(ctx, conversation.NewTurn(seg.texts))
		}
		if err != nil {
			failures++
			c.logger.Error("processing coalesced input failed", "sender", sender, "error", err)
		}
	}

	outcome := OutcomeOK
	switch {
	case len(segments) == 0:
		outcome = OutcomeEmpty
	case failures == len(segments):
		outcome = OutcomeFailed
	case failures > 0:
		outcome = OutcomePartial
	}
	c.observer.ObserveBatch(len(batch), outcome)
	c.logger.Info("processed coalesced batch", "sender", sender, "messages", len(batch), "segments", len(segments), "outcome", outcome)
}

// Close drains the built-in timer scheduler, if any.
func (c *Coalescer) Close() {
	if c.timer != nil {
		c.timer.Close()
	}
}

type batchSegment struct {
	texts       []conversation.InboundMessage
	interactive *conversation.InboundMessage
}

// segment groups contiguous text messages; everything else stands alone.
func segment(batch []conversation.InboundMessage) []batchSegment {
	var out []batchSegment
	for i := range batch {
		msg := batch[i]
		if !msg.IsText() {
			out = append(out, batchSegment{interactive: &msg})
			continue
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].interactive == nil {
			out[n-1].texts = append(out[n-1].texts, msg)
			continue
		}
		out = append(out, batchSegment{texts: []conversation.InboundMessage{msg}})
	}
	return out
}
