package debounce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

type recordingHandler struct {
	mu          sync.Mutex
	turns       []conversation.Turn
	interactive []conversation.InboundMessage
	order       []string
	turnErr     error
	done        chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleTurn(_ context.Context, turn conversation.Turn) error {
	h.mu.Lock()
	h.turns = append(h.turns, turn)
	h.order = append(h.order, "turn:"+turn.Text)
	h.mu.Unlock()
	h.done <- struct{}{}
	return h.turnErr
}

func (h *recordingHandler) HandleInteractive(_ context.Context, msg conversation.InboundMessage) error {
	h.mu.Lock()
	h.interactive = append(h.interactive, msg)
	h.order = append(h.order, "interactive:"+msg.Payload)
	h.mu.Unlock()
	h.done <- struct{}{}
	return nil
}

func (h *recordingHandler) snapshot() ([]conversation.Turn, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]conversation.Turn(nil), h.turns...), append([]string(nil), h.order...)
}

type countingScheduler struct {
	calls   atomic.Int32
	senders chan string
	err     error
}

func newCountingScheduler() *countingScheduler {
	return &countingScheduler{senders: make(chan string, 64)}
}

func (s *countingScheduler) Schedule(_ context.Context, sender string, _ time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.calls.Add(1)
	s.senders <- sender
	return nil
}

type countingObserver struct {
	enqueued, scheduled, guardHits atomic.Int32
	mu                             sync.Mutex
	outcomes                       []string
}

func (o *countingObserver) ObserveEnqueued()  { o.enqueued.Add(1) }
func (o *countingObserver) ObserveScheduled() { o.scheduled.Add(1) }
func (o *countingObserver) ObserveGuardHit()  { o.guardHits.Add(1) }
func (o *countingObserver) ObserveBatch(_ int, outcome string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func textMsg(sender, id, text string) conversation.InboundMessage {
	return conversation.InboundMessage{ID: id, Sender: sender, Kind: conversation.KindText, Text: text}
}

func TestConcurrentEnqueueSchedulesOnce(t *testing.T) {
	for name, buffer := range map[string]Buffer{
		"memory": NewMemoryBuffer(),
		"redis":  newMiniredisBuffer(t),
	} {
		t.Run(name, func(t *testing.T) {
			handler := newRecordingHandler()
			sched := newCountingScheduler()
			obs := &countingObserver{}
			c := NewCoalescer(buffer, handler, logging.Discard(), WithScheduler(sched), WithObserver(obs), WithWindow(time.Second))

			const n = 40
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if err := c.Enqueue(context.Background(), textMsg("6011", fmt.Sprintf("m%02d", i), fmt.Sprintf("part %02d", i))); err != nil {
						t.Errorf("enqueue: %v", err)
					}
				}(i)
			}
			wg.Wait()

			if got := sched.calls.Load(); got != 1 {
				t.Fatalf("expected exactly one scheduled pass, got %d", got)
			}
			if got := obs.guardHits.Load(); got != n-1 {
				t.Fatalf("expected %d guard hits, got %d", n-1, got)
			}

			if err := c.Process(context.Background(), <-sched.senders); err != nil {
				t.Fatalf("process: %v", err)
			}
			turns, _ := handler.snapshot()
			if len(turns) != 1 {
				t.Fatalf("expected one coalesced turn, got %d", len(turns))
			}
			ids := append([]string(nil), turns[0].MessageIDs...)
			sort.Strings(ids)
			if len(ids) != n || ids[0] != "m00" || ids[n-1] != fmt.Sprintf("m%02d", n-1) {
				t.Fatalf("batch lost messages: %v", ids)
			}
		})
	}
}

func TestProcessEmptyBatchIsNoop(t *testing.T) {
	handler := newRecordingHandler()
	obs := &countingObserver{}
	c := NewCoalescer(NewMemoryBuffer(), handler, logging.Discard(), WithScheduler(newCountingScheduler()), WithObserver(obs))

	if err := c.Process(context.Background(), "6011"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := c.Process(context.Background(), "6011"); err != nil {
		t.Fatalf("second process: %v", err)
	}
	if turns, _ := handler.snapshot(); len(turns) != 0 {
		t.Fatalf("expected no handler calls, got %d", len(turns))
	}
	if len(obs.outcomes) != 2 || obs.outcomes[0] != OutcomeEmpty {
		t.Fatalf("expected empty outcomes, got %v", obs.outcomes)
	}
}

func TestProcessSegmentsPreserveOrder(t *testing.T) {
	handler := newRecordingHandler()
	sched := newCountingScheduler()
	c := NewCoalescer(NewMemoryBuffer(), handler, logging.Discard(), WithScheduler(sched))
	ctx := context.Background()

	msgs := []conversation.InboundMessage{
		textMsg("6011", "m1", "hi"),
		textMsg("6011", "m2", "book tomorrow"),
		{ID: "m3", Sender: "6011", Kind: conversation.KindButton, Text: "Yes", Payload: "confirm"},
		textMsg("6011", "m4", "thanks"),
	}
	for _, m := range msgs {
		if err := c.Enqueue(ctx, m); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := c.Process(ctx, "6011"); err != nil {
		t.Fatalf("process: %v", err)
	}

	_, order := handler.snapshot()
	want := []string{"turn:hi\nbook tomorrow", "interactive:confirm", "turn:thanks"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("unexpected order\n got %q\nwant %q", order, want)
	}
}

func TestHandlerErrorStillConsumesBatch(t *testing.T) {
	handler := newRecordingHandler()
	handler.turnErr = errors.New("workflow exploded")
	obs := &countingObserver{}
	sched := newCountingScheduler()
	c := NewCoalescer(NewMemoryBuffer(), handler, logging.Discard(), WithScheduler(sched), WithObserver(obs))
	ctx := context.Background()

	if err := c.Enqueue(ctx, textMsg("6011", "m1", "hello")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := c.Process(ctx, "6011"); err != nil {
		t.Fatalf("process should swallow handler errors: %v", err)
	}
	if err := c.Process(ctx, "6011"); err != nil {
		t.Fatalf("second process: %v", err)
	}
	if turns, _ := handler.snapshot(); len(turns) != 1 {
		t.Fatalf("expected batch handled once, got %d", len(turns))
	}
	if obs.outcomes[0] != OutcomeFailed || obs.outcomes[1] != OutcomeEmpty {
		t.Fatalf("unexpected outcomes %v", obs.outcomes)
	}

	// The guard was released by the drain, so the next message schedules again.
	if err := c.Enqueue(ctx, textMsg("6011", "m2", "again")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got := sched.calls.Load(); got != 2 {
		t.Fatalf("expected second schedule, got %d", got)
	}
}

func TestEnqueueRejectsEmptySender(t *testing.T) {
	c := NewCoalescer(NewMemoryBuffer(), newRecordingHandler(), logging.Discard(), WithScheduler(newCountingScheduler()))
	err := c.Enqueue(context.Background(), textMsg(" ", "m1", "hi"))
	if !errors.Is(err, conversation.ErrInvalidMessage) {
		t.Fatalf("expected invalid message error, got %v", err)
	}
}

func TestEnqueueReportsScheduleFailure(t *testing.T) {
	sched := newCountingScheduler()
	sched.err = errors.New("redis down")
	c := NewCoalescer(NewMemoryBuffer(), newRecordingHandler(), logging.Discard(), WithScheduler(sched))
	if err := c.Enqueue(context.Background(), textMsg("6011", "m1", "hi")); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestZeroWindowProcessesInline(t *testing.T) {
	handler := newRecordingHandler()
	c := NewCoalescer(NewMemoryBuffer(), handler, logging.Discard(), WithWindow(0))
	defer c.Close()

	if err := c.Enqueue(context.Background(), textMsg("6011", "m1", "hello")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	turns, _ := handler.snapshot()
	if len(turns) != 1 || turns[0].Text != "hello" {
		t.Fatalf("expected inline turn, got %+v", turns)
	}
}

func TestRapidFragmentsCoalesceIntoOneTurn(t *testing.T) {
	handler := newRecordingHandler()
	c := NewCoalescer(NewMemoryBuffer(), handler, logging.Discard(), WithWindow(50*time.Millisecond), WithPoolSize(2))
	defer c.Close()
	ctx := context.Background()

	for i, text := range []string{"book foot massage tomorrow 2pm for 2 pax", "John, 0123456789", "SOMA KD"} {
		if err := c.Enqueue(ctx, textMsg("6011", fmt.Sprintf("m%d", i), text)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	select {
	case <-handler.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for coalesced turn")
	}
	turns, _ := handler.snapshot()
	if len(turns) != 1 {
		t.Fatalf("expected one turn, got %d", len(turns))
	}
	if turns[0].Text != "book foot massage tomorrow 2pm for 2 pax\nJohn, 0123456789\nSOMA KD" {
		t.Fatalf("unexpected coalesced text %q", turns[0].Text)
	}
}

func TestSegmentSkipsBlankText(t *testing.T) {
	segs := segment([]conversation.InboundMessage{
		textMsg("6011", "m1", "  "),
		{ID: "m2", Sender: "6011", Kind: conversation.KindReaction, Payload: "👍"},
		textMsg("6011", "m3", "ok"),
	})
	if len(segs) != 2 || segs[0].interactive == nil || len(segs[1].texts) != 1 {
		t.Fatalf("unexpected segments %+v", segs)
	}
}

func TestScheduleFailureReleasesGuard(t *testing.T) {
	for name, buffer := range map[string]Buffer{
		"memory": NewMemoryBuffer(),
		"redis":  newMiniredisBuffer(t),
	} {
		t.Run(name, func(t *testing.T) {
			handler := newRecordingHandler()
			sched := newCountingScheduler()
			sched.err = errors.New("scheduler unavailable")
			c := NewCoalescer(buffer, handler, logging.Discard(), WithScheduler(sched))
			ctx := context.Background()

			if err := c.Enqueue(ctx, textMsg("6011", "m1", "book for tomorrow")); err == nil {
				t.Fatalf("expected schedule error")
			}

			sched.err = nil
			if err := c.Enqueue(ctx, textMsg("6011", "m2", "2pm please")); err != nil {
				t.Fatalf("enqueue after recovery: %v", err)
			}
			if got := sched.calls.Load(); got != 1 {
				t.Fatalf("expected the next message to schedule a pass, got %d schedules", got)
			}

			if err := c.Process(ctx, "6011"); err != nil {
				t.Fatalf("process: %v", err)
			}
			turns, _ := handler.snapshot()
			if len(turns) != 1 || turns[0].Text != "book for tomorrow\n2pm please" {
				t.Fatalf("expected both messages in one turn, got %+v", turns)
			}
		})
	}
}

func TestRedeliveredMessageIsBufferedOnce(t *testing.T) {
	for name, buffer := range map[string]Buffer{
		"memory": NewMemoryBuffer(),
		"redis":  newMiniredisBuffer(t),
	} {
		t.Run(name, func(t *testing.T) {
			handler := newRecordingHandler()
			sched := newCountingScheduler()
			sched.err = errors.New("scheduler unavailable")
			c := NewCoalescer(buffer, handler, logging.Discard(), WithScheduler(sched))
			ctx := context.Background()
			msg := textMsg("6011", "wamid.1", "hello")

			if err := c.Enqueue(ctx, msg); err == nil {
				t.Fatalf("expected schedule error")
			}
			sched.err = nil
			if err := c.Enqueue(ctx, msg); err != nil {
				t.Fatalf("redelivered enqueue: %v", err)
			}
			if got := sched.calls.Load(); got != 1 {
				t.Fatalf("expected redelivery to schedule a pass, got %d schedules", got)
			}

			if err := c.Process(ctx, "6011"); err != nil {
				t.Fatalf("process: %v", err)
			}
			turns, _ := handler.snapshot()
			if len(turns) != 1 || turns[0].Text != "hello" {
				t.Fatalf("expected the message once, got %+v", turns)
			}
		})
	}
}
