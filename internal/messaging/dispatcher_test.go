package messaging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/messaging/whatsappclient"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

type fakeWhatsApp struct {
	mu        sync.Mutex
	texts     []string
	templates []string
	sentAt    []time.Time
	err       error
}

func (f *fakeWhatsApp) SendText(_ context.Context, to, body string) (*whatsappclient.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, to+":"+body)
	f.sentAt = append(f.sentAt, time.Now())
	return &whatsappclient.SendResponse{}, nil
}

func (f *fakeWhatsApp) SendTemplate(_ context.Context, to string, tpl whatsappclient.Template) (*whatsappclient.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates = append(f.templates, to+":"+tpl.Name)
	return &whatsappclient.SendResponse{}, nil
}

func TestDispatcherSendsTextAndTemplate(t *testing.T) {
	fake := &fakeWhatsApp{}
	d := NewWhatsAppDispatcher(fake, 0, logging.Discard())
	ctx := context.Background()

	if err := d.Send(ctx, Outbound{To: "6011", Text: "hello"}); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if err := d.Send(ctx, Outbound{To: "6011", Template: &whatsappclient.Template{Name: "booking_confirmed"}}); err != nil {
		t.Fatalf("send template: %v", err)
	}
	if len(fake.texts) != 1 || fake.texts[0] != "6011:hello" || len(fake.templates) != 1 {
		t.Fatalf("unexpected sends %v %v", fake.texts, fake.templates)
	}
}

func TestDispatcherHonoursDelay(t *testing.T) {
	fake := &fakeWhatsApp{}
	d := NewWhatsAppDispatcher(fake, 0, logging.Discard())

	start := time.Now()
	if err := d.Send(context.Background(), Outbound{To: "6011", Text: "later", Delay: 40 * time.Millisecond}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if elapsed := fake.sentAt[0].Sub(start); elapsed < 40*time.Millisecond {
		t.Fatalf("sent before delay elapsed: %s", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Send(ctx, Outbound{To: "6011", Text: "never", Delay: time.Second}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation during delay, got %v", err)
	}
}

func TestDispatcherRejectsInvalidOutbound(t *testing.T) {
	d := NewWhatsAppDispatcher(&fakeWhatsApp{}, 5, logging.Discard())
	for _, msg := range []Outbound{
		{Text: "no recipient"},
		{To: "6011"},
		{To: "6011", Text: "both", Template: &whatsappclient.Template{Name: "x"}},
	} {
		if err := d.Send(context.Background(), msg); err == nil {
			t.Fatalf("expected validation error for %+v", msg)
		}
	}
}

func TestDispatcherPropagatesSendErrors(t *testing.T) {
	d := NewWhatsAppDispatcher(&fakeWhatsApp{err: errors.New("graph down")}, 0, logging.Discard())
	if err := d.Send(context.Background(), Outbound{To: "6011", Text: "hi"}); err == nil {
		t.Fatalf("expected send error")
	}
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(&buf)
	if err := d.Send(context.Background(), Outbound{To: "6011", Text: "hello", Delay: time.Hour}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), "[to 6011] hello") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

type statusRecorder struct{ statuses []string }

func (s *statusRecorder) ObserveOutbound(status string) { s.statuses = append(s.statuses, status) }

func TestWithSendObserver(t *testing.T) {
	rec := &statusRecorder{}
	d := WithSendObserver(NewWhatsAppDispatcher(&fakeWhatsApp{}, 0, logging.Discard()), rec)
	_ = d.Send(context.Background(), Outbound{To: "6011", Text: "hi"})
	_ = d.Send(context.Background(), Outbound{To: "6011"})
	if len(rec.statuses) != 2 || rec.statuses[0] != "sent" || rec.statuses[1] != "failed" {
		t.Fatalf("unexpected statuses %v", rec.statuses)
	}
}
