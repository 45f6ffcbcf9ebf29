package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/messaging/whatsappclient"
)

// Outbound is one message for the customer. Delay is waited before the send,
// so callers can pace consecutive replies without sleeping themselves.
type Outbound struct {
	To       string
	Text     string
	Template *whatsappclient.Template
	Delay    time.Duration
}

// Validate checks the outbound has a recipient and exactly one body.
func (o Outbound) Validate() error {
	if strings.TrimSpace(o.To) == "" {
		return errors.New("messaging: recipient required")
	}
	hasText := strings.TrimSpace(o.Text) != ""
	if hasText == (o.Template != nil) {
		return errors.New("messaging: exactly one of text or template required")
	}
	return nil
}

// Dispatcher delivers outbound messages.
type Dispatcher interface {
	Send(ctx context.Context, msg Outbound) error
}

// SendObserver is told the outcome of every send.
type SendObserver interface {
	ObserveOutbound(status string)
}

type observedDispatcher struct {
	inner Dispatcher
	obs   SendObserver
}

// WithSendObserver reports each send's outcome to obs. A nil obs returns d.
func WithSendObserver(d Dispatcher, obs SendObserver) Dispatcher {
	if obs == nil {
		return d
	}
	return &observedDispatcher{inner: d, obs: obs}
}

func (d *observedDispatcher) Send(ctx context.Context, msg Outbound) error {
	if err := d.inner.Send(ctx, msg); err != nil {
		d.obs.ObserveOutbound("failed")
		return err
	}
	d.obs.ObserveOutbound("sent")
	return nil
}
