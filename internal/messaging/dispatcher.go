package messaging

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/shliew97/frappe-whatsapp/internal/messaging/whatsappclient"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

var dispatchTracer = otel.Tracer("gateway.internal.messaging.dispatch")

type whatsAppSender interface {
	SendText(ctx context.Context, to, body string) (*whatsappclient.SendResponse, error)
	SendTemplate(ctx context.Context, to string, tpl whatsappclient.Template) (*whatsappclient.SendResponse, error)
}

// WhatsAppDispatcher sends through the Cloud API, sharing one rate limiter
// across every sender's replies.
type WhatsAppDispatcher struct {
	client  whatsAppSender
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewWhatsAppDispatcher builds a dispatcher. perSecond <= 0 disables pacing.
func NewWhatsAppDispatcher(client whatsAppSender, perSecond float64, logger *logging.Logger) *WhatsAppDispatcher {
	if client == nil {
		panic("messaging: whatsapp client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &WhatsAppDispatcher{client: client, limiter: rate.NewLimiter(limit, burst), logger: logger}
}

// Send waits msg.Delay, then a limiter token, then sends.
func (d *WhatsAppDispatcher) Send(ctx context.Context, msg Outbound) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	ctx, span := dispatchTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(attribute.String("to", msg.To))

	if err := wait(ctx, msg.Delay); err != nil {
		return err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("messaging: rate limiter: %w", err)
	}

	var (
		resp *whatsappclient.SendResponse
		err  error
	)
	if msg.Template != nil {
		resp, err = d.client.SendTemplate(ctx, msg.To, *msg.Template)
	} else {
		resp, err = d.client.SendText(ctx, msg.To, msg.Text)
	}
	if err != nil {
		span.RecordError(err)
		d.logger.Error("failed to send whatsapp message", "error", err, "to", msg.To)
		return err
	}
	d.logger.Info("whatsapp message sent", "to", msg.To, "message_id", resp.MessageID())
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LogDispatcher writes messages to w instead of sending them. Delays are skipped.
type LogDispatcher struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogDispatcher writes to w.
func NewLogDispatcher(w io.Writer) *LogDispatcher {
	return &LogDispatcher{w: w}
}

func (d *LogDispatcher) Send(_ context.Context, msg Outbound) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if msg.Template != nil {
		_, err := fmt.Fprintf(d.w, "[to %s] <template %s %v>\n", msg.To, msg.Template.Name, msg.Template.Parameters)
		return err
	}
	_, err := fmt.Fprintf(d.w, "[to %s] %s\n", msg.To, msg.Text)
	return err
}
