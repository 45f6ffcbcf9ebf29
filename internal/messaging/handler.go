package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/internal/messaging/whatsappclient"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

var webhookTracer = otel.Tracer("gateway.internal.messaging.webhook")

const maxWebhookBody = 1 << 20

type inboundPublisher interface {
	PublishInbound(ctx context.Context, msg conversation.InboundMessage) error
}

// SkipObserver is told about webhook messages that were not published.
type SkipObserver interface {
	ObserveDropped(reason string)
}

// Handler serves the WhatsApp Cloud webhook.
type Handler struct {
	verifyToken string
	appSecret   string
	publisher   inboundPublisher
	skips       SkipObserver
	logger      *logging.Logger
}

// NewHandler creates a webhook handler. An empty appSecret disables signature checks.
func NewHandler(verifyToken, appSecret string, publisher inboundPublisher, skips SkipObserver, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		publisher:   publisher,
		skips:       skips,
		logger:      logger,
	}
}

// Verify handles the GET subscription handshake.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || h.verifyToken == "" || q.Get("hub.verify_token") != h.verifyToken {
		h.logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// Receive handles POST notifications and publishes each inbound message.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if h.appSecret != "" {
		if err := whatsappclient.VerifySignature(h.appSecret, r.Header.Get("X-Hub-Signature-256"), body); err != nil {
			h.logger.Warn("invalid webhook signature", "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(err)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("dropping malformed webhook payload", "error", err)
		h.observeSkip("malformed_payload")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	messages, skipped := ParseWebhook(payload)
	for _, s := range skipped {
		h.logger.Warn("skipping webhook message", "message_id", s.ID, "reason", s.Reason)
		h.observeSkip(s.Reason)
	}
	span.SetAttributes(attribute.Int("messages", len(messages)))

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var failed error
	for _, msg := range messages {
		if err := h.publisher.PublishInbound(publishCtx, msg); err != nil {
			if errors.Is(err, conversation.ErrInvalidMessage) {
				h.logger.Warn("skipping invalid inbound message", "message_id", msg.ID, "error", err)
				h.observeSkip("invalid")
				continue
			}
			h.logger.Error("failed to publish inbound message", "error", err, "sender", msg.Sender, "message_id", msg.ID)
			failed = err
		}
	}
	if failed != nil {
		// A non-2xx answer makes the platform redeliver the notification.
		http.Error(w, "Failed to queue message", http.StatusInternalServerError)
		span.RecordError(failed)
		return
	}

	h.logger.Info("whatsapp webhook accepted", "messages", len(messages), "skipped", len(skipped))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

func (h *Handler) observeSkip(reason string) {
	if h.skips != nil {
		h.skips.ObserveDropped(reason)
	}
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
