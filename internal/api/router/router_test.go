package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/internal/messaging"
	"github.com/shliew97/frappe-whatsapp/internal/observability/metrics"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

type noopPublisher struct {
	mu   sync.Mutex
	msgs []conversation.InboundMessage
}

func (p *noopPublisher) PublishInbound(_ context.Context, msg conversation.InboundMessage) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
	return nil
}

type latencyRecorder struct {
	mu       sync.Mutex
	statuses []int
}

func (l *latencyRecorder) ObserveWebhookLatency(status int, _ float64) {
	l.mu.Lock()
	l.statuses = append(l.statuses, status)
	l.mu.Unlock()
}

func newTestRouter(t *testing.T, latency LatencyObserver) (http.Handler, *noopPublisher) {
	t.Helper()

	logger := logging.Discard()
	publisher := &noopPublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cfg := &Config{
		Logger:           logger,
		MessagingHandler: messaging.NewHandler("verify-me", "", publisher, m, logger),
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Latency:          latency,
	}
	return New(cfg), publisher
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookVerification(t *testing.T) {
	latency := &latencyRecorder{}
	router, _ := newTestRouter(t, latency)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "42" {
		t.Fatalf("expected challenge echo, got %q", rr.Body.String())
	}
	if len(latency.statuses) != 1 || latency.statuses[0] != http.StatusOK {
		t.Fatalf("expected one latency observation with 200, got %v", latency.statuses)
	}
}

func TestRouterWebhookReceivePublishes(t *testing.T) {
	latency := &latencyRecorder{}
	router, publisher := newTestRouter(t, latency)

	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"contacts":[{"profile":{"name":"Ann"},"wa_id":"60111"}],
		"messages":[{"from":"60111","id":"wamid.9","timestamp":"1717149600","type":"text","text":{"body":"hi"}}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(publisher.msgs) != 1 || publisher.msgs[0].Sender != "60111" {
		t.Fatalf("expected one published message from 60111, got %+v", publisher.msgs)
	}
	if len(latency.statuses) != 1 {
		t.Fatalf("expected latency to be observed, got %v", latency.statuses)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	// A malformed delivery increments the dropped counter so it shows up in the exposition.
	bad := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader("{"))
	router.ServeHTTP(httptest.NewRecorder(), bad)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "gateway_inbound_dropped_total") {
		t.Fatalf("expected dropped counter in metrics output:\n%s", rr.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/drafts", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestNewPanicsWithoutHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(&Config{})
}
