package whatsappclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = server.URL
	cfg.HTTPClient = server.Client()
	cfg.Logger = logging.Discard()
	if cfg.AccessToken == "" {
		cfg.AccessToken = "token"
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = "1234"
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSendText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v21.0/1234/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected auth header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{`"messaging_product":"whatsapp"`, `"to":"60123456789"`, `"type":"text"`, `"body":"hello there"`} {
			if !strings.Contains(string(body), want) {
				t.Errorf("expected %s in body %s", want, body)
			}
		}
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","contacts":[{"input":"60123456789","wa_id":"60123456789"}],"messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server, Config{}).SendText(context.Background(), "60123456789", "hello there")
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if resp.MessageID() != "wamid.ABC" {
		t.Fatalf("unexpected message id %q", resp.MessageID())
	}
}

func TestSendTemplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{`"type":"template"`, `"name":"booking_confirmed"`, `"code":"en"`, `"text":"BKG1"`} {
			if !strings.Contains(string(body), want) {
				t.Errorf("expected %s in body %s", want, body)
			}
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.T"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	if _, err := client.SendTemplate(context.Background(), "6011", Template{Name: "booking_confirmed", Parameters: []string{"BKG1"}}); err != nil {
		t.Fatalf("send template: %v", err)
	}
	if _, err := client.SendTemplate(context.Background(), "6011", Template{}); err == nil {
		t.Fatalf("expected template validation error")
	}
}

func TestSendRetriesRateLimits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","code":130429}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.R"}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server, Config{MaxRetries: 2}).SendText(context.Background(), "6011", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls.Load() != 3 || resp.MessageID() != "wamid.R" {
		t.Fatalf("expected success on third attempt, got %d calls", calls.Load())
	}
}

func TestSendSurfacesGraphErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"fbtrace_id":"x"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, Config{MaxRetries: 3}).SendText(context.Background(), "6011", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 100 || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected graph error, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{PhoneNumberID: "1"}); err == nil {
		t.Fatalf("expected access token error")
	}
	if _, err := New(Config{AccessToken: "t"}); err == nil {
		t.Fatalf("expected phone number id error")
	}
	client, err := New(Config{AccessToken: "t", PhoneNumberID: "99"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if client.messagesURL != "https://graph.facebook.com/v21.0/99/messages" {
		t.Fatalf("unexpected url %s", client.messagesURL)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"object":"whatsapp_business_account"}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(payload)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if err := VerifySignature("secret", header, payload); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if err := VerifySignature("secret", header, []byte(`{}`)); err == nil {
		t.Fatalf("expected mismatch for tampered body")
	}
	if err := VerifySignature("secret", "", payload); err == nil {
		t.Fatalf("expected missing header error")
	}
	if err := VerifySignature("", header, payload); err == nil {
		t.Fatalf("expected unconfigured secret error")
	}
}
