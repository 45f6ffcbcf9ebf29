package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shliew97/frappe-whatsapp/internal/bookingapi"
	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/messaging"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

func TestBuildDispatcherWithoutCredentialsLogs(t *testing.T) {
	var out bytes.Buffer
	dispatcher, reason := BuildDispatcher(&appconfig.Config{}, nil, &out, logging.Discard())
	if reason == "" {
		t.Fatalf("expected a reason for the log dispatcher")
	}
	if err := dispatcher.Send(context.Background(), messaging.Outbound{To: "6011", Text: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out.String(), "[to 6011] hello") {
		t.Fatalf("expected logged reply, got %q", out.String())
	}
}

func TestBuildDispatcherWithCredentials(t *testing.T) {
	cfg := &appconfig.Config{
		WhatsAppBaseURL:        "http://127.0.0.1:1",
		WhatsAppAPIVersion:     "v21.0",
		WhatsAppPhoneNumberID:  "1234",
		WhatsAppAccessToken:    "token",
		WhatsAppSendsPerSecond: 5,
	}
	dispatcher, reason := BuildDispatcher(cfg, nil, nil, logging.Discard())
	if reason != "" {
		t.Fatalf("unexpected reason %q", reason)
	}
	if _, ok := dispatcher.(*messaging.WhatsAppDispatcher); !ok {
		t.Fatalf("expected whatsapp dispatcher, got %T", dispatcher)
	}
}

func TestBuildBookingClient(t *testing.T) {
	client, err := BuildBookingClient(&appconfig.Config{BookingAPIMode: "mock"}, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*bookingapi.MockClient); !ok {
		t.Fatalf("expected mock client, got %T", client)
	}

	if _, err := BuildBookingClient(&appconfig.Config{BookingAPIMode: "http"}, logging.Discard()); err == nil {
		t.Fatalf("expected error without base URL")
	}

	client, err = BuildBookingClient(&appconfig.Config{
		BookingAPIMode:    "http",
		BookingAPIBaseURL: "https://erp.example.com",
		BookingAPIKey:     "key",
		BookingAPISecret:  "secret",
	}, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*bookingapi.HTTPClient); !ok {
		t.Fatalf("expected http client, got %T", client)
	}
}
