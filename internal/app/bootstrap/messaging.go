package bootstrap

import (
	"io"
	"os"
	"strings"

	"github.com/shliew97/frappe-whatsapp/internal/bookingapi"
	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/messaging"
	"github.com/shliew97/frappe-whatsapp/internal/messaging/whatsappclient"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// BuildDispatcher creates the outbound dispatcher. Without WhatsApp
// credentials replies are written to out (stdout when nil) and the returned
// reason explains why.
func BuildDispatcher(cfg *appconfig.Config, obs messaging.SendObserver, out io.Writer, logger *logging.Logger) (messaging.Dispatcher, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if out == nil {
		out = os.Stdout
	}
	if cfg == nil {
		return messaging.WithSendObserver(messaging.NewLogDispatcher(out), obs), "missing config"
	}
	if strings.TrimSpace(cfg.WhatsAppAccessToken) == "" || strings.TrimSpace(cfg.WhatsAppPhoneNumberID) == "" {
		return messaging.WithSendObserver(messaging.NewLogDispatcher(out), obs), "whatsapp credentials not configured"
	}

	client, err := whatsappclient.New(whatsappclient.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
		AppSecret:     cfg.WhatsAppAppSecret,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to create whatsapp client", "error", err)
		return messaging.WithSendObserver(messaging.NewLogDispatcher(out), obs), err.Error()
	}
	dispatcher := messaging.NewWhatsAppDispatcher(client, cfg.WhatsAppSendsPerSecond, logger)
	return messaging.WithSendObserver(dispatcher, obs), ""
}

// BuildBookingClient returns the HTTP booking API client in "http" mode and
// the mock client otherwise.
func BuildBookingClient(cfg *appconfig.Config, logger *logging.Logger) (bookingapi.Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || cfg.BookingAPIMode != "http" {
		logger.Warn("using mock booking API")
		return bookingapi.NewMockClient(), nil
	}
	client, err := bookingapi.New(bookingapi.Config{
		BaseURL:    cfg.BookingAPIBaseURL,
		APIKey:     cfg.BookingAPIKey,
		APISecret:  cfg.BookingAPISecret,
		Timeout:    cfg.BookingAPITimeout,
		MaxRetries: cfg.BookingAPIMaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("booking API configured", "base_url", cfg.BookingAPIBaseURL)
	return client, nil
}
