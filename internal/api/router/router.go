package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shliew97/frappe-whatsapp/internal/messaging"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	MessagingHandler *messaging.Handler
	MetricsHandler   http.Handler
	// Latency receives webhook request durations; optional.
	Latency LatencyObserver
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.MessagingHandler == nil {
		panic("router: messaging handler required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))

	r.Get("/health", cfg.MessagingHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks/whatsapp", func(wh chi.Router) {
		wh.Use(webhookLatency(cfg.Latency))
		wh.Get("/", cfg.MessagingHandler.Verify)
		wh.Post("/", cfg.MessagingHandler.Receive)
	})

	return r
}
