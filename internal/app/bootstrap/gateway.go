package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/internal/debounce"
	"github.com/shliew97/frappe-whatsapp/internal/drafts"
	"github.com/shliew97/frappe-whatsapp/internal/observability/metrics"
	"github.com/shliew97/frappe-whatsapp/internal/workflow"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// GatewayOptions carries the process-level clients BuildGateway composes.
type GatewayOptions struct {
	Stores  StoreDeps
	Metrics *metrics.GatewayMetrics
	// Output receives replies when no WhatsApp credentials are configured.
	Output io.Writer
	// Window overrides DEBOUNCE_WINDOW when non-nil; zero processes inline.
	Window *time.Duration
}

// Gateway is the assembled inbound pipeline: coalescer in front of the
// workflow engine.
type Gateway struct {
	Drafts    drafts.Store
	Knowledge conversation.KnowledgeRepository
	Engine    *workflow.Engine
	Coalescer *debounce.Coalescer

	asynqClient *asynq.Client
}

// BuildGateway wires stores, understanding, booking API, dispatcher, engine
// and coalescer from config.
func BuildGateway(ctx context.Context, cfg *appconfig.Config, opts GatewayOptions, logger *logging.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	draftStore, err := BuildDraftStore(cfg, opts.Stores, logger)
	if err != nil {
		return nil, err
	}
	hours, err := booking.ParseOperatingHours(cfg.OpeningTime, cfg.ClosingTime)
	if err != nil {
		logger.Warn("invalid operating hours, using defaults", "opening", cfg.OpeningTime, "closing", cfg.ClosingTime, "error", err)
		hours = booking.DefaultOperatingHours
	}
	loc := BusinessLocation(cfg, logger)

	llm, err := BuildLLM(ctx, cfg, opts.Stores.AWS, logger)
	if err != nil {
		return nil, err
	}
	knowledge := BuildKnowledgeRepository(ctx, opts.Stores.Redis, logger)
	understanding := BuildUnderstanding(llm, knowledge, loc, opts.Metrics, logger)

	bookings, err := BuildBookingClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	dispatcher, reason := BuildDispatcher(cfg, opts.Metrics, opts.Output, logger)
	if reason != "" {
		logger.Warn("whatsapp sending disabled; replies are logged", "reason", reason)
	}

	deps := workflow.Deps{
		Drafts:     draftStore,
		Intents:    understanding.Intents,
		Updates:    understanding.Updates,
		Extractor:  understanding.Extractor,
		Answerer:   understanding.Answerer,
		Bookings:   bookings,
		Dispatcher: dispatcher,
	}
	if opts.Stores.Redis != nil {
		deps.History = conversation.NewHistoryStore(opts.Stores.Redis, nil)
	} else {
		deps.History = conversation.NewMemoryHistoryStore(0)
	}
	engine := workflow.NewEngine(deps, logger,
		workflow.WithOperatingHours(hours),
		workflow.WithDraftTTL(drafts.DefaultTTL),
		workflow.WithReplyDelay(cfg.ReplyDelay),
		workflow.WithTransitionObserver(opts.Metrics),
		workflow.WithCallObserver(opts.Metrics),
	)

	window := cfg.DebounceWindow
	if opts.Window != nil {
		window = *opts.Window
	}
	coalescerOpts := []debounce.Option{
		debounce.WithWindow(window),
		debounce.WithGuardMargin(cfg.DebounceGuardMargin),
		debounce.WithPoolSize(cfg.DebounceWorkers),
		debounce.WithObserver(opts.Metrics),
	}

	var buffer debounce.Buffer
	if opts.Stores.Redis != nil {
		buffer = debounce.NewRedisBuffer(opts.Stores.Redis, logger)
	} else {
		logger.Warn("redis unavailable; debounce batches are process-local")
		buffer = debounce.NewMemoryBuffer()
	}

	gw := &Gateway{Drafts: draftStore, Knowledge: knowledge, Engine: engine}
	if cfg.DebounceScheduler == "asynq" && window > 0 {
		if opts.Stores.Redis == nil {
			return nil, fmt.Errorf("bootstrap: asynq scheduler requires redis")
		}
		gw.asynqClient = asynq.NewClient(AsynqRedisOpt(cfg))
		coalescerOpts = append(coalescerOpts, debounce.WithScheduler(debounce.NewAsynqScheduler(gw.asynqClient, asynqQueue)))
		logger.Info("debounce scheduler configured", "scheduler", "asynq")
	}
	gw.Coalescer = debounce.NewCoalescer(buffer, engine, logger, coalescerOpts...)

	logger.Info("gateway ready",
		"draft_store", cfg.DraftStore,
		"window", window.String(),
		"llm", llm != nil,
		"booking_api", cfg.BookingAPIMode,
	)
	return gw, nil
}

// Close stops the built-in scheduler and releases the asynq client.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	if g.Coalescer != nil {
		g.Coalescer.Close()
	}
	if g.asynqClient != nil {
		_ = g.asynqClient.Close()
	}
}

const asynqQueue = "debounce"

// AsynqRedisOpt mirrors the Redis settings for asynq.
func AsynqRedisOpt(cfg *appconfig.Config) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	if cfg.RedisTLS {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opt
}

// BuildAsynqServer returns a server that runs deferred debounce passes on g.
func BuildAsynqServer(cfg *appconfig.Config, g *Gateway, logger *logging.Logger) (*asynq.Server, *asynq.ServeMux) {
	if logger == nil {
		logger = logging.Default()
	}
	concurrency := cfg.DebounceWorkers
	if concurrency <= 0 {
		concurrency = 8
	}
	srv := asynq.NewServer(AsynqRedisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{asynqQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("debounce task failed", "type", task.Type(), "error", err)
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(debounce.TypeProcess, debounce.NewAsynqHandler(g.Coalescer.Process, logger))
	return srv, mux
}
