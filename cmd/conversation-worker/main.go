package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shliew97/frappe-whatsapp/cmd/mainconfig"
	"github.com/shliew97/frappe-whatsapp/internal/app/bootstrap"
	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/internal/observability/metrics"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.UseMemoryQueue {
		logger.Error("USE_MEMORY_QUEUE runs the conversation pipeline inside the API process; nothing to consume")
		os.Exit(1)
	}
	if cfg.InboundQueueURL == "" {
		logger.Error("INBOUND_QUEUE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	gatewayMetrics := metrics.New(reg)

	gateway, err := bootstrap.BuildGateway(ctx, cfg, bootstrap.GatewayOptions{
		Stores: bootstrap.StoreDeps{
			Redis:    bootstrap.BuildRedisClient(ctx, cfg, logger, true),
			Postgres: bootstrap.BuildPostgresPool(ctx, cfg, logger),
			AWS:      &awsConfig,
		},
		Metrics: gatewayMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to build gateway", "error", err)
		os.Exit(1)
	}

	if cfg.DebounceScheduler == "asynq" {
		srv, mux := bootstrap.BuildAsynqServer(cfg, gateway, logger)
		if err := srv.Start(mux); err != nil {
			logger.Error("failed to start asynq server", "error", err)
			os.Exit(1)
		}
		defer srv.Shutdown()
		logger.Info("asynq debounce server started")
	}

	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.InboundQueueURL)
	worker := conversation.NewWorker(queue, gateway.Coalescer, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithDropObserver(gatewayMetrics),
	)
	worker.Start(ctx)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		// Flush pending debounce passes once nothing else can enqueue.
		gateway.Close()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
