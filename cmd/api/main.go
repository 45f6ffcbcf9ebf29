package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shliew97/frappe-whatsapp/cmd/mainconfig"
	"github.com/shliew97/frappe-whatsapp/internal/api/router"
	"github.com/shliew97/frappe-whatsapp/internal/app/bootstrap"
	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/internal/messaging"
	"github.com/shliew97/frappe-whatsapp/internal/observability/metrics"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting whatsapp booking gateway API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_queue", cfg.UseMemoryQueue,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, gatewayMetrics := setupMetrics()

	publisher, memoryQueue, err := setupQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up inbound queue", "error", err)
		os.Exit(1)
	}

	// With the memory queue the conversation pipeline runs in this process.
	var (
		worker  *conversation.Worker
		gateway *bootstrap.Gateway
	)
	if memoryQueue != nil {
		gateway, err = buildInProcessGateway(ctx, cfg, gatewayMetrics, logger)
		if err != nil {
			logger.Error("failed to build gateway", "error", err)
			os.Exit(1)
		}
		worker = conversation.NewWorker(memoryQueue, gateway.Coalescer, logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
			conversation.WithDropObserver(gatewayMetrics),
		)
		worker.Start(ctx)
	}

	messagingHandler := messaging.NewHandler(cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, publisher, gatewayMetrics, logger)
	r := router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messagingHandler,
		MetricsHandler:   metricsHandler,
		Latency:          gatewayMetrics,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if worker != nil {
		worker.Wait()
	}
	gateway.Close()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.GatewayMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.New(reg)
}

// setupQueue returns the inbound publisher. The memory queue is returned too
// when USE_MEMORY_QUEUE is set so the caller can consume it.
func setupQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*conversation.Publisher, *conversation.MemoryQueue, error) {
	if cfg.UseMemoryQueue {
		logger.Warn("using in-memory inbound queue")
		queue := conversation.NewMemoryQueue(1024)
		return conversation.NewPublisher(queue, logger), queue, nil
	}
	if cfg.InboundQueueURL == "" {
		return nil, nil, errors.New("INBOUND_QUEUE_URL is required unless USE_MEMORY_QUEUE is set")
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL)
	return conversation.NewPublisher(queue, logger), nil, nil
}

func buildInProcessGateway(ctx context.Context, cfg *appconfig.Config, m *metrics.GatewayMetrics, logger *logging.Logger) (*bootstrap.Gateway, error) {
	awsCfg, err := mainconfig.MaybeLoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return bootstrap.BuildGateway(ctx, cfg, bootstrap.GatewayOptions{
		Stores: bootstrap.StoreDeps{
			Redis:    bootstrap.BuildRedisClient(ctx, cfg, logger, true),
			Postgres: bootstrap.BuildPostgresPool(ctx, cfg, logger),
			AWS:      awsCfg,
		},
		Metrics: m,
	}, logger)
}
