package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// MessageEnqueuer receives decoded inbound messages, normally the debounce coalescer.
type MessageEnqueuer interface {
	Enqueue(ctx context.Context, msg InboundMessage) error
}

// DropObserver is told about payloads the worker discards.
type DropObserver interface {
	ObserveDropped(reason string)
}

// Worker consumes inbound message jobs from the queue and feeds the coalescer.
type Worker struct {
	queue  queueClient
	sink   MessageEnqueuer
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	drops            DropObserver
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithDropObserver reports discarded payloads, e.g. to metrics.
func WithDropObserver(obs DropObserver) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.drops = obs
	}
}

// NewWorker wires a queue consumer.
func NewWorker(queue queueClient, sink MessageEnqueuer, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if sink == nil {
		panic("conversation: message sink cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{queue: queue, sink: sink, logger: logger, cfg: cfg}
}

// Start launches the consumer goroutines.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("inbound worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("inbound worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive inbound jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.drop(msg, "undecodable", err)
		return
	}
	if payload.Kind != jobTypeInbound || payload.Inbound == nil {
		w.drop(msg, "unknown_kind", errors.New(string(payload.Kind)))
		return
	}
	if err := payload.Inbound.Validate(); err != nil {
		w.drop(msg, "invalid", err)
		return
	}

	if err := w.sink.Enqueue(ctx, *payload.Inbound); err != nil {
		// Leave the message on the queue so the broker redelivers it.
		w.logger.Error("failed to buffer inbound message",
			"error", err,
			"job_id", payload.ID,
			"sender", payload.Inbound.Sender,
		)
		return
	}
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) drop(msg queueMessage, reason string, err error) {
	w.logger.Error("dropping malformed inbound job", "reason", reason, "error", err, "msg_id", msg.ID)
	if w.cfg.drops != nil {
		w.cfg.drops.ObserveDropped(reason)
	}
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound job", "error", err)
	}
}
