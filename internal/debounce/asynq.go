package debounce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// TypeProcess is the asynq task type for a deferred debounce pass.
const TypeProcess = "debounce:process"

type processPayload struct {
	Sender string `json:"sender"`
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqScheduler defers passes through asynq so any worker process can pick them up.
type AsynqScheduler struct {
	client taskEnqueuer
	queue  string
	now    func() time.Time
}

// NewAsynqScheduler wraps an asynq client. An empty queue uses "default".
func NewAsynqScheduler(client taskEnqueuer, queue string) *AsynqScheduler {
	if client == nil {
		panic("debounce: asynq client cannot be nil")
	}
	if queue == "" {
		queue = "default"
	}
	return &AsynqScheduler{client: client, queue: queue, now: time.Now}
}

// NewProcessTask builds the task for sender.
func NewProcessTask(sender string) (*asynq.Task, error) {
	payload, err := json.Marshal(processPayload{Sender: sender})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProcess, payload), nil
}

func (s *AsynqScheduler) Schedule(ctx context.Context, sender string, delay time.Duration) error {
	task, err := NewProcessTask(sender)
	if err != nil {
		return fmt.Errorf("debounce: build task: %w", err)
	}
	// A failed pass is never retried; the batch was already drained.
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0),
		asynq.TaskID(fmt.Sprintf("debounce:%s:%d", sender, s.now().UnixMilli())),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("debounce: enqueue task: %w", err)
	}
	return nil
}

// NewAsynqHandler adapts process to an asynq handler for TypeProcess tasks.
func NewAsynqHandler(process ProcessFunc, logger *logging.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = logging.Default()
	}
	return func(ctx context.Context, task *asynq.Task) error {
		var p processPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil || p.Sender == "" {
			logger.Warn("dropping malformed debounce task", "error", err)
			return fmt.Errorf("debounce: invalid task payload: %w", asynq.SkipRetry)
		}
		return process(ctx, p.Sender)
	}
}
