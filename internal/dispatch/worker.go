package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/internal/observability/metrics"
	"github.com/citaflow/citaflow/pkg/logging"
)

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
)

// Processor runs one conversation turn for a message. The engine is the
// production implementation.
type Processor interface {
	Process(ctx context.Context, msg channels.NormalizedMessage) (*engine.Reply, error)
}

// requeuer is implemented by queues without a visibility timeout (the
// in-memory queue) that need explicit redelivery.
type requeuer interface {
	requeue(ctx context.Context, msg queueMessage) error
}

// Worker consumes message jobs from the queue and drives the processor.
type Worker struct {
	processor Processor
	queue     Queue
	senders   *channels.Registry
	jobs      JobTracker
	metrics   *metrics.MessageMetrics
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobs             JobTracker
	metrics          *metrics.MessageMetrics
}

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

// WithJobTracker wires job status persistence.
func WithJobTracker(tracker JobTracker) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.jobs = tracker
	}
}

// WithMetrics wires turn metrics.
func WithMetrics(m *metrics.MessageMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// NewWorker constructs a queue consumer around the provided processor.
func NewWorker(processor Processor, queue Queue, senders *channels.Registry, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("dispatch: processor cannot be nil")
	}
	if queue == nil {
		panic("dispatch: queue cannot be nil")
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

	return &Worker{
		processor: processor,
		queue:     queue,
		senders:   senders,
		jobs:      cfg.jobs,
		metrics:   cfg.metrics,
		logger:    logger.Component("worker"),
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
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
	w.logger.Debug("message worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("message worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive message jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
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
	var payload jobPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode message job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	channel := string(payload.Message.Channel)
	started := time.Now()
	reply, err := w.processor.Process(ctx, payload.Message)
	w.metrics.ObserveTurnLatency(channel, time.Since(started).Seconds())

	switch {
	case err == nil:
		w.metrics.ObserveTurn(channel, "completed")
		w.sendReply(ctx, reply)
		if payload.TrackStatus && w.jobs != nil && reply != nil {
			if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, reply.ConversationID.String(), reply.Text); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		w.deleteMessage(context.Background(), msg.ReceiptHandle)

	case errors.Is(err, engine.ErrConcurrency):
		// The conversation lock was busy. Leave the message for
		// redelivery so no turn is ever lost.
		w.metrics.ObserveTurn(channel, "requeued")
		w.logger.Warn("conversation busy, redelivering",
			"job_id", payload.ID,
			"channel", channel)
		w.redeliver(ctx, msg)

	case errors.Is(err, engine.ErrValidation), errors.Is(err, engine.ErrAuthentication):
		// Terminal for this message; retrying cannot succeed.
		w.metrics.ObserveTurn(channel, "rejected")
		w.logger.Error("message job rejected", "error", err, "job_id", payload.ID)
		if payload.TrackStatus && w.jobs != nil {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		w.deleteMessage(context.Background(), msg.ReceiptHandle)

	default:
		// Transient failure (database, booking authority). Redeliver.
		w.metrics.ObserveTurn(channel, "failed")
		w.logger.Error("message job failed, redelivering", "error", err, "job_id", payload.ID)
		w.redeliver(ctx, msg)
	}
}

// sendReply pushes the engine's reply out the originating channel. Send
// failures are logged and never fail the job: the conversation state is
// already persisted and the user's next message continues the flow.
func (w *Worker) sendReply(ctx context.Context, reply *engine.Reply) {
	if reply == nil || reply.Text == "" || w.senders == nil {
		return
	}
	sender, err := w.senders.Sender(reply.Channel)
	if err != nil {
		w.logger.Error("no sender for channel", "channel", string(reply.Channel), "error", err)
		w.metrics.ObserveOutbound(string(reply.Channel), "error")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sender.Send(sendCtx, reply.RecipientID, reply.Text); err != nil {
		w.logger.Error("reply send failed",
			"channel", string(reply.Channel),
			"conversation_id", reply.ConversationID.String(),
			"error", err)
		w.metrics.ObserveOutbound(string(reply.Channel), "error")
		return
	}
	w.metrics.ObserveOutbound(string(reply.Channel), "sent")
}

// redeliver returns a message to the queue. SQS redelivers automatically
// once the visibility timeout lapses; the in-memory queue re-sends.
func (w *Worker) redeliver(ctx context.Context, msg queueMessage) {
	rq, ok := w.queue.(requeuer)
	if !ok {
		return
	}
	if err := rq.requeue(ctx, msg); err != nil {
		w.logger.Error("failed to requeue message", "error", err)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	deleteCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete processed message", "error", err)
	}
}
