package dispatch

import (
	"context"
	"fmt"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/jobs"
	"github.com/citaflow/citaflow/pkg/logging"
)

// Publisher enqueues accepted messages, optionally recording a pending job
// record first so the delivery becomes traceable by id.
type Publisher struct {
	queue  Queue
	jobs   JobTracker
	logger *logging.Logger
}

// NewPublisher builds a publisher. tracker may be nil.
func NewPublisher(queue Queue, tracker JobTracker, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("dispatch: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: tracker, logger: logger.Component("dispatch")}
}

// Publish enqueues one normalized message for asynchronous processing.
func (p *Publisher) Publish(ctx context.Context, msg channels.NormalizedMessage) error {
	payload, body, err := encodePayload(jobPayload{
		Message:     msg,
		TrackStatus: p.jobs != nil,
	})
	if err != nil {
		return err
	}

	if p.jobs != nil {
		rec := &jobs.Record{
			JobID:             payload.ID,
			Channel:           string(msg.Channel),
			SenderID:          msg.SenderID,
			ProviderMessageID: msg.ProviderMessageID,
		}
		if err := p.jobs.PutPending(ctx, rec); err != nil {
			// Tracking is best effort; the message still ships.
			p.logger.Warn("job record not persisted", "job_id", payload.ID, "error", err)
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("dispatch: enqueue message: %w", err)
	}
	p.logger.Info("message enqueued",
		"job_id", payload.ID,
		"channel", string(msg.Channel),
		"provider_message_id", msg.ProviderMessageID)
	return nil
}
