// Package dispatch moves accepted messages from the webhook edge to the
// conversation engine through a queue, decoupling webhook acknowledgement
// latency from processing time.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/jobs"
)

// Queue is the transport between the webhook edge and the workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobPayload struct {
	ID          string                     `json:"id"`
	Message     channels.NormalizedMessage `json:"message"`
	TrackStatus bool                       `json:"track_status"`
}

// JobTracker persists job lifecycle state. All methods are optional to
// dispatch correctness; only operator visibility suffers without them.
type JobTracker interface {
	PutPending(ctx context.Context, job *jobs.Record) error
	MarkCompleted(ctx context.Context, jobID, conversationID, replyText string) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

func encodePayload(payload jobPayload) (jobPayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return jobPayload{}, "", fmt.Errorf("dispatch: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
