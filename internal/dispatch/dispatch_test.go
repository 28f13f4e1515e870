package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/internal/jobs"
	"github.com/citaflow/citaflow/pkg/logging"
)

type fakeTracker struct {
	mu        sync.Mutex
	pending   []*jobs.Record
	completed []string
	failed    map[string]string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{failed: make(map[string]string)}
}

func (f *fakeTracker) PutPending(_ context.Context, job *jobs.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, job)
	return nil
}

func (f *fakeTracker) MarkCompleted(_ context.Context, jobID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeTracker) MarkFailed(_ context.Context, jobID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[jobID] = errMsg
	return nil
}

type scriptedProcessor struct {
	mu    sync.Mutex
	errs  []error
	calls int
	done  chan struct{}
}

func (p *scriptedProcessor) Process(_ context.Context, msg channels.NormalizedMessage) (*engine.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.calls < len(p.errs) {
		err = p.errs[p.calls]
	}
	p.calls++
	if err != nil {
		return nil, err
	}
	if p.done != nil {
		defer close(p.done)
		p.done = nil
	}
	return &engine.Reply{Channel: msg.Channel, RecipientID: msg.SenderID, Text: "ok"}, nil
}

type captureSender struct {
	mu    sync.Mutex
	sends []string
}

func (c *captureSender) Send(_ context.Context, recipientID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, recipientID+":"+text)
	return nil
}

func testMessage() channels.NormalizedMessage {
	return channels.NormalizedMessage{
		Channel:           channels.ChannelWhatsApp,
		SenderID:          "521555000001",
		ThreadID:          "521555000001",
		ProviderMessageID: "wamid.1",
		Text:              "hola",
	}
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "one"))
	require.NoError(t, q.Send(ctx, "two"))

	msgs, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Body)
	assert.NotEmpty(t, msgs[0].ReceiptHandle)
}

func TestMemoryQueueReceiveTimeout(t *testing.T) {
	q := NewMemoryQueue(1)
	start := time.Now()
	msgs, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestPublisherEnqueuesAndTracks(t *testing.T) {
	q := NewMemoryQueue(4)
	tracker := newFakeTracker()
	p := NewPublisher(q, tracker, logging.New("error"))

	require.NoError(t, p.Publish(context.Background(), testMessage()))

	msgs, err := q.Receive(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var payload jobPayload
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Body), &payload))
	assert.NotEmpty(t, payload.ID)
	assert.True(t, payload.TrackStatus)
	assert.Equal(t, "hola", payload.Message.Text)

	require.Len(t, tracker.pending, 1)
	assert.Equal(t, payload.ID, tracker.pending[0].JobID)
	assert.Equal(t, "WHATSAPP", tracker.pending[0].Channel)
}

func startWorker(t *testing.T, q Queue, proc Processor, sender *captureSender, tracker JobTracker) context.CancelFunc {
	t.Helper()
	registry := channels.NewRegistry(sender, &captureSender{})
	w := NewWorker(proc, q, registry, logging.New("error"),
		WithWorkerCount(1),
		WithReceiveWaitSeconds(1),
		WithJobTracker(tracker),
	)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		w.Wait()
	})
	return cancel
}

func TestWorkerProcessesAndReplies(t *testing.T) {
	q := NewMemoryQueue(4)
	tracker := newFakeTracker()
	proc := &scriptedProcessor{done: make(chan struct{})}
	sender := &captureSender{}
	done := proc.done

	startWorker(t, q, proc, sender, tracker)

	p := NewPublisher(q, tracker, logging.New("error"))
	require.NoError(t, p.Publish(context.Background(), testMessage()))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never processed the job")
	}

	require.Eventually(t, func() bool {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		return len(tracker.completed) == 1
	}, 5*time.Second, 10*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sends, 1)
	assert.Equal(t, "521555000001:ok", sender.sends[0])
}

func TestWorkerRedeliversOnBusyConversation(t *testing.T) {
	q := NewMemoryQueue(4)
	tracker := newFakeTracker()
	proc := &scriptedProcessor{
		errs: []error{fmt.Errorf("engine: lock: %w", engine.ErrConcurrency)},
		done: make(chan struct{}),
	}
	done := proc.done

	startWorker(t, q, proc, &captureSender{}, tracker)

	p := NewPublisher(q, tracker, logging.New("error"))
	require.NoError(t, p.Publish(context.Background(), testMessage()))

	// First attempt hits the busy lock; the requeued copy succeeds.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("redelivered job never processed")
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, 2, proc.calls)
}

func TestWorkerDropsInvalidMessages(t *testing.T) {
	q := NewMemoryQueue(4)
	tracker := newFakeTracker()
	proc := &scriptedProcessor{
		errs: []error{fmt.Errorf("engine: empty message text: %w", engine.ErrValidation)},
	}

	startWorker(t, q, proc, &captureSender{}, tracker)

	p := NewPublisher(q, tracker, logging.New("error"))
	require.NoError(t, p.Publish(context.Background(), testMessage()))

	require.Eventually(t, func() bool {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		return len(tracker.failed) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Terminal failures are not retried.
	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, 1, proc.calls)
}
