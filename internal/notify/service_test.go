package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/pkg/logging"
)

type captureEmail struct {
	sent []EmailMessage
	err  error
}

func (c *captureEmail) Send(_ context.Context, msg EmailMessage) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func testConversation() *engine.Conversation {
	return &engine.Conversation{
		ID:               uuid.New(),
		Channel:          channels.ChannelWhatsApp,
		ExternalThreadID: "521555000001",
		State:            engine.StateHandoff,
	}
}

func TestNotifyHandoffSendsEmail(t *testing.T) {
	email := &captureEmail{}
	svc := NewService(email, "ops@example.com", logging.New("error"))

	err := svc.NotifyHandoff(context.Background(), testConversation(), "Cliente solicitó hablar con un humano")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.To != "ops@example.com" {
		t.Fatalf("unexpected recipient: %s", msg.To)
	}
	if msg.Subject == "" || msg.Body == "" {
		t.Fatal("expected subject and body to be populated")
	}
}

func TestNotifyHandoffWithoutSenderIsNoop(t *testing.T) {
	svc := NewService(nil, "", logging.New("error"))
	if err := svc.NotifyHandoff(context.Background(), testConversation(), "motivo"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestNotifyHandoffPropagatesSendError(t *testing.T) {
	email := &captureEmail{err: errors.New("smtp down")}
	svc := NewService(email, "ops@example.com", logging.New("error"))

	if err := svc.NotifyHandoff(context.Background(), testConversation(), "motivo"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNotifyHandoffNilConversation(t *testing.T) {
	svc := NewService(&captureEmail{}, "ops@example.com", logging.New("error"))
	if err := svc.NotifyHandoff(context.Background(), nil, "motivo"); err == nil {
		t.Fatal("expected error for nil conversation")
	}
}

func TestStubEmailSender(t *testing.T) {
	stub := NewStubEmailSender(logging.New("error"))
	if err := stub.Send(context.Background(), EmailMessage{To: "x@example.com"}); err != nil {
		t.Fatalf("stub send: %v", err)
	}
}
