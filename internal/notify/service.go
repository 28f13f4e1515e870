package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/pkg/logging"
)

// Service notifies a human operator when conversations escalate. It
// satisfies the engine's HandoffNotifier contract.
type Service struct {
	email         EmailSender
	operatorEmail string
	logger        *logging.Logger
}

var _ engine.HandoffNotifier = (*Service)(nil)

// NewService builds a notification service. sender may be nil; the
// service then only logs.
func NewService(sender EmailSender, operatorEmail string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:         sender,
		operatorEmail: operatorEmail,
		logger:        logger.Component("notify"),
	}
}

// NotifyHandoff emails the operator about an escalated conversation.
func (s *Service) NotifyHandoff(ctx context.Context, conv *engine.Conversation, reason string) error {
	if conv == nil {
		return fmt.Errorf("notify: conversation required")
	}
	if s.email == nil || s.operatorEmail == "" {
		s.logger.Warn("handoff notification skipped: no email sender configured",
			"conversation_id", conv.ID.String())
		return nil
	}

	subject := fmt.Sprintf("[CitaFlow] Cliente esperando atención (%s)", conv.Channel)

	var b strings.Builder
	fmt.Fprintf(&b, "Un cliente solicitó atención humana.\n\n")
	fmt.Fprintf(&b, "Canal: %s\n", conv.Channel)
	fmt.Fprintf(&b, "Conversación: %s\n", conv.ID)
	fmt.Fprintf(&b, "Identificador externo: %s\n", conv.ExternalThreadID)
	fmt.Fprintf(&b, "Motivo: %s\n", reason)

	err := s.email.Send(ctx, EmailMessage{
		To:      s.operatorEmail,
		Subject: subject,
		Body:    b.String(),
	})
	if err != nil {
		return fmt.Errorf("notify: handoff notification: %w", err)
	}

	s.logger.Info("handoff notification sent",
		"conversation_id", conv.ID.String(),
		"operator", s.operatorEmail)
	return nil
}
