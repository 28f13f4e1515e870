package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/citaflow/citaflow/internal/channels"
)

// Message directions.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Handoff statuses.
const (
	HandoffOpen   = "OPEN"
	HandoffClosed = "CLOSED"
)

// Client is a human counterparty, identified per channel.
type Client struct {
	ID          uuid.UUID
	Name        string
	WhatsAppID  string
	InstagramID string
	Locale      string
	Timezone    string
	CreatedAt   time.Time
}

// ProposedSlot is one availability option offered to the user, kept on the
// conversation so the next message can select it by number.
type ProposedSlot struct {
	Start   time.Time `json:"start"`
	Label   string    `json:"label"`
	StaffID string    `json:"staff_id,omitempty"`
}

// Conversation is the FSM state record for one (channel, thread) pair.
type Conversation struct {
	ID               uuid.UUID
	Channel          channels.Channel
	ExternalThreadID string
	ClientID         uuid.UUID
	State            State
	LastIntent       Intent
	ServiceHint      string
	PendingSlots     []ProposedSlot
	LastSeenAt       time.Time
	CreatedAt        time.Time
}

// Message is one immutable inbound or outbound turn.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Direction      string
	Text           string
	RawPayload     json.RawMessage
	ProviderTime   *time.Time
	CreatedAt      time.Time
}

// Handoff is an escalation ticket for a conversation.
type Handoff struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Reason         string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store is the persistence contract the engine drives. Implementations
// must honor the uniqueness of (channel, external_thread_id) and keep
// messages append only.
type Store interface {
	FindOrCreateClient(ctx context.Context, channel channels.Channel, externalID string) (*Client, error)
	FindOrCreateConversation(ctx context.Context, channel channels.Channel, threadID string, clientID uuid.UUID) (*Conversation, error)
	UpdateConversation(ctx context.Context, id uuid.UUID, state State, lastIntent Intent) error
	SaveFlowContext(ctx context.Context, id uuid.UUID, serviceHint string, slots []ProposedSlot) error
	AppendMessage(ctx context.Context, msg *Message) error
	CreateHandoff(ctx context.Context, conversationID uuid.UUID, reason string) (*Handoff, error)
	// OpenHandoff returns the latest OPEN handoff or ErrNotFound.
	OpenHandoff(ctx context.Context, conversationID uuid.UUID) (*Handoff, error)
}

// KnowledgeBase answers info intents by substring key match.
type KnowledgeBase interface {
	Lookup(ctx context.Context, text string) (value string, found bool, err error)
}

// AuditLog records externally-created bookings for traceability.
type AuditLog interface {
	AppendBooking(ctx context.Context, conversationID, clientID uuid.UUID, externalID, serviceID, slotLabel string, scheduledFor *time.Time, status string) error
}

// HandoffNotifier alerts a human operator that a conversation escalated.
// Failures are logged, never fatal to the conversation.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, conv *Conversation, reason string) error
}

// Reply is the outbound turn produced by one engine step.
type Reply struct {
	ConversationID uuid.UUID
	Channel        channels.Channel
	RecipientID    string
	Text           string
}
