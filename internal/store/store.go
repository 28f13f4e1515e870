// Package store persists clients, conversations, messages, and handoffs to
// PostgreSQL. Conversations are the unit of FSM state; messages are append
// only and never mutated. The exported type satisfies engine.Store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/engine"
)

const (
	defaultLocale   = "es"
	defaultTimezone = "America/Mexico_City"
	defaultName     = "Nuevo Cliente"
)

const conversationColumns = `id, channel, external_thread_id, client_id, state, COALESCE(last_intent, ''),
		COALESCE(service_hint, ''), COALESCE(pending_slots, '[]'::jsonb), last_seen_at, created_at`

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// New creates a store backed by the given database.
func New(db *sql.DB) *Store {
	if db == nil {
		panic("store: db required")
	}
	return &Store{db: db}
}

// FindOrCreateClient looks a client up by its channel-specific external id,
// creating it with default locale and timezone on first sight.
func (s *Store) FindOrCreateClient(ctx context.Context, channel channels.Channel, externalID string) (*engine.Client, error) {
	column, err := clientIDColumn(channel)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, name, COALESCE(whatsapp_id, ''), COALESCE(instagram_id, ''), locale, timezone, created_at
		FROM clients WHERE %s = $1
	`, column)

	var c engine.Client
	err = s.db.QueryRowContext(ctx, query, externalID).Scan(
		&c.ID, &c.Name, &c.WhatsAppID, &c.InstagramID, &c.Locale, &c.Timezone, &c.CreatedAt,
	)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: find client: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO clients (id, name, %s, locale, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, COALESCE(whatsapp_id, ''), COALESCE(instagram_id, ''), locale, timezone, created_at
	`, column)

	err = s.db.QueryRowContext(ctx, insert, uuid.New(), defaultName, externalID, defaultLocale, defaultTimezone).Scan(
		&c.ID, &c.Name, &c.WhatsAppID, &c.InstagramID, &c.Locale, &c.Timezone, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: create client: %w", err)
	}
	return &c, nil
}

func clientIDColumn(channel channels.Channel) (string, error) {
	switch channel {
	case channels.ChannelWhatsApp:
		return "whatsapp_id", nil
	case channels.ChannelInstagram:
		return "instagram_id", nil
	default:
		return "", fmt.Errorf("store: unknown channel %q: %w", channel, engine.ErrValidation)
	}
}

// FindOrCreateConversation returns the conversation for (channel, thread),
// creating it in state NEW when absent. At most one conversation exists per
// pair; a concurrent insert loses to the unique constraint and re-reads.
func (s *Store) FindOrCreateConversation(ctx context.Context, channel channels.Channel, threadID string, clientID uuid.UUID) (*engine.Conversation, error) {
	conv, err := s.getConversation(ctx, channel, threadID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, engine.ErrNotFound) {
		return nil, err
	}

	query := `
		INSERT INTO conversations (id, channel, external_thread_id, client_id, state, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (channel, external_thread_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.New(), string(channel), threadID, clientID, string(engine.StateNew)); err != nil {
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}
	return s.getConversation(ctx, channel, threadID)
}

func (s *Store) getConversation(ctx context.Context, channel channels.Channel, threadID string) (*engine.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE channel = $1 AND external_thread_id = $2
	`
	conv, err := s.scanConversation(s.db.QueryRowContext(ctx, query, string(channel), threadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: conversation %s/%s: %w", channel, threadID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load conversation: %w", err)
	}
	return conv, nil
}

// GetConversationByID loads a conversation by primary key.
func (s *Store) GetConversationByID(ctx context.Context, id uuid.UUID) (*engine.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1
	`
	conv, err := s.scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: conversation %s: %w", id, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load conversation: %w", err)
	}
	return conv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanConversation(row rowScanner) (*engine.Conversation, error) {
	var (
		c          engine.Conversation
		channelStr string
		stateStr   string
		intentStr  string
		slotsRaw   []byte
	)
	err := row.Scan(
		&c.ID, &channelStr, &c.ExternalThreadID, &c.ClientID, &stateStr, &intentStr,
		&c.ServiceHint, &slotsRaw, &c.LastSeenAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Channel = channels.Channel(channelStr)
	c.State = engine.State(stateStr)
	c.LastIntent = engine.Intent(intentStr)
	if len(slotsRaw) > 0 {
		if err := json.Unmarshal(slotsRaw, &c.PendingSlots); err != nil {
			return nil, fmt.Errorf("store: decode pending slots: %w", err)
		}
	}
	return &c, nil
}

// UpdateConversation records the new state and last detected intent, and
// bumps last_seen_at.
func (s *Store) UpdateConversation(ctx context.Context, id uuid.UUID, state engine.State, lastIntent engine.Intent) error {
	query := `
		UPDATE conversations
		SET state = $2, last_intent = $3, last_seen_at = NOW()
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id, string(state), string(lastIntent))
	if err != nil {
		return fmt.Errorf("store: update conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: conversation %s: %w", id, engine.ErrNotFound)
	}
	return nil
}

// SaveFlowContext stores the booking sub-flow scratch data: the free-text
// service hint and the slots currently proposed to the user. Nil slots
// clears the proposal list.
func (s *Store) SaveFlowContext(ctx context.Context, id uuid.UUID, serviceHint string, slots []engine.ProposedSlot) error {
	if slots == nil {
		slots = []engine.ProposedSlot{}
	}
	encoded, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("store: encode pending slots: %w", err)
	}
	query := `
		UPDATE conversations
		SET service_hint = $2, pending_slots = $3
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id, serviceHint, encoded)
	if err != nil {
		return fmt.Errorf("store: save flow context: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: conversation %s: %w", id, engine.ErrNotFound)
	}
	return nil
}

// AppendMessage inserts one immutable message row.
func (s *Store) AppendMessage(ctx context.Context, msg *engine.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	var raw any
	if len(msg.RawPayload) > 0 {
		raw = []byte(msg.RawPayload)
	}
	query := `
		INSERT INTO messages (id, conversation_id, direction, text, raw_payload, provider_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.ConversationID, msg.Direction, msg.Text, raw, msg.ProviderTime); err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// ListMessages returns messages for a conversation in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]engine.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, conversation_id, direction, text, COALESCE(raw_payload, 'null'::jsonb), provider_ts, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var messages []engine.Message
	for rows.Next() {
		var m engine.Message
		var raw []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Text, &raw, &m.ProviderTime, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.RawPayload = json.RawMessage(raw)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateHandoff opens an escalation ticket for the conversation.
func (s *Store) CreateHandoff(ctx context.Context, conversationID uuid.UUID, reason string) (*engine.Handoff, error) {
	query := `
		INSERT INTO handoffs (id, conversation_id, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, reason, status, created_at, updated_at
	`
	var h engine.Handoff
	err := s.db.QueryRowContext(ctx, query, uuid.New(), conversationID, reason, engine.HandoffOpen).Scan(
		&h.ID, &h.ConversationID, &h.Reason, &h.Status, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: create handoff: %w", err)
	}
	return &h, nil
}

// OpenHandoff returns the most recent OPEN handoff for the conversation, or
// engine.ErrNotFound when none exists.
func (s *Store) OpenHandoff(ctx context.Context, conversationID uuid.UUID) (*engine.Handoff, error) {
	query := `
		SELECT id, conversation_id, reason, status, created_at, updated_at
		FROM handoffs
		WHERE conversation_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var h engine.Handoff
	err := s.db.QueryRowContext(ctx, query, conversationID, engine.HandoffOpen).Scan(
		&h.ID, &h.ConversationID, &h.Reason, &h.Status, &h.CreatedAt, &h.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: open handoff for %s: %w", conversationID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load handoff: %w", err)
	}
	return &h, nil
}

// UpdateHandoffStatus transitions a handoff ticket (operator action).
func (s *Store) UpdateHandoffStatus(ctx context.Context, handoffID uuid.UUID, status string) error {
	if status != engine.HandoffOpen && status != engine.HandoffClosed {
		return fmt.Errorf("store: invalid handoff status %q: %w", status, engine.ErrValidation)
	}
	query := `UPDATE handoffs SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, handoffID, status)
	if err != nil {
		return fmt.Errorf("store: update handoff: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: handoff %s: %w", handoffID, engine.ErrNotFound)
	}
	return nil
}
