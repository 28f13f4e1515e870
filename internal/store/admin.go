package store

import (
	"context"
	"fmt"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/engine"
)

// ListClients returns the most recently created clients.
func (s *Store) ListClients(ctx context.Context, limit int) ([]engine.Client, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, name, COALESCE(whatsapp_id, ''), COALESCE(instagram_id, ''), locale, timezone, created_at
		FROM clients
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list clients: %w", err)
	}
	defer rows.Close()

	var clients []engine.Client
	for rows.Next() {
		var c engine.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.WhatsAppID, &c.InstagramID, &c.Locale, &c.Timezone, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ListConversations returns conversations ordered by recency of activity.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]engine.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, channel, external_thread_id, client_id, state, COALESCE(last_intent, ''), last_seen_at, created_at
		FROM conversations
		ORDER BY last_seen_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []engine.Conversation
	for rows.Next() {
		var (
			c          engine.Conversation
			channelStr string
			stateStr   string
			intentStr  string
		)
		if err := rows.Scan(&c.ID, &channelStr, &c.ExternalThreadID, &c.ClientID, &stateStr, &intentStr, &c.LastSeenAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan conversation: %w", err)
		}
		c.Channel = channels.Channel(channelStr)
		c.State = engine.State(stateStr)
		c.LastIntent = engine.Intent(intentStr)
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// ListHandoffs returns handoff tickets, optionally filtered by status.
func (s *Store) ListHandoffs(ctx context.Context, status string, limit int) ([]engine.Handoff, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, conversation_id, reason, status, created_at, updated_at
		FROM handoffs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list handoffs: %w", err)
	}
	defer rows.Close()

	var handoffs []engine.Handoff
	for rows.Next() {
		var h engine.Handoff
		if err := rows.Scan(&h.ID, &h.ConversationID, &h.Reason, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan handoff: %w", err)
		}
		handoffs = append(handoffs, h)
	}
	return handoffs, rows.Err()
}
