package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/engine"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func clientRows(id uuid.UUID, waID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "whatsapp_id", "instagram_id", "locale", "timezone", "created_at"}).
		AddRow(id, "Nuevo Cliente", waID, "", "es", "America/Mexico_City", time.Now())
}

func TestFindOrCreateClientExisting(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM clients WHERE whatsapp_id = \$1`).
		WithArgs("wa_1").
		WillReturnRows(clientRows(id, "wa_1"))

	c, err := s.FindOrCreateClient(context.Background(), channels.ChannelWhatsApp, "wa_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != id || c.WhatsAppID != "wa_1" {
		t.Fatalf("unexpected client: %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindOrCreateClientCreatesOnFirstSight(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM clients WHERE instagram_id = \$1`).
		WithArgs("ig_9").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO clients .+ RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "whatsapp_id", "instagram_id", "locale", "timezone", "created_at"}).
			AddRow(id, "Nuevo Cliente", "", "ig_9", "es", "America/Mexico_City", time.Now()))

	c, err := s.FindOrCreateClient(context.Background(), channels.ChannelInstagram, "ig_9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.InstagramID != "ig_9" || c.Locale != "es" {
		t.Fatalf("unexpected client defaults: %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindOrCreateConversationCreatesNew(t *testing.T) {
	s, mock := newMockStore(t)
	clientID := uuid.New()
	convID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM conversations\s+WHERE channel = \$1 AND external_thread_id = \$2`).
		WithArgs("WHATSAPP", "wa_1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO conversations`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM conversations\s+WHERE channel = \$1 AND external_thread_id = \$2`).
		WithArgs("WHATSAPP", "wa_1").
		WillReturnRows(conversationRows(convID, clientID, "NEW", ""))

	conv, err := s.FindOrCreateConversation(context.Background(), channels.ChannelWhatsApp, "wa_1", clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.State != engine.StateNew {
		t.Fatalf("expected NEW state, got %s", conv.State)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func conversationRows(id, clientID uuid.UUID, state, intent string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "channel", "external_thread_id", "client_id", "state", "last_intent", "service_hint", "pending_slots", "last_seen_at", "created_at"}).
		AddRow(id, "WHATSAPP", "wa_1", clientID, state, intent, "", []byte(`[]`), time.Now(), time.Now())
}

func TestUpdateConversation(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE conversations`).
		WithArgs(id, "NEED_SERVICE", "book").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateConversation(context.Background(), id, engine.StateNeedService, engine.IntentBook); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateConversationMissing(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE conversations`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateConversation(context.Background(), id, engine.StateNeedService, engine.IntentBook)
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveFlowContext(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE conversations\s+SET service_hint`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	slots := []engine.ProposedSlot{{Start: time.Now(), Label: "Lunes 10:00"}}
	if err := s.SaveFlowContext(context.Background(), id, "consulta", slots); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec(`UPDATE conversations\s+SET service_hint`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.SaveFlowContext(context.Background(), id, "consulta", nil); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppendMessage(t *testing.T) {
	s, mock := newMockStore(t)
	convID := uuid.New()

	mock.ExpectExec(`INSERT INTO messages`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg := &engine.Message{
		ConversationID: convID,
		Direction:      engine.DirectionInbound,
		Text:           "hola",
		RawPayload:     []byte(`{"from":"wa_1"}`),
	}
	if err := s.AppendMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == uuid.Nil {
		t.Fatal("expected message id to be assigned")
	}
}

func TestHandoffLifecycle(t *testing.T) {
	s, mock := newMockStore(t)
	convID := uuid.New()
	handoffID := uuid.New()

	mock.ExpectQuery(`INSERT INTO handoffs .+ RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "reason", "status", "created_at", "updated_at"}).
			AddRow(handoffID, convID, "Cliente solicitó hablar con un humano", engine.HandoffOpen, time.Now(), time.Now()))

	h, err := s.CreateHandoff(context.Background(), convID, "Cliente solicitó hablar con un humano")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Status != engine.HandoffOpen {
		t.Fatalf("expected OPEN handoff, got %s", h.Status)
	}

	mock.ExpectQuery(`SELECT .+ FROM handoffs`).
		WithArgs(convID, engine.HandoffOpen).
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "reason", "status", "created_at", "updated_at"}).
			AddRow(handoffID, convID, h.Reason, engine.HandoffOpen, time.Now(), time.Now()))

	open, err := s.OpenHandoff(context.Background(), convID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open.ID != handoffID {
		t.Fatalf("unexpected handoff: %+v", open)
	}

	mock.ExpectExec(`UPDATE handoffs`).
		WithArgs(handoffID, engine.HandoffClosed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateHandoffStatus(context.Background(), handoffID, engine.HandoffClosed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.UpdateHandoffStatus(context.Background(), handoffID, "WEIRD"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenHandoffMissing(t *testing.T) {
	s, mock := newMockStore(t)
	convID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM handoffs`).
		WillReturnError(sql.ErrNoRows)

	_, err := s.OpenHandoff(context.Background(), convID)
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
