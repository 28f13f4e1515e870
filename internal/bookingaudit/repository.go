// Package bookingaudit keeps an append-only trace of bookings created
// through the external scheduling authority. The remote system stays
// authoritative; these rows exist for traceability only.
package bookingaudit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one audit row. Rows are write-once from this core's
// perspective; the external id is the authority's identifier.
type Record struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	ClientID       uuid.UUID
	ExternalID     string
	ServiceID      string
	SlotLabel      string
	ScheduledFor   *time.Time
	Status         string
	CreatedAt      time.Time
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists booking audit rows.
type Repository struct {
	pool querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookingaudit: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("bookingaudit: querier required")
	}
	return &Repository{pool: q}
}

// Append inserts one audit row.
func (r *Repository) Append(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	query := `
		INSERT INTO booking_audit (id, conversation_id, client_id, external_id, service_id, slot_label, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		toPGUUID(rec.ID), toPGUUID(rec.ConversationID), toPGUUID(rec.ClientID),
		rec.ExternalID, rec.ServiceID, rec.SlotLabel, toPGNullableTime(rec.ScheduledFor), rec.Status,
	)
	if err != nil {
		return fmt.Errorf("bookingaudit: append: %w", err)
	}
	return nil
}

// AppendBooking is the engine-facing form of Append.
func (r *Repository) AppendBooking(ctx context.Context, conversationID, clientID uuid.UUID, externalID, serviceID, slotLabel string, scheduledFor *time.Time, status string) error {
	return r.Append(ctx, &Record{
		ConversationID: conversationID,
		ClientID:       clientID,
		ExternalID:     externalID,
		ServiceID:      serviceID,
		SlotLabel:      slotLabel,
		ScheduledFor:   scheduledFor,
		Status:         status,
	})
}

// ListForConversation returns audit rows for one conversation, oldest first.
func (r *Repository) ListForConversation(ctx context.Context, conversationID uuid.UUID) ([]Record, error) {
	query := `
		SELECT id, conversation_id, client_id, external_id, service_id, slot_label, scheduled_for, status, created_at
		FROM booking_audit
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, toPGUUID(conversationID))
	if err != nil {
		return nil, fmt.Errorf("bookingaudit: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			id        pgtype.UUID
			convID    pgtype.UUID
			clientID  pgtype.UUID
			scheduled pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &convID, &clientID, &rec.ExternalID, &rec.ServiceID, &rec.SlotLabel, &scheduled, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("bookingaudit: scan: %w", err)
		}
		rec.ID = uuid.UUID(id.Bytes)
		rec.ConversationID = uuid.UUID(convID.Bytes)
		rec.ClientID = uuid.UUID(clientID.Bytes)
		if scheduled.Valid {
			t := scheduled.Time
			rec.ScheduledFor = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{
		Bytes: [16]byte(id),
		Valid: true,
	}
}

func toPGNullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{
		Time:  *t,
		Valid: true,
	}
}
