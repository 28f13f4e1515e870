// Package booking defines the adapter contract to the external scheduling
// authority. The remote system is the sole source of truth for availability
// and bookings; adapters must never fabricate availability or report
// success when the remote call failed.
package booking

import (
	"context"
	"time"
)

// Service is a bookable service offered by the business.
type Service struct {
	ID              string
	Name            string
	DurationMinutes int
}

// Slot is a single available appointment slot, human-readable label
// included so the engine can enumerate options to the user.
type Slot struct {
	Start   time.Time
	Label   string
	StaffID string
}

// CreateParams are the inputs to CreateBooking.
type CreateParams struct {
	ServiceID string
	Start     time.Time
	SlotLabel string
	StaffID   string
	ClientRef string
}

// Result is returned by CreateBooking and RescheduleBooking. ExternalID is
// the authoritative system's identifier; this core only persists it for
// audit traceability.
type Result struct {
	ExternalID    string
	ConfirmedTime string
	Status        string
}

// Adapter is the integration boundary to the scheduling authority. Each
// operation is idempotent by intent but not retried automatically by this
// core; the user's next message re-drives the flow after a failure.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "simplybook", "simulator").
	Name() string

	ListServices(ctx context.Context) ([]Service, error)

	// GetAvailability returns ordered open slots for the service around the
	// given date hint. staffID may be empty.
	GetAvailability(ctx context.Context, serviceID string, dateHint time.Time, staffID string) ([]Slot, error)

	CreateBooking(ctx context.Context, params CreateParams) (*Result, error)

	CancelBooking(ctx context.Context, externalID string) error

	RescheduleBooking(ctx context.Context, externalID string, newStart time.Time) (*Result, error)
}
