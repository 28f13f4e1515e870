package simplybook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/citaflow/citaflow/internal/booking"
	"github.com/citaflow/citaflow/pkg/logging"
)

// Simulator implements the booking adapter contract with deterministic
// canned data. It exists for development and testing only; construction is
// gated by configuration and refused in production (see cmd wiring).
type Simulator struct {
	logger *logging.Logger

	mu      sync.Mutex
	nextID  int
	created map[string]booking.CreateParams
}

var _ booking.Adapter = (*Simulator)(nil)

// NewSimulator returns a simulator with a fixed catalog and slot set.
func NewSimulator(logger *logging.Logger) *Simulator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Simulator{
		logger:  logger,
		nextID:  1,
		created: make(map[string]booking.CreateParams),
	}
}

// Name identifies this adapter as the clearly-labeled simulation.
func (s *Simulator) Name() string { return "simulator" }

var simulatedServices = []booking.Service{
	{ID: "1", Name: "Consulta General", DurationMinutes: 30},
	{ID: "2", Name: "Tratamiento Especial", DurationMinutes: 60},
	{ID: "3", Name: "Revisión", DurationMinutes: 15},
}

// ListServices returns the fixed catalog.
func (s *Simulator) ListServices(ctx context.Context) ([]booking.Service, error) {
	s.logger.Info("simplybook SIMULATOR: returning canned services")
	return append([]booking.Service(nil), simulatedServices...), nil
}

// GetAvailability returns five deterministic slots starting the day after
// the date hint, mornings and afternoons.
func (s *Simulator) GetAvailability(ctx context.Context, serviceID string, dateHint time.Time, staffID string) ([]booking.Slot, error) {
	s.logger.Info("simplybook SIMULATOR: returning canned availability", "service_id", serviceID)

	day := dateHint.Truncate(24 * time.Hour).Add(24 * time.Hour)
	offsets := []time.Duration{
		10 * time.Hour,
		14 * time.Hour,
		24*time.Hour + 11*time.Hour,
		24*time.Hour + 15*time.Hour,
		48*time.Hour + 10*time.Hour,
	}

	slots := make([]booking.Slot, 0, len(offsets))
	for _, off := range offsets {
		start := day.Add(off)
		slots = append(slots, booking.Slot{
			Start: start,
			Label: start.Format("3:04 PM - Mon 02 Jan"),
		})
	}
	return slots, nil
}

// CreateBooking records the booking in memory and confirms it.
func (s *Simulator) CreateBooking(ctx context.Context, params booking.CreateParams) (*booking.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("sim-%d", s.nextID)
	s.nextID++
	s.created[id] = params

	s.logger.Info("simplybook SIMULATOR: created booking", "external_id", id, "service_id", params.ServiceID)
	return &booking.Result{
		ExternalID:    id,
		ConfirmedTime: params.SlotLabel,
		Status:        "confirmed",
	}, nil
}

// CancelBooking removes a simulated booking.
func (s *Simulator) CancelBooking(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.created[externalID]; !ok {
		return fmt.Errorf("simulator: booking %s not found", externalID)
	}
	delete(s.created, externalID)
	s.logger.Info("simplybook SIMULATOR: cancelled booking", "external_id", externalID)
	return nil
}

// RescheduleBooking moves a simulated booking.
func (s *Simulator) RescheduleBooking(ctx context.Context, externalID string, newStart time.Time) (*booking.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, ok := s.created[externalID]
	if !ok {
		return nil, fmt.Errorf("simulator: booking %s not found", externalID)
	}
	params.Start = newStart
	params.SlotLabel = newStart.Format("3:04 PM - Mon 02 Jan")
	s.created[externalID] = params

	s.logger.Info("simplybook SIMULATOR: rescheduled booking", "external_id", externalID)
	return &booking.Result{
		ExternalID:    externalID,
		ConfirmedTime: params.SlotLabel,
		Status:        "rescheduled",
	}, nil
}
