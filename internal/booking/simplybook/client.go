// Package simplybook implements the booking adapter against the SimplyBook
// API, plus a deterministic simulator for development and tests.
package simplybook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/citaflow/citaflow/internal/booking"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/pkg/logging"
)

const defaultHTTPTimeout = 10 * time.Second

var apiTracer = otel.Tracer("citaflow.internal.booking.simplybook")

// Client calls the SimplyBook REST API. All failures wrap
// engine.ErrExternalService so the conversation engine can revert the FSM
// instead of advancing on a false success.
type Client struct {
	baseURL      string
	companyLogin string
	apiKey       string
	httpClient   *http.Client
	logger       *logging.Logger
}

var _ booking.Adapter = (*Client)(nil)

// NewClient creates a SimplyBook API client.
func NewClient(baseURL, companyLogin, apiKey string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:      baseURL,
		companyLogin: companyLogin,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:       logger,
	}
}

// WithTimeout overrides the HTTP timeout applied to every adapter call.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// Name identifies this adapter.
func (c *Client) Name() string { return "simplybook" }

type serviceDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Duration int    `json:"duration"`
}

type slotDTO struct {
	Start   string `json:"start_datetime"`
	Label   string `json:"label"`
	StaffID string `json:"provider_id"`
}

type bookingDTO struct {
	ID            string `json:"id"`
	ConfirmedTime string `json:"start_datetime_formatted"`
	Status        string `json:"status"`
}

// ListServices fetches the bookable service catalog.
func (c *Client) ListServices(ctx context.Context) ([]booking.Service, error) {
	var dtos []serviceDTO
	if err := c.call(ctx, http.MethodGet, "/services", nil, &dtos); err != nil {
		return nil, err
	}
	services := make([]booking.Service, 0, len(dtos))
	for _, d := range dtos {
		services = append(services, booking.Service{ID: d.ID, Name: d.Name, DurationMinutes: d.Duration})
	}
	return services, nil
}

// GetAvailability queries open slots. An empty list is a real answer (no
// availability), distinct from an error.
func (c *Client) GetAvailability(ctx context.Context, serviceID string, dateHint time.Time, staffID string) ([]booking.Slot, error) {
	path := fmt.Sprintf("/availability?service_id=%s&date=%s", serviceID, dateHint.Format("2006-01-02"))
	if staffID != "" {
		path += "&provider_id=" + staffID
	}

	var dtos []slotDTO
	if err := c.call(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}

	slots := make([]booking.Slot, 0, len(dtos))
	for _, d := range dtos {
		start, err := time.Parse(time.RFC3339, d.Start)
		if err != nil {
			c.logger.Warn("simplybook: skipping slot with bad start time", "start", d.Start)
			continue
		}
		slots = append(slots, booking.Slot{Start: start, Label: d.Label, StaffID: d.StaffID})
	}
	return slots, nil
}

// CreateBooking creates a booking in the authoritative system.
func (c *Client) CreateBooking(ctx context.Context, params booking.CreateParams) (*booking.Result, error) {
	body := map[string]any{
		"service_id":     params.ServiceID,
		"start_datetime": params.Start.Format(time.RFC3339),
		"client_ref":     params.ClientRef,
	}
	if params.StaffID != "" {
		body["provider_id"] = params.StaffID
	}

	var dto bookingDTO
	if err := c.call(ctx, http.MethodPost, "/bookings", body, &dto); err != nil {
		return nil, err
	}
	return &booking.Result{ExternalID: dto.ID, ConfirmedTime: dto.ConfirmedTime, Status: dto.Status}, nil
}

// CancelBooking cancels an existing booking by its external id.
func (c *Client) CancelBooking(ctx context.Context, externalID string) error {
	return c.call(ctx, http.MethodDelete, "/bookings/"+externalID, nil, nil)
}

// RescheduleBooking moves an existing booking to a new start time.
func (c *Client) RescheduleBooking(ctx context.Context, externalID string, newStart time.Time) (*booking.Result, error) {
	body := map[string]any{"start_datetime": newStart.Format(time.RFC3339)}

	var dto bookingDTO
	if err := c.call(ctx, http.MethodPut, "/bookings/"+externalID, body, &dto); err != nil {
		return nil, err
	}
	return &booking.Result{ExternalID: dto.ID, ConfirmedTime: dto.ConfirmedTime, Status: dto.Status}, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	ctx, span := apiTracer.Start(ctx, "simplybook.call",
		trace.WithAttributes(attribute.String("method", method), attribute.String("path", path)))
	defer span.End()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("simplybook: marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	url := fmt.Sprintf("%s/v2/%s%s", c.baseURL, c.companyLogin, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("simplybook: create request: %w", err)
	}
	req.Header.Set("X-Company-Login", c.companyLogin)
	req.Header.Set("X-Token", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("simplybook: %s %s: %v: %w", method, path, err, engine.ErrExternalService)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("simplybook: read response: %v: %w", err, engine.ErrExternalService)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("simplybook: %s %s: status %d: %s: %w", method, path, resp.StatusCode, string(respBody), engine.ErrExternalService)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("simplybook: unmarshal response: %v: %w", err, engine.ErrExternalService)
		}
	}
	return nil
}
