// Package handlers contains the HTTP surface: Meta webhook intake and the
// operator admin API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/internal/gateway"
	"github.com/citaflow/citaflow/internal/observability/metrics"
	"github.com/citaflow/citaflow/pkg/logging"
)

// Meta retries webhook deliveries on non-2xx responses, so the handler
// returns 500 only for failures where a retry can help.
const maxWebhookBody = 1 << 20

// MetaWebhookHandler terminates Meta's webhook callbacks for both
// channels.
type MetaWebhookHandler struct {
	gateway *gateway.Gateway
	metrics *metrics.MessageMetrics
	logger  *logging.Logger
}

// NewMetaWebhookHandler builds the webhook handler.
func NewMetaWebhookHandler(gw *gateway.Gateway, m *metrics.MessageMetrics, logger *logging.Logger) *MetaWebhookHandler {
	if gw == nil {
		panic("handlers: gateway cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MetaWebhookHandler{gateway: gw, metrics: m, logger: logger.Component("webhooks")}
}

// HandleVerify answers Meta's GET subscription handshake.
func (h *MetaWebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := h.gateway.VerifyHandshake(
		q.Get("hub.mode"),
		q.Get("hub.verify_token"),
		q.Get("hub.challenge"),
	)
	if err != nil {
		h.logger.Warn("webhook handshake rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// HandleWebhook processes a POST delivery. Accepted messages are already
// queued by the time the 200 goes out; processing failures after that
// point never surface here.
func (h *MetaWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	accepted, err := h.gateway.Ingest(r.Context(), body, r.Header.Get("X-Hub-Signature-256"))
	switch {
	case err == nil:
		// Fall through to the acknowledgement.
	case errors.Is(err, engine.ErrAuthentication):
		h.metrics.ObserveWebhook("unknown", "rejected")
		h.logger.Warn("webhook signature rejected", "remote_ip", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	case errors.Is(err, engine.ErrValidation):
		h.metrics.ObserveWebhook("unknown", "malformed")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	default:
		// Queue outage or similar; ask Meta to redeliver.
		h.metrics.ObserveWebhook("unknown", "error")
		h.logger.Error("webhook ingest failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("webhook accepted",
		"messages", accepted,
		"duration_ms", time.Since(start).Milliseconds())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
