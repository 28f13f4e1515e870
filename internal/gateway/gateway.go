// Package gateway is the single entry point for Meta webhook traffic: it
// authenticates payloads, fans the envelope out to the channel parsers,
// deduplicates redeliveries, and hands accepted messages to the queue.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/channels/instagram"
	"github.com/citaflow/citaflow/internal/channels/whatsapp"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/pkg/logging"
)

// Publisher enqueues an accepted message for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, msg channels.NormalizedMessage) error
}

// DedupChecker remembers recently accepted messages. Seen is consulted
// before publishing; Mark records the id only once the publish succeeded,
// so a failed publish stays eligible for the provider's redelivery.
type DedupChecker interface {
	Seen(ctx context.Context, channel channels.Channel, providerMessageID string) (bool, error)
	Mark(ctx context.Context, channel channels.Channel, providerMessageID string) error
}

// Gateway authenticates and routes inbound webhook payloads.
type Gateway struct {
	appSecret   string
	verifyToken string
	dedup       DedupChecker
	publisher   Publisher
	logger      *logging.Logger
}

// New builds a gateway. dedup may be nil, in which case no deduplication
// happens (tests, local development without Redis).
func New(appSecret, verifyToken string, dedup DedupChecker, publisher Publisher, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{
		appSecret:   appSecret,
		verifyToken: verifyToken,
		dedup:       dedup,
		publisher:   publisher,
		logger:      logger.Component("gateway"),
	}
}

// VerifyHandshake checks a GET subscription handshake and returns the
// challenge to echo back.
func (g *Gateway) VerifyHandshake(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || token == "" || token != g.verifyToken {
		return "", fmt.Errorf("gateway: handshake rejected: %w", engine.ErrAuthentication)
	}
	return challenge, nil
}

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// request body. The comparison is constant time.
func (g *Gateway) VerifySignature(body []byte, header string) error {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("gateway: missing or malformed signature header: %w", engine.ErrAuthentication)
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return fmt.Errorf("gateway: signature not hex: %w", engine.ErrAuthentication)
	}

	mac := hmac.New(sha256.New, []byte(g.appSecret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return fmt.Errorf("gateway: signature mismatch: %w", engine.ErrAuthentication)
	}
	return nil
}

// envelope is the minimal shape shared by every Meta webhook payload.
type envelope struct {
	Object string `json:"object"`
}

// Ingest authenticates the payload, extracts every message unit, drops
// duplicates and publishes the rest. It returns how many messages were
// accepted. A malformed unit is skipped, never fatal to its siblings; an
// authentication failure rejects the whole payload with no side effects.
func (g *Gateway) Ingest(ctx context.Context, body []byte, signatureHeader string) (int, error) {
	if err := g.VerifySignature(body, signatureHeader); err != nil {
		return 0, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, fmt.Errorf("gateway: malformed payload: %w", engine.ErrValidation)
	}

	var messages []channels.NormalizedMessage
	switch env.Object {
	case whatsapp.ObjectName:
		var event whatsapp.WebhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return 0, fmt.Errorf("gateway: malformed whatsapp payload: %w", engine.ErrValidation)
		}
		messages = whatsapp.ParseWebhookEvent(event)
	case instagram.ObjectName:
		var event instagram.WebhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return 0, fmt.Errorf("gateway: malformed instagram payload: %w", engine.ErrValidation)
		}
		messages = instagram.ParseWebhookEvent(event)
	default:
		g.logger.Warn("unrecognized webhook object", "object", env.Object)
		return 0, nil
	}

	accepted := 0
	for _, msg := range messages {
		if msg.Text == "" {
			continue
		}
		if g.dedup != nil {
			seen, err := g.dedup.Seen(ctx, msg.Channel, msg.ProviderMessageID)
			if err != nil {
				// Dedup outage must not drop traffic; the engine is
				// tolerant of occasional replays.
				g.logger.Error("dedup check failed, accepting message", "error", err)
			} else if seen {
				g.logger.Info("duplicate message dropped",
					"channel", string(msg.Channel),
					"provider_message_id", msg.ProviderMessageID)
				continue
			}
		}
		if err := g.publisher.Publish(ctx, msg); err != nil {
			// The id stays unmarked, so Meta's retry of this delivery
			// is accepted instead of being dropped as a duplicate.
			return accepted, fmt.Errorf("gateway: publish: %w", err)
		}
		if g.dedup != nil {
			if err := g.dedup.Mark(ctx, msg.Channel, msg.ProviderMessageID); err != nil {
				g.logger.Error("dedup mark failed", "error", err)
			}
		}
		accepted++
	}
	return accepted, nil
}
