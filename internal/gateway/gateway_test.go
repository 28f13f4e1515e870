package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/pkg/logging"
)

const testSecret = "app-secret"

type capturePublisher struct {
	mu       sync.Mutex
	messages []channels.NormalizedMessage
	failures int
}

func (p *capturePublisher) Publish(_ context.Context, msg channels.NormalizedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("queue down")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func sign(t *testing.T, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestDeduper(t *testing.T) *Deduper {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewDeduper(rdb, time.Hour)
}

const whatsappPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "biz-1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"messages": [
					{"from": "521555000001", "id": "wamid.1", "timestamp": "1756723200", "type": "text", "text": {"body": "hola"}},
					{"from": "521555000002", "id": "wamid.2", "timestamp": "1756723201", "type": "image"}
				]
			}
		}]
	}]
}`

const instagramPayload = `{
	"object": "instagram",
	"entry": [{
		"id": "page-1",
		"time": 1756723200000,
		"messaging": [{
			"sender": {"id": "ig_77"},
			"recipient": {"id": "page-1"},
			"timestamp": 1756723200000,
			"message": {"mid": "mid.1", "text": "quiero una cita"}
		}]
	}]
}`

func TestVerifyHandshake(t *testing.T) {
	g := New(testSecret, "verify-me", nil, &capturePublisher{}, logging.New("error"))

	challenge, err := g.VerifyHandshake("subscribe", "verify-me", "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", challenge)

	_, err = g.VerifyHandshake("subscribe", "wrong", "12345")
	assert.True(t, errors.Is(err, engine.ErrAuthentication))

	_, err = g.VerifyHandshake("unsubscribe", "verify-me", "12345")
	assert.True(t, errors.Is(err, engine.ErrAuthentication))

	g2 := New(testSecret, "", nil, &capturePublisher{}, logging.New("error"))
	_, err = g2.VerifyHandshake("subscribe", "", "12345")
	assert.True(t, errors.Is(err, engine.ErrAuthentication), "empty configured token must never verify")
}

func TestIngestRejectsBadSignature(t *testing.T) {
	pub := &capturePublisher{}
	g := New(testSecret, "verify-me", nil, pub, logging.New("error"))

	body := []byte(whatsappPayload)
	for _, header := range []string{
		"",
		"sha256=",
		"sha256=deadbeef",
		"sha1=" + hex.EncodeToString(make([]byte, 20)),
		sign(t, []byte("different body")),
	} {
		n, err := g.Ingest(context.Background(), body, header)
		assert.True(t, errors.Is(err, engine.ErrAuthentication), "header %q", header)
		assert.Zero(t, n)
	}
	assert.Empty(t, pub.messages, "rejected payloads must have no side effects")
}

func TestIngestWhatsApp(t *testing.T) {
	pub := &capturePublisher{}
	g := New(testSecret, "verify-me", nil, pub, logging.New("error"))

	body := []byte(whatsappPayload)
	n, err := g.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)

	// The image message has no text and is skipped.
	assert.Equal(t, 1, n)
	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, channels.ChannelWhatsApp, msg.Channel)
	assert.Equal(t, "521555000001", msg.SenderID)
	assert.Equal(t, "wamid.1", msg.ProviderMessageID)
	assert.Equal(t, "hola", msg.Text)
}

func TestIngestInstagram(t *testing.T) {
	pub := &capturePublisher{}
	g := New(testSecret, "verify-me", nil, pub, logging.New("error"))

	body := []byte(instagramPayload)
	n, err := g.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, channels.ChannelInstagram, pub.messages[0].Channel)
	assert.Equal(t, "mid.1", pub.messages[0].ProviderMessageID)
}

func TestIngestUnknownObjectIsIgnored(t *testing.T) {
	pub := &capturePublisher{}
	g := New(testSecret, "verify-me", nil, pub, logging.New("error"))

	body := []byte(`{"object": "page", "entry": []}`)
	n, err := g.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.messages)
}

func TestIngestMalformedBody(t *testing.T) {
	g := New(testSecret, "verify-me", nil, &capturePublisher{}, logging.New("error"))

	body := []byte(`{"object": `)
	_, err := g.Ingest(context.Background(), body, sign(t, body))
	assert.True(t, errors.Is(err, engine.ErrValidation))
}

func TestIngestDeduplicatesRedelivery(t *testing.T) {
	pub := &capturePublisher{}
	g := New(testSecret, "verify-me", newTestDeduper(t), pub, logging.New("error"))

	body := []byte(whatsappPayload)
	n, err := g.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = g.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)
	assert.Zero(t, n, "redelivery must be dropped")
	assert.Len(t, pub.messages, 1)
}

func TestDeduperIgnoresEmptyID(t *testing.T) {
	d := newTestDeduper(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Mark(ctx, channels.ChannelWhatsApp, ""))
		seen, err := d.Seen(ctx, channels.ChannelWhatsApp, "")
		require.NoError(t, err)
		assert.False(t, seen, "messages without provider id are never deduplicated")
	}

	seen, err := d.Seen(ctx, channels.ChannelWhatsApp, "wamid.9")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, d.Mark(ctx, channels.ChannelWhatsApp, "wamid.9"))
	seen, err = d.Seen(ctx, channels.ChannelWhatsApp, "wamid.9")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same id on another channel is a distinct message.
	seen, err = d.Seen(ctx, channels.ChannelInstagram, "wamid.9")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIngestPublishFailurePropagates(t *testing.T) {
	pub := &capturePublisher{failures: 1}
	g := New(testSecret, "verify-me", nil, pub, logging.New("error"))

	body := []byte(whatsappPayload)
	_, err := g.Ingest(context.Background(), body, sign(t, body))
	require.Error(t, err)
}

func TestIngestPublishFailureLeavesRedeliveryEligible(t *testing.T) {
	pub := &capturePublisher{failures: 1}
	g := New(testSecret, "verify-me", newTestDeduper(t), pub, logging.New("error"))

	body := []byte(whatsappPayload)
	n, err := g.Ingest(context.Background(), body, sign(t, body))
	require.Error(t, err)
	assert.Zero(t, n)

	// Meta retries the whole delivery after the 5xx. The message was never
	// handed off, so it must not be swallowed as a duplicate.
	n, err = g.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "wamid.1", pub.messages[0].ProviderMessageID)

	// And a further redelivery is still deduplicated.
	n, err = g.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, pub.messages, 1)
}
