package whatsapp

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/citaflow/citaflow/internal/channels"
)

// ObjectName is the value of the "object" field Meta sets on WhatsApp
// Business webhook deliveries.
const ObjectName = "whatsapp_business_account"

// ParseWebhookEvent extracts normalized messages from a WhatsApp webhook
// event. Non-text messages are skipped; a delivery may contain zero messages
// (e.g. status-only callbacks).
func ParseWebhookEvent(event WebhookEvent) []channels.NormalizedMessage {
	var messages []channels.NormalizedMessage

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text == nil {
					continue
				}
				raw, _ := json.Marshal(m)
				messages = append(messages, channels.NormalizedMessage{
					Channel:           channels.ChannelWhatsApp,
					SenderID:          m.From,
					ThreadID:          m.From,
					ProviderMessageID: m.ID,
					Text:              m.Text.Body,
					Timestamp:         parseTimestamp(m.Timestamp),
					RawPayload:        raw,
				})
			}
		}
	}

	return messages
}

// parseTimestamp converts WhatsApp's unix-seconds string; falls back to now
// when the provider omits or mangles it.
func parseTimestamp(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
