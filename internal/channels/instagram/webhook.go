package instagram

import (
	"encoding/json"
	"time"

	"github.com/citaflow/citaflow/internal/channels"
)

// ObjectName is the value of the "object" field Meta sets on Instagram
// webhook deliveries.
const ObjectName = "instagram"

// ParseWebhookEvent extracts normalized messages from an Instagram webhook
// event. Events without a message body (reads, reactions) are skipped.
func ParseWebhookEvent(event WebhookEvent) []channels.NormalizedMessage {
	var messages []channels.NormalizedMessage

	for _, entry := range event.Entry {
		for _, m := range entry.Messaging {
			if m.Message == nil || m.Message.Text == "" {
				continue
			}
			raw, _ := json.Marshal(m)
			messages = append(messages, channels.NormalizedMessage{
				Channel:           channels.ChannelInstagram,
				SenderID:          m.Sender.ID,
				ThreadID:          m.Sender.ID,
				ProviderMessageID: m.Message.MID,
				Text:              m.Message.Text,
				Timestamp:         time.UnixMilli(m.Timestamp).UTC(),
				RawPayload:        raw,
			})
		}
	}

	return messages
}
