package whatsapp

// WebhookEvent is the top-level structure received from Meta's webhook for
// WhatsApp Business accounts.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents a single entry in the webhook payload.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field change inside an entry; messages arrive under the
// "messages" field.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the messages and contact metadata for a change.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Messages         []Message `json:"messages"`
	Contacts         []Contact `json:"contacts"`
}

// Message is a single inbound WhatsApp message.
type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *Text  `json:"text,omitempty"`
}

// Text is the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// Contact identifies the sender profile.
type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

// Profile carries the sender display name.
type Profile struct {
	Name string `json:"name"`
}

// SendRequest is the payload posted to the Cloud API to send a message.
type SendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             SendText `json:"text"`
}

// SendText is the outbound text body.
type SendText struct {
	Body string `json:"body"`
}

// SendResponse is the Cloud API acknowledgement.
type SendResponse struct {
	Messages []SentMessage `json:"messages"`
}

// SentMessage holds the provider id of an accepted outbound message.
type SentMessage struct {
	ID string `json:"id"`
}

// APIError is the error envelope returned by the Graph API.
type APIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}
