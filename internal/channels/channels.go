// Package channels defines the closed set of messaging channels and the
// capability every channel must provide to deliver outbound replies.
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Channel identifies which messaging provider a conversation lives on.
type Channel string

const (
	ChannelWhatsApp  Channel = "WHATSAPP"
	ChannelInstagram Channel = "INSTAGRAM"
)

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelInstagram:
		return true
	}
	return false
}

// ParseChannel converts a stored string back into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("channels: unknown channel %q", s)
	}
	return c, nil
}

// NormalizedMessage is the channel-agnostic form of one inbound message.
// A single webhook delivery may normalize into zero or many of these.
type NormalizedMessage struct {
	Channel           Channel         `json:"channel"`
	SenderID          string          `json:"sender_id"`
	ThreadID          string          `json:"thread_id"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	Text              string          `json:"text"`
	Timestamp         time.Time       `json:"timestamp"`
	RawPayload        json.RawMessage `json:"raw_payload,omitempty"`
}

// Sender delivers one outbound text message on a channel. Delivery is
// best-effort: the conversation state transition has already been persisted
// by the time a Sender runs.
type Sender interface {
	Send(ctx context.Context, recipientID, text string) error
}

// Registry resolves the Sender for a channel.
type Registry struct {
	whatsapp  Sender
	instagram Sender
}

// NewRegistry wires one sender per channel.
func NewRegistry(whatsapp, instagram Sender) *Registry {
	return &Registry{whatsapp: whatsapp, instagram: instagram}
}

// Sender returns the sender for the given channel.
func (r *Registry) Sender(c Channel) (Sender, error) {
	switch c {
	case ChannelWhatsApp:
		if r.whatsapp == nil {
			return nil, fmt.Errorf("channels: whatsapp sender not configured")
		}
		return r.whatsapp, nil
	case ChannelInstagram:
		if r.instagram == nil {
			return nil, fmt.Errorf("channels: instagram sender not configured")
		}
		return r.instagram, nil
	default:
		return nil, fmt.Errorf("channels: unknown channel %q", c)
	}
}
