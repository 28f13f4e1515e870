// Package engine drives the per-conversation finite state machine: it
// classifies inbound text, advances the conversation state, talks to the
// external scheduling authority, and produces the outbound reply. One
// engine step runs under a per-conversation lock so state transitions
// are strictly serial.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/citaflow/citaflow/internal/booking"
	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/pkg/logging"
)

const maxProposedSlots = 3

// Engine coordinates one conversation turn end to end.
type Engine struct {
	store      Store
	classifier Classifier
	adapter    booking.Adapter
	knowledge  KnowledgeBase
	audit      AuditLog
	notifier   HandoffNotifier
	locks      *KeyedLock
	logger     *logging.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithKnowledge wires a knowledge base for info intents. Without one,
// info intents always answer the not-found reply.
func WithKnowledge(kb KnowledgeBase) Option {
	return func(e *Engine) { e.knowledge = kb }
}

// WithAuditLog wires a booking audit trail.
func WithAuditLog(a AuditLog) Option {
	return func(e *Engine) { e.audit = a }
}

// WithNotifier wires operator notification on handoff.
func WithNotifier(n HandoffNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLockTimeout bounds how long a turn waits for the conversation lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) { e.locks = NewKeyedLock(d) }
}

// New builds an Engine. Store, classifier and booking adapter are
// required; everything else is optional.
func New(st Store, cl Classifier, ad booking.Adapter, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:      st,
		classifier: cl,
		adapter:    ad,
		locks:      NewKeyedLock(0),
		logger:     logger.Component("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs one conversation turn for a normalized inbound message and
// returns the reply to send. It acquires the conversation lock, persists
// the inbound message, advances the state machine, persists the outbound
// message and releases the lock. A lock that cannot be acquired in time
// returns ErrConcurrency so the caller can redeliver.
func (e *Engine) Process(ctx context.Context, msg channels.NormalizedMessage) (*Reply, error) {
	if msg.Text == "" {
		return nil, fmt.Errorf("engine: empty message text: %w", ErrValidation)
	}

	lockKey := string(msg.Channel) + ":" + msg.ThreadID
	release, err := e.locks.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	client, err := e.store.FindOrCreateClient(ctx, msg.Channel, msg.SenderID)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve client: %w", err)
	}
	conv, err := e.store.FindOrCreateConversation(ctx, msg.Channel, msg.ThreadID, client.ID)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve conversation: %w", err)
	}

	inbound := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Direction:      DirectionInbound,
		Text:           msg.Text,
		RawPayload:     msg.RawPayload,
	}
	if !msg.Timestamp.IsZero() {
		ts := msg.Timestamp
		inbound.ProviderTime = &ts
	}
	if err := e.store.AppendMessage(ctx, inbound); err != nil {
		return nil, fmt.Errorf("engine: append inbound: %w", err)
	}

	intent := e.classifier.Classify(msg.Text, conv.State)
	next, text, err := e.step(ctx, client, conv, msg.Text, intent)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpdateConversation(ctx, conv.ID, next, intent); err != nil {
		return nil, fmt.Errorf("engine: persist state: %w", err)
	}

	outbound := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Direction:      DirectionOutbound,
		Text:           text,
	}
	if err := e.store.AppendMessage(ctx, outbound); err != nil {
		return nil, fmt.Errorf("engine: append outbound: %w", err)
	}

	e.logger.Info("conversation turn",
		"conversation_id", conv.ID.String(),
		"channel", string(msg.Channel),
		"from_state", string(conv.State),
		"to_state", string(next),
		"intent", string(intent))

	return &Reply{
		ConversationID: conv.ID,
		Channel:        msg.Channel,
		RecipientID:    msg.SenderID,
		Text:           text,
	}, nil
}

// step computes the next state and reply text, performing any side
// effects (handoff creation, availability fetch, booking) on the way.
func (e *Engine) step(ctx context.Context, client *Client, conv *Conversation, text string, intent Intent) (State, string, error) {
	// An open handoff pins the conversation: a human owns it, the
	// engine only acknowledges.
	open, err := e.store.OpenHandoff(ctx, conv.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return conv.State, "", fmt.Errorf("engine: check handoff: %w", err)
	}
	if open != nil {
		return StateHandoff, replyHandoffHold, nil
	}

	// Escalation wins over every state.
	if intent == IntentHuman {
		if _, err := e.store.CreateHandoff(ctx, conv.ID, handoffReasonRequested); err != nil {
			return conv.State, "", fmt.Errorf("engine: create handoff: %w", err)
		}
		if e.notifier != nil {
			if nerr := e.notifier.NotifyHandoff(ctx, conv, handoffReasonRequested); nerr != nil {
				e.logger.Error("handoff notification failed", "conversation_id", conv.ID.String(), "error", nerr)
			}
		}
		return StateHandoff, replyEscalation, nil
	}

	switch conv.State {
	case StateNew:
		if intent == IntentUnknown {
			return StateNeedIntent, replyGreeting, nil
		}
		return e.branchOnIntent(ctx, conv.State, intent, text)

	case StateNeedIntent:
		return e.branchOnIntent(ctx, conv.State, intent, text)

	case StateNeedService:
		if err := e.store.SaveFlowContext(ctx, conv.ID, text, nil); err != nil {
			return conv.State, "", fmt.Errorf("engine: save service hint: %w", err)
		}
		return StateNeedDatePref, replyAskDate, nil

	case StateNeedDatePref, StateFetchingAvailability:
		return e.fetchAvailability(ctx, conv, text)

	case StateProposeSlots, StateNeedConfirmSlot, StateBooking:
		return e.confirmSlot(ctx, client, conv, text)

	case StateBooked:
		// Any message after a confirmed booking restarts intent capture.
		return StateNeedIntent, replyBookedFollowUp, nil

	case StateHandoff:
		// Handoff was closed by an operator; resume normal intent capture.
		return e.branchOnIntent(ctx, StateNeedIntent, intent, text)
	}

	return StateNeedIntent, replyFallback, nil
}

// branchOnIntent dispatches an intent-capture state. Informational answers
// leave the conversation in stay: an FAQ detour must not advance the flow.
func (e *Engine) branchOnIntent(ctx context.Context, stay State, intent Intent, text string) (State, string, error) {
	switch intent {
	case IntentBook:
		return StateNeedService, replyAskService, nil
	case IntentReschedule:
		return StateNeedService, replyAskServiceReschedule, nil
	case IntentCancel:
		return StateNeedService, replyAskServiceCancel, nil
	case IntentInfo:
		if e.knowledge != nil {
			answer, found, err := e.knowledge.Lookup(ctx, text)
			if err != nil {
				e.logger.Error("knowledge lookup failed", "error", err)
			} else if found {
				return stay, answer, nil
			}
		}
		return stay, replyInfoNotFound, nil
	}
	return StateNeedIntent, replyFallback, nil
}

// fetchAvailability marks the conversation transient, asks the scheduling
// authority for slots matching the user's date preference, and either
// proposes up to three options or falls back to asking for another date.
func (e *Engine) fetchAvailability(ctx context.Context, conv *Conversation, datePref string) (State, string, error) {
	if err := e.store.UpdateConversation(ctx, conv.ID, StateFetchingAvailability, conv.LastIntent); err != nil {
		return conv.State, "", fmt.Errorf("engine: persist transient state: %w", err)
	}

	serviceID, err := e.resolveService(ctx, conv.ServiceHint)
	if err != nil {
		e.logger.Error("service resolution failed", "conversation_id", conv.ID.String(), "error", err)
		return StateNeedDatePref, replyAvailabilityFailed, nil
	}

	slots, err := e.adapter.GetAvailability(ctx, serviceID, ParseDateHint(datePref, time.Now()), "")
	if err != nil {
		// A timeout or upstream failure is not "no availability": the user
		// gets an apology and the date preference stays open for a retry.
		e.logger.Error("availability fetch failed",
			"conversation_id", conv.ID.String(),
			"service_id", serviceID,
			"error", err)
		return StateNeedDatePref, replyAvailabilityFailed, nil
	}
	if len(slots) == 0 {
		return StateNeedDatePref, replyNoAvailability, nil
	}
	if len(slots) > maxProposedSlots {
		slots = slots[:maxProposedSlots]
	}

	proposed := make([]ProposedSlot, len(slots))
	for i, s := range slots {
		proposed[i] = ProposedSlot{Start: s.Start, Label: s.Label, StaffID: s.StaffID}
	}
	if err := e.store.SaveFlowContext(ctx, conv.ID, conv.ServiceHint, proposed); err != nil {
		return conv.State, "", fmt.Errorf("engine: save proposed slots: %w", err)
	}

	var b strings.Builder
	b.WriteString(replySlotsHeader)
	for i, s := range proposed {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s.Label)
	}
	b.WriteString("\n\n")
	b.WriteString(replySlotsFooter)
	return StateProposeSlots, b.String(), nil
}

// confirmSlot interprets the message as a slot choice and books it. The
// conversation only reaches BOOKED when the scheduling authority
// confirms; any failure rolls back to NEED_CONFIRM_SLOT.
func (e *Engine) confirmSlot(ctx context.Context, client *Client, conv *Conversation, text string) (State, string, error) {
	if len(conv.PendingSlots) == 0 {
		// Proposals were lost (e.g. manual state edit); restart the ask.
		return StateNeedDatePref, replyAskDate, nil
	}

	idx, ok := parseSlotChoice(text, len(conv.PendingSlots))
	if !ok {
		return StateNeedConfirmSlot, replySlotsFooter, nil
	}
	slot := conv.PendingSlots[idx]

	if err := e.store.UpdateConversation(ctx, conv.ID, StateBooking, conv.LastIntent); err != nil {
		return conv.State, "", fmt.Errorf("engine: persist transient state: %w", err)
	}

	serviceID, err := e.resolveService(ctx, conv.ServiceHint)
	if err != nil {
		e.logger.Error("service resolution failed", "conversation_id", conv.ID.String(), "error", err)
		return StateNeedConfirmSlot, replyBookingFailed, nil
	}

	result, err := e.adapter.CreateBooking(ctx, booking.CreateParams{
		ServiceID: serviceID,
		Start:     slot.Start,
		SlotLabel: slot.Label,
		StaffID:   slot.StaffID,
		ClientRef: client.Name,
	})
	if err != nil {
		e.logger.Error("booking creation failed",
			"conversation_id", conv.ID.String(),
			"service_id", serviceID,
			"error", err)
		return StateNeedConfirmSlot, replyBookingFailed, nil
	}

	if e.audit != nil {
		start := slot.Start
		if aerr := e.audit.AppendBooking(ctx, conv.ID, client.ID, result.ExternalID, serviceID, slot.Label, &start, result.Status); aerr != nil {
			e.logger.Error("booking audit failed", "conversation_id", conv.ID.String(), "error", aerr)
		}
	}
	if err := e.store.SaveFlowContext(ctx, conv.ID, conv.ServiceHint, nil); err != nil {
		e.logger.Error("flow context reset failed", "conversation_id", conv.ID.String(), "error", err)
	}

	when := result.ConfirmedTime
	if when == "" {
		when = slot.Label
	}
	return StateBooked, fmt.Sprintf(replyBookedFmt, when), nil
}

// resolveService maps the free-text service hint to a service id via a
// case-insensitive substring match, defaulting to the first listed
// service when nothing matches.
func (e *Engine) resolveService(ctx context.Context, hint string) (string, error) {
	services, err := e.adapter.ListServices(ctx)
	if err != nil {
		return "", err
	}
	if len(services) == 0 {
		return "", fmt.Errorf("engine: no services offered: %w", ErrExternalService)
	}
	needle := strings.ToLower(strings.TrimSpace(hint))
	if needle != "" {
		for _, s := range services {
			if strings.Contains(strings.ToLower(s.Name), needle) {
				return s.ID, nil
			}
		}
	}
	return services[0].ID, nil
}

// parseSlotChoice extracts a 1-based option number from the message.
func parseSlotChoice(text string, n int) (int, bool) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r < '0' || r > '9'
	})
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err == nil && v >= 1 && v <= n {
			return v - 1, true
		}
	}
	return 0, false
}
