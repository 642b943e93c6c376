package events

import (
	"encoding/json"
	"fmt"
	"time"

	"oficina-chat/internal/domain"
)

// Event type constants, format: domain.action
const (
	EventTypeMessageCreated  = "message.created"
	EventTypeMessageRead     = "message.read"
	EventTypePresenceChanged = "presence.changed"
)

// Aggregate type constants
const (
	AggregateTypeMessage      = "message"
	AggregateTypeConversation = "conversation"
	AggregateTypePresence     = "presence"
)

// Redis channel prefixes. Message events fan out to one channel per
// participant; presence events go to the presence channel of the user
// whose status changed.
const (
	ChannelPrefixUser     = "channel:user:"
	ChannelPrefixPresence = "channel:presence:"
)

// MessageCreatedEvent is published after a message insert commits. The
// feed is at-least-once with no ordering guarantee across reconnects, so
// consumers dedup by Message.ID.
type MessageCreatedEvent struct {
	Message domain.Message `json:"message"`
}

// MessageReadEvent is published when a viewer zeroes a conversation's
// unread counter.
type MessageReadEvent struct {
	ConversationID string    `json:"conversation_id"`
	ViewerID       string    `json:"viewer_id"`
	ReadAt         time.Time `json:"read_at"`
}

// PresenceChangedEvent is a replace-not-append update; last write wins
// by Presence.LastSeen.
type PresenceChangedEvent struct {
	Presence domain.Presence `json:"presence"`
}

// NewMessageCreated wraps a message in a publishable envelope.
func NewMessageCreated(msg domain.Message) (Envelope, error) {
	payload, err := json.Marshal(MessageCreatedEvent{Message: msg})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:     EventTypeMessageCreated,
		AggregateType: AggregateTypeMessage,
		AggregateID:   msg.ID,
		OccurredAt:    time.Now(),
		Payload:       payload,
	}, nil
}

// NewMessageRead wraps a mark-read notification in an envelope.
func NewMessageRead(conversationID, viewerID string) (Envelope, error) {
	now := time.Now()
	payload, err := json.Marshal(MessageReadEvent{
		ConversationID: conversationID,
		ViewerID:       viewerID,
		ReadAt:         now,
	})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:     EventTypeMessageRead,
		AggregateType: AggregateTypeConversation,
		AggregateID:   conversationID,
		OccurredAt:    now,
		Payload:       payload,
	}, nil
}

// NewPresenceChanged wraps a presence record in an envelope.
func NewPresenceChanged(p domain.Presence) (Envelope, error) {
	payload, err := json.Marshal(PresenceChangedEvent{Presence: p})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:     EventTypePresenceChanged,
		AggregateType: AggregateTypePresence,
		AggregateID:   p.UserID,
		OccurredAt:    time.Now(),
		Payload:       payload,
	}, nil
}

// DecodePayload unmarshals an envelope's payload into its typed event.
// Unknown event types return an error so callers can skip them.
func DecodePayload(env Envelope) (interface{}, error) {
	switch env.EventType {
	case EventTypeMessageCreated:
		var e MessageCreatedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventTypeMessageRead:
		var e MessageReadEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventTypePresenceChanged:
		var e PresenceChangedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown event type %q", env.EventType)
}
