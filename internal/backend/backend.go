// Package backend defines the contract the chat session consumes from
// the hosted backend: idempotent queries, mutations and two long-lived
// push feeds. Implementations live in internal/repository (Postgres),
// internal/redisfeed (Redis pub/sub) and internal/wsfeed (websocket
// gateway). The handle is constructed explicitly and injected into the
// session so tests can substitute a fake.
package backend

import (
	"context"

	"oficina-chat/internal/domain"
)

// FeedState reports the health of a realtime feed. Degraded is a
// passive indicator, not an error: the feed keeps retrying with its own
// policy and flips back to Connected once the transport recovers.
type FeedState int

const (
	FeedConnected FeedState = iota
	FeedDegraded
)

func (s FeedState) String() string {
	if s == FeedDegraded {
		return "degraded"
	}
	return "connected"
}

// Subscription is a live feed handle. Close tears the feed down and is
// safe to call more than once.
type Subscription interface {
	Close() error
}

// Store is the query/mutation side of the backend.
type Store interface {
	// ListConversations returns the viewer's conversations ordered by
	// last_message_at descending, with per-viewer unread counts filled.
	ListConversations(ctx context.Context, viewerID string) ([]domain.Conversation, error)

	// ListMessages returns a conversation's history ascending by
	// (created_at, id).
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// InsertMessage appends a message, assigning id and created_at
	// server-side, and denormalizes the conversation's last_message_*
	// fields and the other participant's unread counter.
	InsertMessage(ctx context.Context, draft domain.MessageDraft) (domain.Message, error)

	// MarkRead zeroes the viewer's unread counter for the conversation
	// and flags its messages read. Idempotent.
	MarkRead(ctx context.Context, conversationID, viewerID string) error
}

// PresenceWriter upserts this client's own presence row. Last write
// wins by last_seen.
type PresenceWriter interface {
	UpsertPresence(ctx context.Context, p domain.Presence) error
}

// Feed delivers backend change events for one user. Delivery is
// at-least-once with no ordering guarantee across reconnects; all
// consumers must be idempotent with respect to replay.
type Feed interface {
	// SubscribeMessages opens the message-insert feed scoped to
	// conversations the viewer participates in.
	SubscribeMessages(ctx context.Context, viewerID string, onEvent func(domain.Message), onState func(FeedState)) (Subscription, error)

	// SubscribePresence opens the presence-change feed.
	SubscribePresence(ctx context.Context, viewerID string, onEvent func(domain.Presence), onState func(FeedState)) (Subscription, error)
}

// Client is the full collaborator handle the session is constructed
// with.
type Client interface {
	Store
	PresenceWriter
	Feed
}

// Composite assembles a Client from independently constructed parts,
// e.g. the Postgres store with the Redis presence writer and feeds.
type Composite struct {
	Store
	PresenceWriter
	Feed
}

var _ Client = Composite{}
