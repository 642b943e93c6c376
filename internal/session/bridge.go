package session

import (
	"context"
	"sync"

	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"
	"oficina-chat/pkg/logger"
)

// EventBridge subscribes to the backend's message and presence feeds
// and routes incoming events into the ConversationStore and the
// MessageStream. Message events route to the stream only when their
// conversation is active, and to the store unconditionally so inactive
// previews and unread counts keep moving without the thread open.
//
// The feeds are at-least-once with no ordering guarantee, so routing is
// idempotent: the stream dedups by id, presence is last-write-wins by
// last_seen. Transport drops surface as a connectivity-degraded signal,
// and a recovery triggers the resync callback to re-query whatever the
// feed may have missed.
type EventBridge struct {
	mu       sync.Mutex
	feed     backend.Feed
	log      *logger.Logger
	store    *ConversationStore
	stream   *MessageStream
	onResync func()
	notify   func()

	ctx      context.Context
	msgSub   backend.Subscription
	presSub  backend.Subscription
	presence map[string]domain.Presence
	degraded int
}

func NewEventBridge(feed backend.Feed, store *ConversationStore, stream *MessageStream, log *logger.Logger, onResync, notify func()) *EventBridge {
	if onResync == nil {
		onResync = func() {}
	}
	if notify == nil {
		notify = func() {}
	}
	return &EventBridge{
		feed:     feed,
		log:      log,
		store:    store,
		stream:   stream,
		onResync: onResync,
		notify:   notify,
		presence: make(map[string]domain.Presence),
	}
}

// Subscribe opens one logical subscription per feed. Calling it while
// already subscribed is a no-op.
func (b *EventBridge) Subscribe(ctx context.Context, viewerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgSub != nil {
		return nil
	}
	b.ctx = ctx

	msgSub, err := b.feed.SubscribeMessages(ctx, viewerID, b.handleMessage, b.handleFeedState)
	if err != nil {
		return err
	}
	presSub, err := b.feed.SubscribePresence(ctx, viewerID, b.handlePresence, b.handleFeedState)
	if err != nil {
		_ = msgSub.Close()
		return err
	}
	b.msgSub = msgSub
	b.presSub = presSub
	return nil
}

// Unsubscribe tears both feeds down. Safe to call more than once; the
// session's close path always runs it, error path included.
func (b *EventBridge) Unsubscribe() {
	b.mu.Lock()
	msgSub, presSub := b.msgSub, b.presSub
	b.msgSub, b.presSub = nil, nil
	b.mu.Unlock()

	if msgSub != nil {
		_ = msgSub.Close()
	}
	if presSub != nil {
		_ = presSub.Close()
	}
}

// Connectivity reports the merged state of both feeds.
func (b *EventBridge) Connectivity() backend.FeedState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.degraded > 0 {
		return backend.FeedDegraded
	}
	return backend.FeedConnected
}

// PresenceSnapshot returns a copy of the presence map.
func (b *EventBridge) PresenceSnapshot() map[string]domain.Presence {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]domain.Presence, len(b.presence))
	for k, v := range b.presence {
		out[k] = v
	}
	return out
}

func (b *EventBridge) handleMessage(msg domain.Message) {
	needMarkRead, known := b.store.ApplyIncoming(msg)
	if !known {
		// A thread created since the last list load; refetch it.
		b.log.Debugf("message for unknown conversation %s, resyncing", msg.ConversationID)
		b.onResync()
	}
	if b.stream.ConversationID() == msg.ConversationID {
		b.stream.AppendLocal(msg)
	}
	if needMarkRead {
		b.mu.Lock()
		ctx := b.ctx
		b.mu.Unlock()
		if ctx == nil {
			return
		}
		go func() {
			if err := b.store.MarkRead(ctx, msg.ConversationID); err != nil {
				b.log.Warnf("mark read after incoming message: %v", err)
			}
		}()
	}
}

func (b *EventBridge) handlePresence(p domain.Presence) {
	b.mu.Lock()
	current, ok := b.presence[p.UserID]
	if ok && !p.Newer(current) {
		// Replayed or reordered event older than the cached record.
		b.mu.Unlock()
		return
	}
	b.presence[p.UserID] = p
	b.mu.Unlock()
	b.notify()
}

func (b *EventBridge) handleFeedState(state backend.FeedState) {
	b.mu.Lock()
	recovered := false
	switch state {
	case backend.FeedDegraded:
		b.degraded++
	case backend.FeedConnected:
		if b.degraded > 0 {
			b.degraded--
			recovered = b.degraded == 0
		}
	}
	b.mu.Unlock()
	b.notify()

	if recovered {
		// The feed does not replay events missed while disconnected;
		// recover by re-querying.
		b.onResync()
	}
}
