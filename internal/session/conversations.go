package session

import (
	"context"
	"sort"
	"sync"

	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"
	chat_errors "oficina-chat/pkg/errors"
	"oficina-chat/pkg/logger"
)

// ConversationStore holds the viewer's ordered conversation list with
// denormalized previews and unread counts. It is a read-through cache:
// refreshed by Load, extended in place by realtime events. On a failed
// Load the previous snapshot is retained, stale but present.
type ConversationStore struct {
	mu       sync.Mutex
	store    backend.Store
	log      *logger.Logger
	viewerID string
	notify   func()

	conversations []domain.Conversation
	active        string
	generation    uint64

	// Message ids already folded in, so an at-least-once replay of the
	// same event cannot double-count unread. Bounded FIFO.
	applied      map[string]struct{}
	appliedOrder []string
}

// appliedLimit bounds the replay-dedup window. Replays arrive close to
// the original delivery; anything older has long been absorbed by a
// list reload.
const appliedLimit = 512

func NewConversationStore(store backend.Store, viewerID string, log *logger.Logger, notify func()) *ConversationStore {
	if notify == nil {
		notify = func() {}
	}
	return &ConversationStore{
		store:    store,
		log:      log,
		viewerID: viewerID,
		notify:   notify,
		applied:  make(map[string]struct{}),
	}
}

// Load refreshes the list from the backend. A response superseded by a
// newer Load is dropped; a failed load keeps the previous snapshot and
// returns the error for user-visible reporting.
func (c *ConversationStore) Load(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	conversations, err := c.store.ListConversations(ctx, c.viewerID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return chat_errors.ErrStaleResponse
	}
	if err != nil {
		return err
	}
	c.conversations = conversations
	c.sortLocked()
	c.notify()
	return nil
}

// ApplyIncoming folds a message event into the cached list: preview and
// timestamp always; unread incremented only when the message is from
// the other participant and the conversation is not active. For the
// active conversation needMarkRead is reported instead, so the caller
// can zero the counter backend-side. known is false when the message
// references a conversation not in the cache (a thread created since
// the last load). The feed is at-least-once; a replay of an already
// applied message id is a no-op.
func (c *ConversationStore) ApplyIncoming(msg domain.Message) (needMarkRead, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.applied[msg.ID]; dup {
		return false, true
	}

	idx := -1
	for i := range c.conversations {
		if c.conversations[i].ID == msg.ConversationID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, false
	}
	c.rememberAppliedLocked(msg.ID)

	conv := &c.conversations[idx]
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
		conv.LastMessagePreview = msg.Preview()
	}
	if msg.SenderID != c.viewerID {
		if conv.ID == c.active {
			needMarkRead = true
		} else {
			conv.UnreadCount++
		}
	}
	c.sortLocked()
	c.notify()
	return needMarkRead, true
}

// MarkRead zeroes the unread counter optimistically and issues the
// backend mutation. On failure the counter is restored on top of any
// increments that arrived in flight, and the error is surfaced.
func (c *ConversationStore) MarkRead(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	var restored int
	found := false
	for i := range c.conversations {
		if c.conversations[i].ID == conversationID {
			restored = c.conversations[i].UnreadCount
			c.conversations[i].UnreadCount = 0
			found = true
			break
		}
	}
	c.mu.Unlock()
	if found {
		c.notify()
	}

	if err := c.store.MarkRead(ctx, conversationID, c.viewerID); err != nil {
		if found && restored > 0 {
			c.mu.Lock()
			for i := range c.conversations {
				if c.conversations[i].ID == conversationID {
					c.conversations[i].UnreadCount += restored
					break
				}
			}
			c.mu.Unlock()
			c.notify()
		}
		return err
	}
	return nil
}

// SetActive records which conversation the viewer has open. Incoming
// messages for the active conversation never increment unread.
func (c *ConversationStore) SetActive(conversationID string) {
	c.mu.Lock()
	c.active = conversationID
	c.mu.Unlock()
}

func (c *ConversationStore) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *ConversationStore) Get(conversationID string) (domain.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range c.conversations {
		if conv.ID == conversationID {
			return conv, true
		}
	}
	return domain.Conversation{}, false
}

// Snapshot returns a copy of the list, ordered by last_message_at
// descending.
func (c *ConversationStore) Snapshot() []domain.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

func (c *ConversationStore) rememberAppliedLocked(id string) {
	c.applied[id] = struct{}{}
	c.appliedOrder = append(c.appliedOrder, id)
	if len(c.appliedOrder) > appliedLimit {
		delete(c.applied, c.appliedOrder[0])
		c.appliedOrder = c.appliedOrder[1:]
	}
}

// sortLocked re-derives the list order after any last_message_at
// mutation; the order is never assumed stable.
func (c *ConversationStore) sortLocked() {
	sort.SliceStable(c.conversations, func(i, j int) bool {
		return c.conversations[i].LastMessageAt.After(c.conversations[j].LastMessageAt)
	})
}
