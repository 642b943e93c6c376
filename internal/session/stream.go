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

// MessageStream holds the ordered history of the active conversation.
// Messages are kept sorted ascending by (created_at, id) no matter the
// arrival order, and deduplicated by id: a realtime echo of a message
// already present, whether reconciled or replayed, is dropped. Before
// reconciliation the temp id serves as the dedup key for the sender's
// own optimistic copy.
//
// Switching conversations bumps a generation counter; a history
// response that arrives after a switch is detected as stale and
// discarded instead of applied.
type MessageStream struct {
	mu     sync.Mutex
	store  backend.Store
	log    *logger.Logger
	notify func()

	conversationID string
	generation     uint64
	messages       []domain.Message
	ids            map[string]struct{}
}

func NewMessageStream(store backend.Store, log *logger.Logger, notify func()) *MessageStream {
	if notify == nil {
		notify = func() {}
	}
	return &MessageStream{
		store:  store,
		log:    log,
		notify: notify,
		ids:    make(map[string]struct{}),
	}
}

// LoadHistory clears the stream, fetches the conversation's history and
// merges it with anything appended while the fetch was in flight. A
// response superseded by a later load returns ErrStaleResponse, which
// callers swallow.
func (s *MessageStream) LoadHistory(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.conversationID = conversationID
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.mu.Unlock()

	history, err := s.store.ListMessages(ctx, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return chat_errors.ErrStaleResponse
	}
	if err != nil {
		return err
	}
	for _, msg := range history {
		if _, ok := s.ids[msg.ID]; ok {
			continue
		}
		s.insertLocked(msg)
	}
	s.notify()
	return nil
}

// Clear empties the stream and invalidates any in-flight history load.
func (s *MessageStream) Clear() {
	s.mu.Lock()
	s.generation++
	s.conversationID = ""
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
	s.notify()
}

// AppendLocal inserts a message preserving sort order. Used for both
// optimistic sends and realtime-delivered messages; duplicates by id
// are dropped.
func (s *MessageStream) AppendLocal(msg domain.Message) {
	s.mu.Lock()
	if _, ok := s.ids[msg.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.insertLocked(msg)
	s.mu.Unlock()
	s.notify()
}

// Reconcile swaps an optimistic message for its authoritative server
// copy. If the temp message is gone (the stream was cleared by a
// conversation switch) this is a no-op. If the server copy already
// arrived via the realtime feed, the temp entry is simply removed.
func (s *MessageStream) Reconcile(tempID string, server domain.Message) {
	s.mu.Lock()
	idx := s.indexLocked(tempID)
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	s.removeAtLocked(idx, tempID)
	if _, ok := s.ids[server.ID]; !ok {
		s.insertLocked(server)
	}
	s.mu.Unlock()
	s.notify()
}

// Remove drops a message by id, used to roll back a failed optimistic
// send. Unknown ids are ignored.
func (s *MessageStream) Remove(id string) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	s.removeAtLocked(idx, id)
	s.mu.Unlock()
	s.notify()
}

func (s *MessageStream) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Snapshot returns a copy of the stream, ascending by (created_at, id).
func (s *MessageStream) Snapshot() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *MessageStream) insertLocked(msg domain.Message) {
	i := sort.Search(len(s.messages), func(i int) bool {
		return msg.Before(s.messages[i])
	})
	s.messages = append(s.messages, domain.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
	s.ids[msg.ID] = struct{}{}
}

func (s *MessageStream) indexLocked(id string) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *MessageStream) removeAtLocked(idx int, id string) {
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	delete(s.ids, id)
}
