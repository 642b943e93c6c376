package session

import (
	"context"
	"sync"
	"time"

	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"

	"github.com/google/uuid"
)

// fakeBackend is an in-memory backend.Client. Realtime events are
// emitted manually by tests; queries can be gated so a response can be
// held back and released on demand.
type fakeBackend struct {
	mu            sync.Mutex
	conversations []domain.Conversation
	messages      map[string][]domain.Message

	listConvErr error
	insertErr   error
	markReadErr error
	nextID      string
	nextAt      time.Time

	listConvGate chan struct{}
	listMsgGate  map[string]chan struct{}
	listMsgCalls []string

	markReadCalls []string
	presenceCalls []domain.Presence

	onMessage   func(domain.Message)
	onPresence  func(domain.Presence)
	onMsgState  func(backend.FeedState)
	onPresState func(backend.FeedState)

	msgSubClosed  bool
	presSubClosed bool
	msgSubCount   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages:    make(map[string][]domain.Message),
		listMsgGate: make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) addConversation(conv domain.Conversation) {
	f.mu.Lock()
	f.conversations = append(f.conversations, conv)
	f.mu.Unlock()
}

func (f *fakeBackend) addMessage(msg domain.Message) {
	f.mu.Lock()
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], msg)
	f.mu.Unlock()
}

func (f *fakeBackend) ListConversations(ctx context.Context, viewerID string) ([]domain.Conversation, error) {
	f.mu.Lock()
	gate := f.listConvGate
	listErr := f.listConvErr
	out := make([]domain.Conversation, len(f.conversations))
	copy(out, f.conversations)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if listErr != nil {
		return nil, listErr
	}
	return out, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	f.mu.Lock()
	f.listMsgCalls = append(f.listMsgCalls, conversationID)
	gate := f.listMsgGate[conversationID]
	out := make([]domain.Message, len(f.messages[conversationID]))
	copy(out, f.messages[conversationID])
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return out, nil
}

func (f *fakeBackend) InsertMessage(ctx context.Context, draft domain.MessageDraft) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return domain.Message{}, f.insertErr
	}
	id := f.nextID
	if id == "" {
		id = uuid.New().String()
	}
	f.nextID = ""
	at := f.nextAt
	if at.IsZero() {
		at = time.Now()
	}
	msg := domain.Message{
		ID:             id,
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		SenderRole:     draft.SenderRole,
		Kind:           draft.Kind,
		Content:        draft.Content,
		Meta:           draft.Meta,
		CreatedAt:      at,
	}
	f.messages[draft.ConversationID] = append(f.messages[draft.ConversationID], msg)
	return msg, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, conversationID, viewerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, conversationID)
	return f.markReadErr
}

func (f *fakeBackend) UpsertPresence(ctx context.Context, p domain.Presence) error {
	f.mu.Lock()
	f.presenceCalls = append(f.presenceCalls, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) SubscribeMessages(ctx context.Context, viewerID string, onEvent func(domain.Message), onState func(backend.FeedState)) (backend.Subscription, error) {
	f.mu.Lock()
	f.onMessage = onEvent
	f.onMsgState = onState
	f.msgSubCount++
	f.mu.Unlock()
	return &fakeSub{onClose: func() {
		f.mu.Lock()
		f.msgSubClosed = true
		f.mu.Unlock()
	}}, nil
}

func (f *fakeBackend) SubscribePresence(ctx context.Context, viewerID string, onEvent func(domain.Presence), onState func(backend.FeedState)) (backend.Subscription, error) {
	f.mu.Lock()
	f.onPresence = onEvent
	f.onPresState = onState
	f.mu.Unlock()
	return &fakeSub{onClose: func() {
		f.mu.Lock()
		f.presSubClosed = true
		f.mu.Unlock()
	}}, nil
}

func (f *fakeBackend) emitMessage(msg domain.Message) {
	f.mu.Lock()
	h := f.onMessage
	f.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

func (f *fakeBackend) emitPresence(p domain.Presence) {
	f.mu.Lock()
	h := f.onPresence
	f.mu.Unlock()
	if h != nil {
		h(p)
	}
}

func (f *fakeBackend) emitFeedState(state backend.FeedState) {
	f.mu.Lock()
	h := f.onMsgState
	f.mu.Unlock()
	if h != nil {
		h(state)
	}
}

func (f *fakeBackend) markReads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.markReadCalls))
	copy(out, f.markReadCalls)
	return out
}

func (f *fakeBackend) presences() []domain.Presence {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Presence, len(f.presenceCalls))
	copy(out, f.presenceCalls)
	return out
}

func (f *fakeBackend) subsClosed() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgSubClosed, f.presSubClosed
}

type fakeSub struct {
	once    sync.Once
	onClose func()
}

func (s *fakeSub) Close() error {
	s.once.Do(s.onClose)
	return nil
}

var _ backend.Client = (*fakeBackend)(nil)
