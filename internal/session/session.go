// Package session implements the chat session a driver or workshop
// client holds while its chat UI is open: the conversation list, the
// active message stream, presence, read tracking and the realtime
// subscription lifecycle, all over an injected backend handle.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"oficina-chat/internal/attach"
	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"
	chat_errors "oficina-chat/pkg/errors"
	"oficina-chat/pkg/logger"
)

// State is the session lifecycle: Closed -> Opening -> Ready -> Closed.
// There is no error state; errors surface to the caller while the
// session stays in Opening or Ready.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateReady
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	}
	return "closed"
}

// closeTimeout bounds the teardown calls issued by Close so the close
// path cannot hang on a dead backend.
const closeTimeout = 2 * time.Second

// Session is the façade the UI talks to. One instance per logical chat
// session; the stores it owns are not shared across sessions. All
// reads return snapshots, and Updates delivers a coalesced signal
// whenever any snapshot changed.
type Session struct {
	client backend.Client
	role   domain.ParticipantRole
	log    *logger.Logger
	stager *attach.Stager

	mu        sync.Mutex
	state     State
	userID    string
	ctx       context.Context
	cancel    context.CancelFunc
	disposers []func()

	conversations *ConversationStore
	stream        *MessageStream
	bridge        *EventBridge
	composer      *Composer
	presence      *PresenceTracker

	updates chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithStager enables attachment staging for image and document sends.
func WithStager(s *attach.Stager) Option {
	return func(sess *Session) { sess.stager = s }
}

// New builds a session over an explicitly injected backend handle. The
// session does nothing until Open.
func New(client backend.Client, role domain.ParticipantRole, log *logger.Logger, opts ...Option) *Session {
	s := &Session{
		client:  client,
		role:    role,
		log:     log,
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open transitions Closed -> Opening, then runs the presence upsert,
// the conversation list load and the feed subscription concurrently.
// The session reaches Ready once all three settle; partial failure does
// not block readiness, the per-component errors are joined and
// returned for user-visible reporting.
func (s *Session) Open(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return chat_errors.ErrSessionOpen
	}
	s.state = StateOpening
	s.userID = userID

	// The session outlives the Open call; Close cancels this context.
	sessionCtx, cancel := context.WithCancel(context.Background())
	s.ctx = sessionCtx
	s.cancel = cancel

	s.conversations = NewConversationStore(s.client, userID, s.log, s.notifyUpdate)
	s.stream = NewMessageStream(s.client, s.log, s.notifyUpdate)
	s.bridge = NewEventBridge(s.client, s.conversations, s.stream, s.log, s.resync, s.notifyUpdate)
	s.composer = NewComposer(s.client, s.conversations, s.stream, userID, s.role, s.log)
	s.presence = NewPresenceTracker(s.client, userID, s.log)

	// Disposer handles invoked unconditionally on the close path.
	s.disposers = []func(){
		s.bridge.Unsubscribe,
		func() {
			offCtx, done := context.WithTimeout(context.Background(), closeTimeout)
			defer done()
			s.presence.Set(offCtx, domain.PresenceOffline, "")
		},
	}
	s.mu.Unlock()

	var loadErr, subErr error
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.presence.Set(sessionCtx, domain.PresenceOnline, "")
	}()
	go func() {
		defer wg.Done()
		loadErr = s.conversations.Load(sessionCtx)
	}()
	go func() {
		defer wg.Done()
		subErr = s.bridge.Subscribe(sessionCtx, userID)
	}()
	wg.Wait()

	s.mu.Lock()
	if s.state == StateOpening {
		s.state = StateReady
	}
	s.mu.Unlock()
	s.notifyUpdate()

	if errors.Is(loadErr, chat_errors.ErrStaleResponse) {
		loadErr = nil
	}
	return errors.Join(loadErr, subErr)
}

// SelectConversation makes a conversation active: its history is
// loaded, a mark-read is triggered exactly once per successful load,
// and presence advertises the open thread. Only valid in Ready.
func (s *Session) SelectConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if err := s.readyErrLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	sessionCtx := s.ctx
	s.mu.Unlock()

	s.conversations.SetActive(conversationID)
	s.presence.Set(sessionCtx, domain.PresenceOnline, conversationID)

	err := s.stream.LoadHistory(ctx, conversationID)
	if errors.Is(err, chat_errors.ErrStaleResponse) {
		// A later switch superseded this one; its load owns the stream.
		return nil
	}
	if err != nil {
		return err
	}
	return s.conversations.MarkRead(ctx, conversationID)
}

// Send appends a message to a conversation through the composer's
// optimistic two-phase path.
func (s *Session) Send(ctx context.Context, conversationID, content string, kind domain.MessageKind) (domain.Message, error) {
	s.mu.Lock()
	if err := s.readyErrLocked(); err != nil {
		s.mu.Unlock()
		return domain.Message{}, err
	}
	composer := s.composer
	s.mu.Unlock()
	return composer.Send(ctx, conversationID, content, kind, nil)
}

// StageAttachment presigns an upload slot and stages the attachment on
// the composer for the next image or document send.
func (s *Session) StageAttachment(ctx context.Context, fileName, contentType string, size int64) (attach.Staged, error) {
	s.mu.Lock()
	stager, composer, userID := s.stager, s.composer, s.userID
	readyErr := s.readyErrLocked()
	s.mu.Unlock()
	if readyErr != nil {
		return attach.Staged{}, readyErr
	}
	if stager == nil {
		return attach.Staged{}, chat_errors.ErrInvalidInput
	}
	staged, err := stager.Stage(ctx, userID, fileName, contentType, size)
	if err != nil {
		return attach.Staged{}, err
	}
	meta := staged.Meta
	composer.SetAttachment(&meta)
	return staged, nil
}

func (s *Session) SetDraft(text string) {
	if c := s.composerHandle(); c != nil {
		c.SetDraft(text)
	}
}

func (s *Session) Draft() string {
	if c := s.composerHandle(); c != nil {
		return c.Draft()
	}
	return ""
}

func (s *Session) ClearDraft() {
	if c := s.composerHandle(); c != nil {
		c.ClearDraft()
	}
}

// MarkConversationRead zeroes a conversation's unread counter.
func (s *Session) MarkConversationRead(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if err := s.readyErrLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	conversations := s.conversations
	s.mu.Unlock()
	return conversations.MarkRead(ctx, conversationID)
}

// Close is valid from Opening or Ready. It cancels in-flight loads and
// initiates the unsubscribe and offline-presence calls before
// returning, so no subscription outlives the session's intent to
// close. Calling Close on a closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	cancel := s.cancel
	disposers := s.disposers
	s.disposers = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, dispose := range disposers {
		dispose()
	}
	s.notifyUpdate()
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conversations returns the cached conversation list, most recent
// first.
func (s *Session) Conversations() []domain.Conversation {
	s.mu.Lock()
	store := s.conversations
	s.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Snapshot()
}

// Messages returns the active conversation's stream, oldest first.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Snapshot()
}

// ActiveConversation returns the id of the open thread, or "".
func (s *Session) ActiveConversation() string {
	s.mu.Lock()
	store := s.conversations
	s.mu.Unlock()
	if store == nil {
		return ""
	}
	return store.Active()
}

// UnreadCount returns a conversation's cached unread counter.
func (s *Session) UnreadCount(conversationID string) int {
	s.mu.Lock()
	store := s.conversations
	s.mu.Unlock()
	if store == nil {
		return 0
	}
	if conv, ok := store.Get(conversationID); ok {
		return conv.UnreadCount
	}
	return 0
}

// PresenceMap returns the last known presence per user.
func (s *Session) PresenceMap() map[string]domain.Presence {
	s.mu.Lock()
	bridge := s.bridge
	s.mu.Unlock()
	if bridge == nil {
		return nil
	}
	return bridge.PresenceSnapshot()
}

// Connectivity reports the realtime feed health.
func (s *Session) Connectivity() backend.FeedState {
	s.mu.Lock()
	bridge := s.bridge
	s.mu.Unlock()
	if bridge == nil {
		return backend.FeedConnected
	}
	return bridge.Connectivity()
}

// Updates delivers a coalesced signal whenever any snapshot changed.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// readyErrLocked gates operations that need a Ready session,
// distinguishing a closed session from one still opening.
func (s *Session) readyErrLocked() error {
	switch s.state {
	case StateReady:
		return nil
	case StateClosed:
		return chat_errors.ErrSessionClosed
	}
	return chat_errors.ErrNotReady
}

func (s *Session) composerHandle() *Composer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composer
}

func (s *Session) notifyUpdate() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// resync re-queries state the realtime feed may have missed: the
// conversation list always, plus the active conversation's history and
// read marker.
func (s *Session) resync() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	conversations, stream := s.conversations, s.stream
	s.mu.Unlock()

	go func() {
		if err := conversations.Load(ctx); err != nil && !errors.Is(err, chat_errors.ErrStaleResponse) {
			s.log.Warnf("resync conversations: %v", err)
		}
		active := conversations.Active()
		if active == "" {
			return
		}
		if err := stream.LoadHistory(ctx, active); err != nil {
			if !errors.Is(err, chat_errors.ErrStaleResponse) {
				s.log.Warnf("resync history for %s: %v", active, err)
			}
			return
		}
		if err := conversations.MarkRead(ctx, active); err != nil {
			s.log.Warnf("resync mark read for %s: %v", active, err)
		}
	}()
}
