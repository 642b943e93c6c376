package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"oficina-chat/internal/domain"
	chat_errors "oficina-chat/pkg/errors"
	"oficina-chat/pkg/logger"

	"github.com/stretchr/testify/require"
)

func newSessionUnderTest(f *fakeBackend) *Session {
	return New(f, domain.RoleDriver, logger.NewNop())
}

// Open, select a conversation, send a message through the optimistic
// path and observe the reconciled server message in the stream.
func TestSessionRoundTrip(t *testing.T) {
	base := time.Now()
	f := newFakeBackend()
	f.addConversation(conv("c1", "driver1", "shop1", base))
	f.addMessage(msgAt("m1", "c1", base))

	sess := newSessionUnderTest(f)
	require.NoError(t, sess.Open(context.Background(), "driver1"))
	defer sess.Close()
	require.Equal(t, StateReady, sess.State())

	require.NoError(t, sess.SelectConversation(context.Background(), "c1"))
	require.Equal(t, "c1", sess.ActiveConversation())

	f.mu.Lock()
	f.nextID = "m99"
	f.mu.Unlock()

	sent, err := sess.Send(context.Background(), "c1", "meu carro está pronto?", domain.KindText)
	require.NoError(t, err)
	require.Equal(t, "m99", sent.ID)

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "m99", msgs[1].ID)
	require.True(t, msgs[1].IsRead, "own message is read from birth")

	convs := sess.Conversations()
	require.Equal(t, "c1", convs[0].ID)
	require.Equal(t, sent.Preview(), convs[0].LastMessagePreview)
}

// Marking read twice in a row leaves the counter at zero both times
// and issues at most one mutation per call.
func TestSessionMarkReadIdempotent(t *testing.T) {
	base := time.Now()
	f := newFakeBackend()
	c := conv("c1", "driver1", "shop1", base)
	c.UnreadCount = 3
	f.addConversation(c)

	sess := newSessionUnderTest(f)
	require.NoError(t, sess.Open(context.Background(), "driver1"))
	defer sess.Close()

	require.NoError(t, sess.MarkConversationRead(context.Background(), "c1"))
	require.Equal(t, 0, sess.UnreadCount("c1"))
	require.NoError(t, sess.MarkConversationRead(context.Background(), "c1"))
	require.Equal(t, 0, sess.UnreadCount("c1"))
	require.LessOrEqual(t, len(f.markReads()), 2)
}

// A failed conversation load still brings the session to Ready; the
// error is surfaced for reporting rather than blocking the open.
func TestSessionOpenPartialFailure(t *testing.T) {
	f := newFakeBackend()
	f.listConvErr = errors.New("backend down")

	sess := newSessionUnderTest(f)
	err := sess.Open(context.Background(), "driver1")
	defer sess.Close()

	require.Error(t, err)
	require.Equal(t, StateReady, sess.State())
	require.Empty(t, sess.Conversations())
}

func TestSessionLifecycleGates(t *testing.T) {
	f := newFakeBackend()
	sess := newSessionUnderTest(f)

	_, err := sess.Send(context.Background(), "c1", "oi", domain.KindText)
	require.ErrorIs(t, err, chat_errors.ErrSessionClosed)
	require.ErrorIs(t, sess.SelectConversation(context.Background(), "c1"), chat_errors.ErrSessionClosed)
	require.ErrorIs(t, sess.MarkConversationRead(context.Background(), "c1"), chat_errors.ErrSessionClosed)

	require.NoError(t, sess.Open(context.Background(), "driver1"))
	require.ErrorIs(t, sess.Open(context.Background(), "driver1"), chat_errors.ErrSessionOpen)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	require.Equal(t, StateClosed, sess.State())

	_, err = sess.Send(context.Background(), "c1", "oi", domain.KindText)
	require.ErrorIs(t, err, chat_errors.ErrSessionClosed)
}

// While Open is still settling, operations report not-ready rather than
// closed.
func TestSessionNotReadyWhileOpening(t *testing.T) {
	f := newFakeBackend()
	gate := make(chan struct{})
	f.listConvGate = gate

	sess := newSessionUnderTest(f)
	opened := make(chan error, 1)
	go func() { opened <- sess.Open(context.Background(), "driver1") }()
	waitFor(t, func() bool { return sess.State() == StateOpening })

	_, err := sess.Send(context.Background(), "c1", "oi", domain.KindText)
	require.ErrorIs(t, err, chat_errors.ErrNotReady)

	close(gate)
	require.NoError(t, <-opened)
	defer sess.Close()
	require.Equal(t, StateReady, sess.State())
}

// Closing while Open is still blocked on the list query tears the
// subscriptions down and records offline presence; the late response
// cannot revive the session.
func TestSessionCloseDuringOpen(t *testing.T) {
	f := newFakeBackend()
	f.addConversation(conv("c1", "driver1", "shop1", time.Now()))
	gate := make(chan struct{})
	f.listConvGate = gate

	sess := newSessionUnderTest(f)
	opened := make(chan error, 1)
	go func() { opened <- sess.Open(context.Background(), "driver1") }()

	waitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.msgSubCount == 1
	})
	require.Equal(t, StateOpening, sess.State())

	require.NoError(t, sess.Close())
	msgClosed, presClosed := f.subsClosed()
	require.True(t, msgClosed)
	require.True(t, presClosed)

	var wentOffline bool
	for _, p := range f.presences() {
		if p.Status == domain.PresenceOffline {
			wentOffline = true
		}
	}
	require.True(t, wentOffline, "offline presence recorded on close")

	close(gate)
	<-opened
	require.Equal(t, StateClosed, sess.State())
}

// The signal channel is coalesced: it never blocks producers, and a
// consumer wakes on the next change.
func TestSessionUpdatesSignal(t *testing.T) {
	base := time.Now()
	f := newFakeBackend()
	f.addConversation(conv("c1", "driver1", "shop1", base))

	sess := newSessionUnderTest(f)
	require.NoError(t, sess.Open(context.Background(), "driver1"))
	defer sess.Close()

	// Drain whatever the open produced.
	select {
	case <-sess.Updates():
	default:
	}

	incoming := msgAt("m-new", "c1", base.Add(time.Second))
	incoming.SenderID = "shop1"
	f.emitMessage(incoming)

	select {
	case <-sess.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update signal after incoming message")
	}
	require.Equal(t, 1, sess.UnreadCount("c1"))
}
