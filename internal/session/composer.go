package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"
	chat_errors "oficina-chat/pkg/errors"
	"oficina-chat/pkg/logger"

	"github.com/google/uuid"
)

const tempIDPrefix = "temp-"

// Composer owns the compose-box state: the draft text, at most one
// staged attachment, and the send path. A send is a two-phase
// operation: phase one inserts a provisional message under a
// client-generated temp id, phase two either reconciles it with the
// authoritative server row or rolls it back and restores the draft.
// Multiple sends may be in flight at once; each carries its own temp id
// so reconciliation is unambiguous.
type Composer struct {
	mu            sync.Mutex
	store         backend.Store
	conversations *ConversationStore
	stream        *MessageStream
	log           *logger.Logger
	senderID      string
	senderRole    domain.ParticipantRole

	draft  string
	staged *domain.AttachmentMeta
}

func NewComposer(store backend.Store, conversations *ConversationStore, stream *MessageStream, senderID string, senderRole domain.ParticipantRole, log *logger.Logger) *Composer {
	return &Composer{
		store:         store,
		conversations: conversations,
		stream:        stream,
		log:           log,
		senderID:      senderID,
		senderRole:    senderRole,
	}
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Composer) ClearDraft() {
	c.mu.Lock()
	c.draft = ""
	c.mu.Unlock()
}

// SetAttachment stages an uploaded attachment for the next send.
func (c *Composer) SetAttachment(meta *domain.AttachmentMeta) {
	c.mu.Lock()
	c.staged = meta
	c.mu.Unlock()
}

func (c *Composer) Attachment() *domain.AttachmentMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staged
}

// Send validates, optimistically inserts a provisional message and
// issues the insert mutation. On success the provisional copy is
// reconciled with the server row; on failure it is rolled back, the
// draft is restored with the original content for retry, and the error
// wraps ErrSendFailed. No automatic retry.
func (c *Composer) Send(ctx context.Context, conversationID, content string, kind domain.MessageKind, meta *domain.MessageMeta) (domain.Message, error) {
	if kind == "" {
		kind = domain.KindText
	}

	c.mu.Lock()
	staged := c.staged
	c.mu.Unlock()

	if meta == nil && staged != nil && (kind == domain.KindImage || kind == domain.KindDocument) {
		meta = &domain.MessageMeta{Attachment: staged}
	}
	if strings.TrimSpace(content) == "" && (meta == nil || meta.Attachment == nil) {
		return domain.Message{}, chat_errors.ErrEmptyMessage
	}
	if conv, ok := c.conversations.Get(conversationID); ok && !conv.Status.Writable() {
		return domain.Message{}, chat_errors.ErrConversationClosed
	}

	tempID := tempIDPrefix + uuid.New().String()
	provisional := domain.Message{
		ID:             tempID,
		ConversationID: conversationID,
		SenderID:       c.senderID,
		SenderRole:     c.senderRole,
		Kind:           kind,
		Content:        content,
		Meta:           meta,
		// The sender has read their own message.
		IsRead:    true,
		CreatedAt: time.Now(),
	}
	if c.stream.ConversationID() == conversationID {
		c.stream.AppendLocal(provisional)
	}

	c.mu.Lock()
	c.draft = ""
	if meta != nil && meta.Attachment == staged {
		c.staged = nil
	}
	c.mu.Unlock()

	server, err := c.store.InsertMessage(ctx, domain.MessageDraft{
		ConversationID: conversationID,
		SenderID:       c.senderID,
		SenderRole:     c.senderRole,
		Kind:           kind,
		Content:        content,
		Meta:           meta,
	})
	if err != nil {
		c.stream.Remove(tempID)
		c.mu.Lock()
		c.draft = content
		if meta != nil && meta.Attachment == staged {
			c.staged = staged
		}
		c.mu.Unlock()
		c.log.Warnf("send to %s failed: %v", conversationID, err)
		return domain.Message{}, errors.Join(chat_errors.ErrSendFailed, err)
	}

	server.IsRead = true
	c.stream.Reconcile(tempID, server)
	c.conversations.ApplyIncoming(server)
	return server, nil
}
