package session

import (
	"context"
	"time"

	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"
	"oficina-chat/pkg/logger"
)

// PresenceTracker upserts this client's own presence row: online on
// session open, the active conversation on switch, offline on close.
// Presence is best-effort: one attempt, failures are logged and never
// surfaced or retried, since a stale presence row is an acceptable
// degradation.
type PresenceTracker struct {
	writer backend.PresenceWriter
	log    *logger.Logger
	userID string
}

func NewPresenceTracker(writer backend.PresenceWriter, userID string, log *logger.Logger) *PresenceTracker {
	return &PresenceTracker{writer: writer, log: log, userID: userID}
}

func (p *PresenceTracker) Set(ctx context.Context, status domain.PresenceState, activeConversationID string) {
	rec := domain.Presence{
		UserID:                p.userID,
		Status:                status,
		LastSeen:              time.Now(),
		CurrentConversationID: activeConversationID,
	}
	if err := p.writer.UpsertPresence(ctx, rec); err != nil {
		p.log.Warnf("presence update to %s failed: %v", status, err)
	}
}
