package domain

import (
	"time"
)

// Presence is a participant's best-effort availability record. Each
// client exclusively writes its own user's row and only reads others'.
// Updates are last-write-wins by LastSeen; rows are upserted, never
// deleted.
type Presence struct {
	UserID                string        `json:"user_id"`
	Status                PresenceState `json:"status"`
	LastSeen              time.Time     `json:"last_seen"`
	CurrentConversationID string        `json:"current_conversation_id,omitempty"`
}

// Newer reports whether p supersedes other. An event carrying an older
// LastSeen than the cached value is discarded by the consumer.
func (p Presence) Newer(other Presence) bool {
	return p.LastSeen.After(other.LastSeen)
}
