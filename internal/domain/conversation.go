package domain

import (
	"time"
)

// Conversation is a persistent one-to-one thread between a driver and a
// workshop. Rows are owned by the backend store; the client holds
// read-through copies refreshed by queries and extended by realtime
// events. UnreadCount and IsRead are per-viewer and are filled in from
// the viewer's participant row when listing.
type Conversation struct {
	ID                 string             `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	DriverID           string             `gorm:"type:uuid;not null;index:idx_conversations_pair,unique,priority:1" json:"driver_id"`
	WorkshopID         string             `gorm:"type:uuid;not null;index:idx_conversations_pair,unique,priority:2" json:"workshop_id"`
	Status             ConversationStatus `gorm:"type:varchar(16);default:'ACTIVE';not null" json:"status"`
	LastMessagePreview string             `gorm:"type:text" json:"last_message_preview"`
	LastMessageAt      time.Time          `gorm:"index:idx_conversations_last_message,sort:desc" json:"last_message_at"`
	CreatedAt          time.Time          `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Per-viewer, not stored on this row. Denormalized from the
	// viewer's Participant row by ListConversations.
	UnreadCount int `gorm:"-" json:"unread_count"`
}

// Participant is one side of a conversation. Exactly two exist per
// conversation, one per role.
type Participant struct {
	ConversationID string          `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         string          `gorm:"type:uuid;primaryKey;index:idx_participants_user" json:"user_id"`
	Role           ParticipantRole `gorm:"type:varchar(16);not null" json:"role"`
	UnreadCount    int             `gorm:"default:0;not null" json:"unread_count"`
	JoinedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"joined_at"`
}

// OtherParticipantID returns the user on the opposite side of the
// thread from viewerID, or "" if viewerID is not a participant.
func (c Conversation) OtherParticipantID(viewerID string) string {
	switch viewerID {
	case c.DriverID:
		return c.WorkshopID
	case c.WorkshopID:
		return c.DriverID
	}
	return ""
}
