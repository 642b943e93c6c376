package domain

import (
	"time"

	chat_errors "oficina-chat/pkg/errors"
)

// Message is a single entry in a conversation. Messages are append-only:
// no edit or delete exists in this subsystem. The backend assigns ID and
// CreatedAt; a client-generated temp id is only ever used for optimistic
// display before reconciliation.
type Message struct {
	ID             string          `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	ConversationID string          `gorm:"type:uuid;not null;index:idx_messages_history,priority:1" json:"conversation_id"`
	SenderID       string          `gorm:"type:uuid;not null" json:"sender_id"`
	SenderRole     ParticipantRole `gorm:"type:varchar(16);not null" json:"sender_role"`
	Kind           MessageKind     `gorm:"type:varchar(16);default:'TEXT';not null" json:"kind"`
	Content        string          `gorm:"type:text" json:"content"`
	Meta           *MessageMeta    `gorm:"type:jsonb;serializer:json" json:"meta,omitempty"`
	IsRead         bool            `gorm:"default:false" json:"is_read"`
	CreatedAt      time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_messages_history,priority:2" json:"created_at"`
}

// MessageMeta carries the kind-specific payload. Exactly the field
// matching the message kind is set; text messages carry none.
type MessageMeta struct {
	Attachment  *AttachmentMeta  `json:"attachment,omitempty"`
	Location    *LocationMeta    `json:"location,omitempty"`
	Quote       *QuoteMeta       `json:"quote,omitempty"`
	Appointment *AppointmentMeta `json:"appointment,omitempty"`
}

// AttachmentMeta backs image and document messages.
type AttachmentMeta struct {
	URL       string `json:"url"`
	ObjectKey string `json:"object_key"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

type LocationMeta struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

// QuoteMeta is a service-price quote sent by a workshop.
type QuoteMeta struct {
	ServiceOrderID string  `json:"service_order_id,omitempty"`
	Description    string  `json:"description"`
	AmountCents    int64   `json:"amount_cents"`
	Currency       string  `json:"currency"`
	ValidUntil     *string `json:"valid_until,omitempty"`
}

type AppointmentMeta struct {
	AppointmentID string    `json:"appointment_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	ServiceName   string    `json:"service_name"`
}

// Validate checks that content and meta are consistent with the kind.
func (m Message) Validate() error {
	switch m.Kind {
	case KindText:
		if m.Content == "" {
			return chat_errors.ErrEmptyMessage
		}
	case KindImage, KindDocument:
		if m.Meta == nil || m.Meta.Attachment == nil {
			return chat_errors.ErrInvalidInput
		}
	case KindLocation:
		if m.Meta == nil || m.Meta.Location == nil {
			return chat_errors.ErrInvalidInput
		}
	case KindQuote:
		if m.Meta == nil || m.Meta.Quote == nil {
			return chat_errors.ErrInvalidInput
		}
	case KindAppointment:
		if m.Meta == nil || m.Meta.Appointment == nil {
			return chat_errors.ErrInvalidInput
		}
	default:
		return chat_errors.ErrInvalidInput
	}
	return nil
}

// Preview is the short text shown in the conversation list. Non-text
// kinds collapse to a fixed label.
func (m Message) Preview() string {
	switch m.Kind {
	case KindImage:
		return "[imagem]"
	case KindDocument:
		return "[documento]"
	case KindLocation:
		return "[localização]"
	case KindQuote:
		return "[orçamento]"
	case KindAppointment:
		return "[agendamento]"
	}
	const previewLimit = 120
	runes := []rune(m.Content)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit])
	}
	return m.Content
}

// Before reports whether m sorts before other in the stream's total
// order: ascending (created_at, id), the id breaking timestamp ties.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// MessageDraft is the client's input to the insert mutation. The backend
// assigns the authoritative id and timestamp.
type MessageDraft struct {
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	SenderRole     ParticipantRole `json:"sender_role"`
	Kind           MessageKind     `json:"kind"`
	Content        string          `json:"content"`
	Meta           *MessageMeta    `json:"meta,omitempty"`
}
