package domain

type ParticipantRole string

const (
	RoleDriver   ParticipantRole = "DRIVER"
	RoleWorkshop ParticipantRole = "WORKSHOP"
)

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationClosed   ConversationStatus = "CLOSED"
	ConversationArchived ConversationStatus = "ARCHIVED"
)

// Writable reports whether new messages may still be appended.
// Closed and archived conversations are read-only.
func (s ConversationStatus) Writable() bool {
	return s == ConversationActive
}

type MessageKind string

const (
	KindText        MessageKind = "TEXT"
	KindImage       MessageKind = "IMAGE"
	KindDocument    MessageKind = "DOCUMENT"
	KindLocation    MessageKind = "LOCATION"
	KindQuote       MessageKind = "QUOTE"
	KindAppointment MessageKind = "APPOINTMENT"
)

type PresenceState string

const (
	PresenceOnline  PresenceState = "ONLINE"
	PresenceAway    PresenceState = "AWAY"
	PresenceOffline PresenceState = "OFFLINE"
)
