package events

import (
	"oficina-chat/internal/domain"
)

// ChannelResolver determines which pub/sub channels an envelope is
// published to.
type ChannelResolver interface {
	ResolveChannels(env Envelope, conv domain.Conversation) []string
}

// UserChannelResolver fans message events out to one channel per
// participant and presence events to the changed user's presence
// channel.
type UserChannelResolver struct{}

func NewUserChannelResolver() *UserChannelResolver {
	return &UserChannelResolver{}
}

func (r *UserChannelResolver) ResolveChannels(env Envelope, conv domain.Conversation) []string {
	switch env.EventType {
	case EventTypeMessageCreated, EventTypeMessageRead:
		return []string{
			ChannelPrefixUser + conv.DriverID,
			ChannelPrefixUser + conv.WorkshopID,
		}
	case EventTypePresenceChanged:
		return []string{ChannelPrefixPresence + env.AggregateID}
	}
	return nil
}
