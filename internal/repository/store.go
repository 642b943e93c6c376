package repository

import (
	"context"
	"encoding/json"

	"oficina-chat/internal/domain"
	"oficina-chat/internal/events"
	"oficina-chat/pkg/logger"

	"gorm.io/gorm"
)

// EventPublisher pushes committed change events onto the realtime
// channels. Implemented by redisfeed.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PostgresStore implements backend.Store over GORM. Mutations publish
// their change events after the transaction commits; a publish failure
// is logged, not returned, since the row is already durable and clients
// recover missed events by re-querying on reconnect.
type PostgresStore struct {
	db       *gorm.DB
	pub      EventPublisher
	resolver events.ChannelResolver
	log      *logger.Logger
}

func NewPostgresStore(db *gorm.DB, pub EventPublisher, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:       db,
		pub:      pub,
		resolver: events.NewUserChannelResolver(),
		log:      log,
	}
}

func (s *PostgresStore) publish(ctx context.Context, env events.Envelope, conv domain.Conversation) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.log.Errorf("marshal %s event: %v", env.EventType, err)
		return
	}
	for _, channel := range s.resolver.ResolveChannels(env, conv) {
		if err := s.pub.Publish(ctx, channel, data); err != nil {
			s.log.Errorf("publish %s to %s: %v", env.EventType, channel, err)
		}
	}
}
