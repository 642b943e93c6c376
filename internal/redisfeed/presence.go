package redisfeed

import (
	"context"
	"encoding/json"
	"time"

	"oficina-chat/internal/domain"
	"oficina-chat/internal/events"

	goredis "github.com/redis/go-redis/v9"
)

// Redis key prefixes for presence
const (
	presenceKeyPrefix = "presence:"        // JSON blob per user
	presenceOnlineSet = "presence:online"  // Set of online user IDs
)

// PresenceStore keeps best-effort presence records in Redis and
// publishes a presence.changed event on every transition. Online
// records carry a TTL so a crashed client fades to offline without a
// cleanup pass; offline records are kept longer for last-seen display.
type PresenceStore struct {
	client *goredis.Client
	pub    *Publisher
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, pub *Publisher, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, pub: pub, ttl: ttl}
}

// UpsertPresence replaces the user's presence record. Last write wins
// by LastSeen, enforced on the consumer side.
func (p *PresenceStore) UpsertPresence(ctx context.Context, rec domain.Presence) error {
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ttl := p.ttl
	if rec.Status == domain.PresenceOffline {
		ttl = 24 * time.Hour
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+rec.UserID, data, ttl)
	if rec.Status == domain.PresenceOffline {
		pipe.SRem(ctx, presenceOnlineSet, rec.UserID)
	} else {
		pipe.SAdd(ctx, presenceOnlineSet, rec.UserID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	env, err := events.NewPresenceChanged(rec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.pub.Publish(ctx, events.ChannelPrefixPresence+rec.UserID, payload)
}
