package redisfeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"
	"oficina-chat/internal/events"
	"oficina-chat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// FeedSource implements backend.Feed over Redis pub/sub. Each
// subscription runs its own receive loop; transient receive errors are
// reported as FeedDegraded and the loop keeps retrying until the
// subscription is closed.
type FeedSource struct {
	client *goredis.Client
	log    *logger.Logger
}

func NewFeedSource(client *goredis.Client, log *logger.Logger) *FeedSource {
	return &FeedSource{client: client, log: log}
}

func (f *FeedSource) SubscribeMessages(ctx context.Context, viewerID string, onEvent func(domain.Message), onState func(backend.FeedState)) (backend.Subscription, error) {
	pattern := events.ChannelPrefixUser + viewerID
	return f.subscribe(ctx, pattern, onState, func(env events.Envelope) {
		if env.EventType != events.EventTypeMessageCreated {
			return
		}
		var e events.MessageCreatedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			f.log.Errorf("decode message.created: %v", err)
			return
		}
		onEvent(e.Message)
	})
}

func (f *FeedSource) SubscribePresence(ctx context.Context, viewerID string, onEvent func(domain.Presence), onState func(backend.FeedState)) (backend.Subscription, error) {
	return f.subscribe(ctx, events.ChannelPrefixPresence+"*", onState, func(env events.Envelope) {
		if env.EventType != events.EventTypePresenceChanged {
			return
		}
		var e events.PresenceChangedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			f.log.Errorf("decode presence.changed: %v", err)
			return
		}
		onEvent(e.Presence)
	})
}

func (f *FeedSource) subscribe(ctx context.Context, pattern string, onState func(backend.FeedState), handle func(events.Envelope)) (backend.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := f.client.PSubscribe(subCtx, pattern)

	// Fail fast if the initial subscribe is rejected.
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}

	sub := &subscription{pubsub: pubsub, cancel: cancel}
	go f.receiveLoop(subCtx, pubsub, pattern, onState, handle)
	return sub, nil
}

func (f *FeedSource) receiveLoop(ctx context.Context, pubsub *goredis.PubSub, pattern string, onState func(backend.FeedState), handle func(events.Envelope)) {
	degraded := false
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !degraded {
				degraded = true
				f.log.Warnf("feed %s degraded: %v", pattern, err)
				if onState != nil {
					onState(backend.FeedDegraded)
				}
			}
			// go-redis re-subscribes on its own; back off a little so a
			// dead server does not spin this loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if degraded {
			degraded = false
			f.log.Infof("feed %s reconnected", pattern)
			if onState != nil {
				onState(backend.FeedConnected)
			}
		}

		var env events.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			f.log.Errorf("decode envelope on %s: %v", msg.Channel, err)
			continue
		}
		handle(env)
	}
}

type subscription struct {
	pubsub *goredis.PubSub
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
	})
	return s.err
}
