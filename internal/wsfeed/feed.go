// Package wsfeed implements the realtime feeds over the marketplace's
// websocket gateway, for clients that cannot reach Redis directly. Each
// subscription holds one socket, authenticated with the user's access
// token, and reconnects with exponential backoff when the transport
// drops. Events missed while disconnected are not replayed here; the
// session re-queries on reconnect.
package wsfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"oficina-chat/internal/backend"
	"oficina-chat/internal/domain"
	"oficina-chat/internal/events"
	"oficina-chat/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type FeedSource struct {
	gatewayURL  string
	accessToken string
	userID      string
	log         *logger.Logger
}

// NewFeedSource validates the access token and returns a feed source
// bound to the token's subject.
func NewFeedSource(gatewayURL, accessToken string, log *logger.Logger) (*FeedSource, error) {
	userID, err := tokenSubject(accessToken)
	if err != nil {
		return nil, err
	}
	return &FeedSource{
		gatewayURL:  gatewayURL,
		accessToken: accessToken,
		userID:      userID,
		log:         log,
	}, nil
}

// UserID returns the subject of the access token.
func (f *FeedSource) UserID() string {
	return f.userID
}

func (f *FeedSource) SubscribeMessages(ctx context.Context, viewerID string, onEvent func(domain.Message), onState func(backend.FeedState)) (backend.Subscription, error) {
	return f.subscribe(ctx, events.ChannelPrefixUser+viewerID, onState, func(env events.Envelope) {
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

func (f *FeedSource) subscribe(ctx context.Context, channel string, onState func(backend.FeedState), handle func(events.Envelope)) (backend.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	// The first dial is synchronous so a bad URL or rejected token
	// surfaces to the caller instead of looping in the background.
	conn, err := f.dial(subCtx, channel)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &subscription{cancel: cancel}
	go f.run(subCtx, conn, channel, onState, handle)
	return sub, nil
}

func (f *FeedSource) dial(ctx context.Context, channel string) (*websocket.Conn, error) {
	u, err := url.Parse(f.gatewayURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("channels", channel)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.accessToken)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	return conn, err
}

// run pumps one socket until the subscription is closed, redialing with
// exponential backoff whenever the transport drops.
func (f *FeedSource) run(ctx context.Context, conn *websocket.Conn, channel string, onState func(backend.FeedState), handle func(events.Envelope)) {
	for {
		err := f.readLoop(ctx, conn, handle)
		if ctx.Err() != nil {
			return
		}
		f.log.Warnf("gateway feed %s dropped: %v", channel, err)
		if onState != nil {
			onState(backend.FeedDegraded)
		}

		policy := backoff.WithContext(newReconnectBackOff(), ctx)
		err = backoff.Retry(func() error {
			c, dialErr := f.dial(ctx, channel)
			if dialErr != nil {
				return dialErr
			}
			conn = c
			return nil
		}, policy)
		if err != nil {
			// Context cancelled; the subscription is done.
			return
		}
		f.log.Infof("gateway feed %s reconnected", channel)
		if onState != nil {
			onState(backend.FeedConnected)
		}
	}
}

// newReconnectBackOff retries until the subscription's context is
// cancelled. The library default stops after 15 minutes, which would
// kill the feed permanently on a long outage.
func newReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return b
}

func (f *FeedSource) readLoop(ctx context.Context, conn *websocket.Conn, handle func(events.Envelope)) error {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env events.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			f.log.Errorf("decode gateway frame: %v", err)
			continue
		}
		handle(env)
	}
}

type subscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}
