package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
	"ridehail/internal/relay"
)

// DefaultFeedChannel is the pub/sub channel ride events are published on.
const DefaultFeedChannel = "ride_events"

// Feed relays ride events over Redis pub/sub. It is both a relay.Publisher
// and a relay.Source, so every API instance sees the events of the others.
type Feed struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewFeed creates a feed on channel. An empty channel uses DefaultFeedChannel.
func NewFeed(client *redis.Client, channel string, logger *slog.Logger) *Feed {
	if channel == "" {
		channel = DefaultFeedChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{client: client, channel: channel, logger: logger}
}

// Publish sends event to every subscriber of the channel.
func (f *Feed) Publish(ctx context.Context, event domain.RideEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("publish ride event: %w", err)
	}
	return nil
}

// Open subscribes to the channel. The subscription ends when Close is called
// or the pub/sub connection fails.
func (f *Feed) Open(ctx context.Context) (relay.Subscription, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)

	// Wait for the subscription confirmation so that errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	sub := &feedSubscription{
		pubsub: pubsub,
		events: make(chan domain.RideEvent, 64),
		done:   make(chan struct{}),
		logger: f.logger,
	}
	go sub.run()

	return sub, nil
}

type feedSubscription struct {
	pubsub *redis.PubSub
	events chan domain.RideEvent
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *feedSubscription) Events() <-chan domain.RideEvent {
	return s.events
}

func (s *feedSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *feedSubscription) run() {
	defer close(s.events)

	ctx := context.Background()
	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("ride event subscription failed", "error", err)
			}
			return
		}

		var event domain.RideEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			s.logger.Warn("invalid ride event payload", "error", err)
			continue
		}

		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

// Ensure Feed implements both sides of the relay.
var (
	_ relay.Publisher = (*Feed)(nil)
	_ relay.Source    = (*Feed)(nil)
)
