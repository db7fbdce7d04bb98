package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"ridehail/internal/domain"
	"ridehail/internal/relay"
)

// RideChangesChannel is the NOTIFY channel fed by the rides trigger.
const RideChangesChannel = "ride_changes"

// ChangeFeed is a relay.Source backed by LISTEN on the rides trigger channel.
// Every subscription owns its own listener connection.
type ChangeFeed struct {
	dsn         string
	minInterval time.Duration
	maxInterval time.Duration
	ping        time.Duration
	logger      *slog.Logger
}

// NewChangeFeed creates a change feed for the database at dsn. The listener
// connection is pinged every ping interval to detect silent failures.
func NewChangeFeed(dsn string, ping time.Duration, logger *slog.Logger) *ChangeFeed {
	if logger == nil {
		logger = slog.Default()
	}
	if ping <= 0 {
		ping = 90 * time.Second
	}
	return &ChangeFeed{
		dsn:         dsn,
		minInterval: 10 * time.Second,
		maxInterval: time.Minute,
		ping:        ping,
		logger:      logger,
	}
}

// Open starts listening on RideChangesChannel.
func (f *ChangeFeed) Open(ctx context.Context) (relay.Subscription, error) {
	listener := pq.NewListener(f.dsn, f.minInterval, f.maxInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			f.logger.Warn("ride change listener event", "event", int(ev), "error", err)
		}
	})

	if err := listener.Listen(RideChangesChannel); err != nil {
		_ = listener.Close()
		return nil, err
	}

	sub := &changeSubscription{
		listener: listener,
		events:   make(chan domain.RideEvent, 64),
		done:     make(chan struct{}),
		logger:   f.logger,
	}
	go sub.run(f.ping)

	return sub, nil
}

type changeSubscription struct {
	listener *pq.Listener
	events   chan domain.RideEvent
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

func (s *changeSubscription) Events() <-chan domain.RideEvent {
	return s.events
}

func (s *changeSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.listener.Close()
	})
	return err
}

// run forwards notifications until the subscription is closed. A nil
// notification means the connection was re-established and notifications
// may have been lost, which ends the subscription so the stream resyncs.
func (s *changeSubscription) run(interval time.Duration) {
	defer close(s.events)

	ping := time.NewTicker(interval)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				s.logger.Info("ride change listener reconnected")
				return
			}
			event, err := decodeRideChange(n.Extra)
			if err != nil {
				s.logger.Warn("invalid ride change payload", "error", err)
				continue
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			}
		case <-ping.C:
			if err := s.listener.Ping(); err != nil {
				s.logger.Warn("ride change listener ping failed", "error", err)
				return
			}
		}
	}
}

// rideChange is the trigger payload.
type rideChange struct {
	Type           string    `json:"type"`
	RideID         string    `json:"ride_id"`
	PassengerID    string    `json:"passenger_id"`
	DriverID       *string   `json:"driver_id"`
	Status         string    `json:"status"`
	PreviousStatus *string   `json:"previous_status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func decodeRideChange(payload string) (domain.RideEvent, error) {
	var change rideChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return domain.RideEvent{}, err
	}

	event := domain.RideEvent{
		Type:        domain.EventType(change.Type),
		RideID:      change.RideID,
		PassengerID: change.PassengerID,
		Status:      domain.RideStatus(change.Status),
		OccurredAt:  change.OccurredAt,
	}
	if change.DriverID != nil {
		event.DriverID = *change.DriverID
	}
	if change.PreviousStatus != nil {
		event.PreviousStatus = domain.RideStatus(*change.PreviousStatus)
	}
	return event, nil
}

// Ensure ChangeFeed implements relay.Source.
var _ relay.Source = (*ChangeFeed)(nil)
