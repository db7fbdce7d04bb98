package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
)

// scriptedSource hands out subscriptions the test controls.
type scriptedSource struct {
	mu      sync.Mutex
	opens   int
	failFor int
	subs    []*scriptedSubscription
	opened  chan *scriptedSubscription
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{opened: make(chan *scriptedSubscription, 8)}
}

func (s *scriptedSource) Open(_ context.Context) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens++
	if s.opens <= s.failFor {
		return nil, errors.New("unavailable")
	}
	sub := &scriptedSubscription{events: make(chan domain.RideEvent, 8)}
	s.subs = append(s.subs, sub)
	s.opened <- sub
	return sub, nil
}

func (s *scriptedSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

type scriptedSubscription struct {
	once   sync.Once
	events chan domain.RideEvent
}

func (s *scriptedSubscription) Events() <-chan domain.RideEvent { return s.events }

func (s *scriptedSubscription) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

func fastStream(source Source, matcher Matcher) *Stream {
	return Subscribe(source, matcher, WithBackoff(time.Millisecond, 5*time.Millisecond))
}

func TestStream_IsLazy(t *testing.T) {
	source := newScriptedSource()
	stream := fastStream(source, nil)
	defer stream.Close()

	assert.Zero(t, source.openCount())
}

func TestStream_DeliversMatchingEvents(t *testing.T) {
	source := newScriptedSource()
	stream := fastStream(source, Filter{PassengerID: "p1"})
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		sub := <-source.opened
		sub.events <- domain.RideEvent{Type: domain.EventInsert, RideID: "other", PassengerID: "p2"}
		sub.events <- domain.RideEvent{Type: domain.EventInsert, RideID: "mine", PassengerID: "p1"}
	}()

	event, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mine", event.RideID)
	assert.Equal(t, 1, source.openCount())
}

func TestStream_ResyncsAfterReopen(t *testing.T) {
	source := newScriptedSource()
	stream := fastStream(source, nil)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		first := <-source.opened
		first.events <- domain.RideEvent{Type: domain.EventInsert, RideID: "a"}
		first.Close()

		second := <-source.opened
		second.events <- domain.RideEvent{Type: domain.EventUpdate, RideID: "b"}
	}()

	event, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", event.RideID)

	event, err = stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.EventResync, event.Type)

	event, err = stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", event.RideID)
	assert.Equal(t, 2, source.openCount())
}

func TestStream_RetriesFailedOpen(t *testing.T) {
	source := newScriptedSource()
	source.failFor = 2
	stream := fastStream(source, nil)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		sub := <-source.opened
		sub.events <- domain.RideEvent{Type: domain.EventInsert, RideID: "a"}
	}()

	event, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", event.RideID)
	assert.Equal(t, 3, source.openCount())
}

func TestStream_NextHonoursContext(t *testing.T) {
	source := newScriptedSource()
	stream := fastStream(source, nil)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStream_Close(t *testing.T) {
	source := newScriptedSource()
	stream := fastStream(source, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Next(context.Background())
		errCh <- err
	}()

	<-source.opened
	require.NoError(t, stream.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}

	_, err := stream.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStream_BackoffIsCapped(t *testing.T) {
	stream := Subscribe(newScriptedSource(), nil, WithBackoff(10*time.Millisecond, 50*time.Millisecond))

	assert.Equal(t, 10*time.Millisecond, stream.delay(1))
	assert.Equal(t, 20*time.Millisecond, stream.delay(2))
	assert.Equal(t, 40*time.Millisecond, stream.delay(3))
	assert.Equal(t, 50*time.Millisecond, stream.delay(4))
	assert.Equal(t, 50*time.Millisecond, stream.delay(10))
}

func TestStream_WithHub(t *testing.T) {
	hub := NewHub(4)
	stream := fastStream(hub, Filter{Statuses: []domain.RideStatus{domain.RideStatusPending}})
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		for hub.Subscribers() == 0 {
			time.Sleep(time.Millisecond)
		}
		_ = hub.Publish(ctx, domain.RideEvent{
			Type:           domain.EventUpdate,
			RideID:         "ride-1",
			Status:         domain.RideStatusAccepted,
			PreviousStatus: domain.RideStatusPending,
		})
	}()

	event, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ride-1", event.RideID)
}
