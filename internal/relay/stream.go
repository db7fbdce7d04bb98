package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ridehail/internal/domain"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("relay: stream closed")

const (
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// Stream is a lazy, restartable sequence of matching events. Nothing is
// opened until the first call to Next. When the underlying subscription ends
// the stream reopens it, waiting with capped exponential backoff, and yields
// a resync event before any further change event.
//
// Next must not be called concurrently; Close may be called from any goroutine.
type Stream struct {
	source  Source
	matcher Matcher
	logger  *slog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time

	mu       sync.Mutex
	sub      Subscription
	done     chan struct{}
	closed   bool
	opened   bool
	resync   bool
	attempts int
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithBackoff sets the first and the largest reopen delay.
func WithBackoff(initial, max time.Duration) StreamOption {
	return func(s *Stream) {
		if initial > 0 {
			s.initialBackoff = initial
		}
		if max >= s.initialBackoff {
			s.maxBackoff = max
		}
	}
}

// WithLogger sets the logger used to report reconnects.
func WithLogger(logger *slog.Logger) StreamOption {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Subscribe returns a stream of the events from source accepted by matcher.
// A nil matcher accepts every event.
func Subscribe(source Source, matcher Matcher, opts ...StreamOption) *Stream {
	if matcher == nil {
		matcher = Filter{}
	}
	s := &Stream{
		source:         source,
		matcher:        matcher,
		logger:         slog.Default(),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		now:            time.Now,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next blocks until a matching event is available, ctx is done, or the
// stream is closed.
func (s *Stream) Next(ctx context.Context) (domain.RideEvent, error) {
	for {
		sub, err := s.subscription(ctx)
		if err != nil {
			return domain.RideEvent{}, err
		}

		if s.resync {
			s.resync = false
			return domain.RideEvent{Type: domain.EventResync, OccurredAt: s.now().UTC()}, nil
		}

		select {
		case <-ctx.Done():
			return domain.RideEvent{}, ctx.Err()
		case <-s.done:
			return domain.RideEvent{}, ErrStreamClosed
		case event, ok := <-sub.Events():
			if !ok {
				s.release(sub)
				s.logger.Warn("relay subscription ended, reopening")
				continue
			}
			s.attempts = 0
			if s.matcher.Matches(event) {
				return event, nil
			}
		}
	}
}

// Close ends the stream and its current subscription.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.sub != nil {
		err := s.sub.Close()
		s.sub = nil
		return err
	}
	return nil
}

// subscription returns the open subscription, opening one if needed.
func (s *Stream) subscription(ctx context.Context) (Subscription, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrStreamClosed
		}
		if s.sub != nil {
			sub := s.sub
			s.mu.Unlock()
			return sub, nil
		}
		s.mu.Unlock()

		if s.attempts > 0 {
			if err := s.wait(ctx, s.delay(s.attempts)); err != nil {
				return nil, err
			}
		}

		sub, err := s.source.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.attempts++
			s.logger.Warn("relay subscription failed to open", "error", err, "attempt", s.attempts)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = sub.Close()
			return nil, ErrStreamClosed
		}
		s.sub = sub
		s.mu.Unlock()

		if s.opened {
			s.resync = true
		}
		s.opened = true
		return sub, nil
	}
}

// release forgets an ended subscription.
func (s *Stream) release(sub Subscription) {
	s.mu.Lock()
	if s.sub == sub {
		s.sub = nil
	}
	s.mu.Unlock()

	_ = sub.Close()
	s.attempts++
}

func (s *Stream) delay(attempt int) time.Duration {
	d := s.initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	return d
}

func (s *Stream) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStreamClosed
	case <-timer.C:
		return nil
	}
}
