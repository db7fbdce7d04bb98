// Package relay delivers ride change notifications from the store to
// interested subscribers. Events are invalidation hints: a subscriber that
// receives one re-reads the ride instead of trusting the payload.
package relay

import (
	"context"
	"errors"

	"ridehail/internal/domain"
)

// Publisher sends ride events to a transport.
type Publisher interface {
	Publish(ctx context.Context, event domain.RideEvent) error
}

// Subscription is a live feed of ride events. Events is closed when the
// subscription ends, either through Close or because the transport failed.
type Subscription interface {
	Events() <-chan domain.RideEvent
	Close() error
}

// Source opens subscriptions on a transport.
type Source interface {
	Open(ctx context.Context) (Subscription, error)
}

// Matcher decides whether an event is relevant to a subscriber.
type Matcher interface {
	Matches(event domain.RideEvent) bool
}

// Filter selects events by party and status. Zero fields match everything.
// Statuses match on the current or the previous status, so a subscriber
// watching pending rides also sees a ride leave the pending set.
type Filter struct {
	PassengerID string
	DriverID    string
	Statuses    []domain.RideStatus
}

// Matches reports whether event passes the filter. Resync events always match.
func (f Filter) Matches(event domain.RideEvent) bool {
	if event.Type == domain.EventResync {
		return true
	}
	if f.PassengerID != "" && event.PassengerID != f.PassengerID {
		return false
	}
	if f.DriverID != "" && event.DriverID != f.DriverID {
		return false
	}
	if len(f.Statuses) > 0 && !hasStatus(f.Statuses, event.Status) && !hasStatus(f.Statuses, event.PreviousStatus) {
		return false
	}
	return true
}

// AnyOf matches an event when at least one of its filters does.
// An empty AnyOf matches nothing but resync events.
type AnyOf []Filter

// Matches implements Matcher.
func (a AnyOf) Matches(event domain.RideEvent) bool {
	if event.Type == domain.EventResync {
		return true
	}
	for _, f := range a {
		if f.Matches(event) {
			return true
		}
	}
	return false
}

func hasStatus(set []domain.RideStatus, status domain.RideStatus) bool {
	if status == "" {
		return false
	}
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// MultiPublisher fans an event out to several publishers. Every publisher is
// attempted; their errors are joined.
type MultiPublisher []Publisher

// Publish implements Publisher.
func (m MultiPublisher) Publish(ctx context.Context, event domain.RideEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ensure interfaces are satisfied.
var (
	_ Matcher   = Filter{}
	_ Matcher   = AnyOf(nil)
	_ Publisher = MultiPublisher(nil)
)
