package memory

import (
	"context"
	"math"
	"slices"
	"sort"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

const defaultRideListLimit = 100

// RideRepository is an in-memory repository.RideRepository.
type RideRepository struct {
	s *Store
}

// Create persists a new ride.
func (r *RideRepository) Create(_ context.Context, ride *domain.Ride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	if ride.Status.IsOutstanding() && r.s.outstandingFor(ride.PassengerID, "") {
		return repository.ErrDuplicate
	}
	if ride.DriverID != "" && ride.Status.IsDriverActive() && r.s.activeFor(ride.DriverID, "") {
		return repository.ErrDuplicate
	}

	r.s.rides[ride.ID] = copyRide(ride)
	r.s.rideSeq = append(r.s.rideSeq, ride.ID)
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(_ context.Context, id string) (*domain.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ride, ok := r.s.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRide(ride), nil
}

// List retrieves rides matching the filter, newest first unless
// filter.OldestFirst is set.
func (r *RideRepository) List(_ context.Context, filter repository.RideFilter) ([]*domain.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rides := r.s.match(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRideListLimit
	}
	if len(rides) > limit {
		rides = rides[:limit]
	}

	out := make([]*domain.Ride, len(rides))
	for i, ride := range rides {
		out[i] = copyRide(ride)
	}
	return out, nil
}

// Count returns the number of rides matching the filter.
func (r *RideRepository) Count(_ context.Context, filter repository.RideFilter) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.match(filter)), nil
}

// CountByPassenger returns the number of rides per passenger.
func (r *RideRepository) CountByPassenger(_ context.Context) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[string]int)
	for _, ride := range r.s.rides {
		counts[ride.PassengerID]++
	}
	return counts, nil
}

// SumFare returns the total fare of rides matching the filter.
func (r *RideRepository) SumFare(_ context.Context, filter repository.RideFilter) (float64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var total float64
	for _, ride := range r.s.match(filter) {
		total += ride.Fare
	}
	return math.Round(total*100) / 100, nil
}

// Accept assigns driverID to a ride that is still pending and driverless.
func (r *RideRepository) Accept(_ context.Context, rideID, driverID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ride, ok := r.s.rides[rideID]
	if !ok || ride.Status != domain.RideStatusPending || ride.DriverID != "" {
		return repository.ErrConditionFailed
	}
	if r.s.activeFor(driverID, rideID) {
		return repository.ErrDuplicate
	}

	ride.DriverID = driverID
	ride.Status = domain.RideStatusAccepted
	ride.UpdatedAt = at
	return nil
}

// Transition applies a conditional status change.
func (r *RideRepository) Transition(_ context.Context, t repository.RideTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ride, ok := r.s.rides[t.RideID]
	if !ok || !slices.Contains(t.From, ride.Status) {
		return repository.ErrConditionFailed
	}
	if t.DriverID != "" && ride.DriverID != t.DriverID {
		return repository.ErrConditionFailed
	}
	if t.PassengerID != "" && ride.PassengerID != t.PassengerID {
		return repository.ErrConditionFailed
	}

	ride.Status = t.To
	ride.UpdatedAt = t.At
	switch t.To {
	case domain.RideStatusInProgress:
		ride.StartedAt = t.At
	case domain.RideStatusCompleted:
		ride.CompletedAt = t.At
	}
	return nil
}

// outstandingFor reports whether passengerID has an outstanding ride other than exceptID.
func (s *Store) outstandingFor(passengerID, exceptID string) bool {
	for id, ride := range s.rides {
		if id != exceptID && ride.PassengerID == passengerID && ride.Status.IsOutstanding() {
			return true
		}
	}
	return false
}

// activeFor reports whether driverID holds an active ride other than exceptID.
func (s *Store) activeFor(driverID, exceptID string) bool {
	for id, ride := range s.rides {
		if id != exceptID && ride.DriverID == driverID && ride.Status.IsDriverActive() {
			return true
		}
	}
	return false
}

// match returns the rides passing filter in the filter's order. Callers hold s.mu.
func (s *Store) match(filter repository.RideFilter) []*domain.Ride {
	var out []*domain.Ride
	for _, id := range s.rideSeq {
		ride := s.rides[id]
		if filter.PassengerID != "" && ride.PassengerID != filter.PassengerID {
			continue
		}
		if filter.DriverID != "" && ride.DriverID != filter.DriverID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, ride.Status) {
			continue
		}
		if !filter.CompletedSince.IsZero() && (ride.CompletedAt.IsZero() || ride.CompletedAt.Before(filter.CompletedSince)) {
			continue
		}
		out = append(out, ride)
	}

	if filter.OldestFirst {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
		return out
	}

	// Stable on insertion order so equal timestamps list the latest insert first.
	slices.Reverse(out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Ensure RideRepository implements repository.RideRepository.
var _ repository.RideRepository = (*RideRepository)(nil)
