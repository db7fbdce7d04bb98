package repository

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// RideFilter narrows ride queries. Zero fields are ignored.
type RideFilter struct {
	PassengerID    string
	DriverID       string
	Statuses       []domain.RideStatus
	CompletedSince time.Time
	Limit          int // 0 = repository default
	OldestFirst    bool
}

// RideTransition describes a conditional status change. The update applies only
// while the ride is in one of From and, when set, is held by DriverID and
// belongs to PassengerID.
type RideTransition struct {
	RideID      string
	From        []domain.RideStatus
	To          domain.RideStatus
	DriverID    string
	PassengerID string
	At          time.Time
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride. Returns ErrDuplicate if the passenger already
	// has an outstanding ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// List retrieves rides matching the filter, newest first unless the filter
	// asks for OldestFirst.
	List(ctx context.Context, filter RideFilter) ([]*domain.Ride, error)

	// Count returns the number of rides matching the filter.
	Count(ctx context.Context, filter RideFilter) (int, error)

	// CountByPassenger returns the number of rides per passenger ID. Passengers
	// without rides are absent.
	CountByPassenger(ctx context.Context) (map[string]int, error)

	// SumFare returns the total fare of rides matching the filter.
	SumFare(ctx context.Context, filter RideFilter) (float64, error)

	// Accept assigns driverID to a ride that is still pending and driverless.
	// Returns ErrConditionFailed when no row matched, ErrDuplicate when the
	// driver already holds an active ride.
	Accept(ctx context.Context, rideID, driverID string, at time.Time) error

	// Transition applies a conditional status change. started_at and
	// completed_at are stamped when moving to in_progress and completed.
	// Returns ErrConditionFailed when no row matched.
	Transition(ctx context.Context, t RideTransition) error
}
