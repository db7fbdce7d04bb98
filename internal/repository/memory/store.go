// Package memory provides in-process repositories with the same conditional
// update and uniqueness semantics as the PostgreSQL schema. They back the
// "memory" database driver and the service and handler tests.
package memory

import (
	"sync"

	"ridehail/internal/domain"
)

// Store holds every table behind a single lock so that multi-table rules,
// such as the one-active-ride-per-driver index, are checked atomically.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	drivers  map[string]*domain.DriverProfile // by user ID
	rides    map[string]*domain.Ride
	ratings  map[string]*domain.Rating  // by ride ID
	vehicles map[string]*domain.Vehicle // by driver ID
	rideSeq  []string                   // insertion order
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*domain.User),
		drivers:  make(map[string]*domain.DriverProfile),
		rides:    make(map[string]*domain.Ride),
		ratings:  make(map[string]*domain.Rating),
		vehicles: make(map[string]*domain.Vehicle),
	}
}

// Rides returns the ride repository view of the store.
func (s *Store) Rides() *RideRepository { return &RideRepository{s: s} }

// Drivers returns the driver repository view of the store.
func (s *Store) Drivers() *DriverRepository { return &DriverRepository{s: s} }

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Ratings returns the rating repository view of the store.
func (s *Store) Ratings() *RatingRepository { return &RatingRepository{s: s} }

// Vehicles returns the vehicle repository view of the store.
func (s *Store) Vehicles() *VehicleRepository { return &VehicleRepository{s: s} }

func copyRide(r *domain.Ride) *domain.Ride {
	c := *r
	c.Pickup.Coords = copyCoords(r.Pickup.Coords)
	c.Dropoff.Coords = copyCoords(r.Dropoff.Coords)
	return &c
}

func copyCoords(c *domain.Coordinates) *domain.Coordinates {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}
