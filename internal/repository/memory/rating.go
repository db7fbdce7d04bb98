package memory

import (
	"context"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// RatingRepository is an in-memory repository.RatingRepository.
type RatingRepository struct {
	s *Store
}

// Create persists a rating, one per ride.
func (r *RatingRepository) Create(_ context.Context, rating *domain.Rating) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.ratings[rating.RideID]; ok {
		return repository.ErrDuplicate
	}
	rt := *rating
	r.s.ratings[rating.RideID] = &rt
	return nil
}

// GetByRideID retrieves the rating of a ride.
func (r *RatingRepository) GetByRideID(_ context.Context, rideID string) (*domain.Rating, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rating, ok := r.s.ratings[rideID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rt := *rating
	return &rt, nil
}

// Ensure RatingRepository implements repository.RatingRepository.
var _ repository.RatingRepository = (*RatingRepository)(nil)
