package repository

import (
	"context"

	"ridehail/internal/domain"
)

// RatingRepository defines the persistence operations for ride ratings.
type RatingRepository interface {
	// Create persists a rating. Returns ErrDuplicate if the ride is already rated.
	Create(ctx context.Context, rating *domain.Rating) error

	// GetByRideID retrieves the rating of a ride.
	GetByRideID(ctx context.Context, rideID string) (*domain.Rating, error)
}
