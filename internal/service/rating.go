package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// RatingService records passenger ratings of completed rides.
type RatingService struct {
	rideRepo   repository.RideRepository
	ratingRepo repository.RatingRepository
	drivers    *DriverService
}

// NewRatingService creates a new RatingService.
func NewRatingService(rideRepo repository.RideRepository, ratingRepo repository.RatingRepository, drivers *DriverService) *RatingService {
	return &RatingService{rideRepo: rideRepo, ratingRepo: ratingRepo, drivers: drivers}
}

// RateRide stores the passenger's 1 to 5 score for a completed ride and
// refreshes the driver's average.
func (s *RatingService) RateRide(ctx context.Context, rideID string, actor domain.Actor, score int, comment string) (*domain.Rating, error) {
	if !validRideID(rideID) {
		return nil, ErrInvalidRideID
	}
	if score < 1 || score > 5 {
		return nil, ErrInvalidRating
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.PassengerID != actor.ID {
		return nil, ErrForbidden
	}
	if ride.Status != domain.RideStatusCompleted {
		return nil, ErrRideNotCompleted
	}

	rating := &domain.Rating{
		ID:          uuid.New().String(),
		RideID:      ride.ID,
		PassengerID: ride.PassengerID,
		DriverID:    ride.DriverID,
		Score:       score,
		Comment:     strings.TrimSpace(comment),
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := s.ratingRepo.Create(ctx, rating); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyRated
		}
		return nil, fmt.Errorf("create rating: %w", err)
	}

	s.drivers.refreshRating(ctx, ride.DriverID)
	return rating, nil
}
