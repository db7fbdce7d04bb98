package postgres

import (
	"context"
	"database/sql"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// RatingRepository is a PostgreSQL implementation of repository.RatingRepository.
type RatingRepository struct {
	q Querier
}

// NewRatingRepository creates a new PostgreSQL rating repository.
func NewRatingRepository(db *sql.DB) *RatingRepository {
	return &RatingRepository{q: db}
}

// Create persists a rating.
func (r *RatingRepository) Create(ctx context.Context, rating *domain.Rating) error {
	query := `
		INSERT INTO ratings (id, ride_id, passenger_id, driver_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.ExecContext(ctx, query,
		rating.ID,
		rating.RideID,
		rating.PassengerID,
		rating.DriverID,
		rating.Score,
		nullString(rating.Comment),
		rating.CreatedAt,
	)
	return translateError(err)
}

// GetByRideID retrieves the rating of a ride.
func (r *RatingRepository) GetByRideID(ctx context.Context, rideID string) (*domain.Rating, error) {
	query := `
		SELECT id, ride_id, passenger_id, driver_id, rating, COALESCE(comment, ''), created_at
		FROM ratings WHERE ride_id = $1
	`

	var rating domain.Rating
	err := r.q.QueryRowContext(ctx, query, rideID).Scan(
		&rating.ID,
		&rating.RideID,
		&rating.PassengerID,
		&rating.DriverID,
		&rating.Score,
		&rating.Comment,
		&rating.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &rating, nil
}

// Ensure RatingRepository implements repository.RatingRepository.
var _ repository.RatingRepository = (*RatingRepository)(nil)
