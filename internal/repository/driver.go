package repository

import (
	"context"

	"ridehail/internal/domain"
)

// DriverRepository defines the persistence operations for driver profiles.
// Profiles are addressed by the owning user's ID.
type DriverRepository interface {
	// Create adds a new driver profile.
	Create(ctx context.Context, profile *domain.DriverProfile) error

	// GetByUserID retrieves the profile of a driver.
	GetByUserID(ctx context.Context, userID string) (*domain.DriverProfile, error)

	// GetAll retrieves all driver profiles.
	GetAll(ctx context.Context) ([]*domain.DriverProfile, error)

	// UpdateStatus updates the availability of a driver.
	UpdateStatus(ctx context.Context, userID string, status domain.DriverStatus) error

	// SetApproved updates the approval flag of a driver.
	SetApproved(ctx context.Context, userID string, approved bool) error

	// IncrementTotalRides adds one to the driver's ride counter in a single statement.
	IncrementTotalRides(ctx context.Context, userID string) error

	// RefreshRating recomputes the driver's rating from stored ratings.
	RefreshRating(ctx context.Context, userID string) error

	// CountUnapproved returns the number of drivers waiting for approval.
	CountUnapproved(ctx context.Context) (int, error)
}
