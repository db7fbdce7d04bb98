package repository

import (
	"context"

	"ridehail/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	// Register adds a new user. When profile is not nil it is stored together
	// with the user, atomically, and so is vehicle when both are set.
	Register(ctx context.Context, user *domain.User, profile *domain.DriverProfile, vehicle *domain.Vehicle) error

	// UpdateProfile overwrites the user's full name and phone. Returns
	// ErrDuplicate when the phone belongs to another user.
	UpdateProfile(ctx context.Context, id, fullName, phone string) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByIDs retrieves the users with the given IDs keyed by ID. Unknown IDs
	// are left out.
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)

	// GetByPhone retrieves a user by phone number.
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)

	// GetAll retrieves all users, optionally only those with the given role.
	GetAll(ctx context.Context, role domain.Role) ([]*domain.User, error)

	// CountByRole returns the number of users with the given role.
	CountByRole(ctx context.Context, role domain.Role) (int, error)
}
