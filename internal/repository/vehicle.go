package repository

import (
	"context"

	"ridehail/internal/domain"
)

// VehicleRepository defines the persistence operations for driver vehicles.
type VehicleRepository interface {
	// Upsert creates the driver's vehicle or overwrites its details.
	Upsert(ctx context.Context, vehicle *domain.Vehicle) error

	// GetByDriverID retrieves the vehicle of a driver.
	GetByDriverID(ctx context.Context, driverID string) (*domain.Vehicle, error)

	// GetAll retrieves every registered vehicle keyed by driver ID.
	GetAll(ctx context.Context) (map[string]*domain.Vehicle, error)
}
