package memory

import (
	"context"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// VehicleRepository is an in-memory repository.VehicleRepository.
type VehicleRepository struct {
	s *Store
}

// Upsert creates the driver's vehicle or overwrites its details.
func (r *VehicleRepository) Upsert(_ context.Context, vehicle *domain.Vehicle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.upsertVehicle(vehicle)
	return nil
}

// upsertVehicle keeps the ID and CreatedAt of an existing row. Callers hold s.mu.
func (s *Store) upsertVehicle(vehicle *domain.Vehicle) {
	v := *vehicle
	if existing, ok := s.vehicles[v.DriverID]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	}
	s.vehicles[v.DriverID] = &v
}

// GetByDriverID retrieves the vehicle of a driver.
func (r *VehicleRepository) GetByDriverID(_ context.Context, driverID string) (*domain.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	vehicle, ok := r.s.vehicles[driverID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	v := *vehicle
	return &v, nil
}

// GetAll retrieves every vehicle keyed by driver ID.
func (r *VehicleRepository) GetAll(_ context.Context) (map[string]*domain.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]*domain.Vehicle, len(r.s.vehicles))
	for id, vehicle := range r.s.vehicles {
		v := *vehicle
		out[id] = &v
	}
	return out, nil
}

// Ensure VehicleRepository implements repository.VehicleRepository.
var _ repository.VehicleRepository = (*VehicleRepository)(nil)
