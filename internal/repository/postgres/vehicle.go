package postgres

import (
	"context"
	"database/sql"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

const vehicleColumns = `id, driver_id, car_model, car_color, plate_number, created_at, updated_at`

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

// NewVehicleRepositoryWithTx creates a vehicle repository using a transaction.
func NewVehicleRepositoryWithTx(tx *sql.Tx) *VehicleRepository {
	return &VehicleRepository{q: tx}
}

// Upsert creates the driver's vehicle or overwrites its details. The row keeps
// its original ID and created_at.
func (r *VehicleRepository) Upsert(ctx context.Context, vehicle *domain.Vehicle) error {
	query := `
		INSERT INTO vehicles (id, driver_id, car_model, car_color, plate_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (driver_id) DO UPDATE
		SET car_model = EXCLUDED.car_model,
			car_color = EXCLUDED.car_color,
			plate_number = EXCLUDED.plate_number,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.q.ExecContext(ctx, query,
		vehicle.ID,
		vehicle.DriverID,
		vehicle.CarModel,
		vehicle.CarColor,
		vehicle.PlateNumber,
		vehicle.CreatedAt,
		vehicle.UpdatedAt,
	)
	return translateError(err)
}

// GetByDriverID retrieves the vehicle of a driver.
func (r *VehicleRepository) GetByDriverID(ctx context.Context, driverID string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE driver_id = $1`

	vehicle, err := scanVehicle(r.q.QueryRowContext(ctx, query, driverID))
	if err != nil {
		return nil, translateError(err)
	}
	return vehicle, nil
}

// GetAll retrieves every vehicle keyed by driver ID.
func (r *VehicleRepository) GetAll(ctx context.Context) (map[string]*domain.Vehicle, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vehicles := make(map[string]*domain.Vehicle)
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles[vehicle.DriverID] = vehicle
	}
	return vehicles, rows.Err()
}

func scanVehicle(row rowScanner) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := row.Scan(&v.ID, &v.DriverID, &v.CarModel, &v.CarColor, &v.PlateNumber, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Ensure VehicleRepository implements repository.VehicleRepository.
var _ repository.VehicleRepository = (*VehicleRepository)(nil)
