package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

const (
	defaultRideListLimit = 100

	rideColumns = `id, passenger_id, driver_id, pickup_location, pickup_lat, pickup_lng,
		dropoff_location, dropoff_lat, dropoff_lng, distance_km, fare, status,
		created_at, updated_at, started_at, completed_at`
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, passenger_id, driver_id, pickup_location, pickup_lat, pickup_lng,
			dropoff_location, dropoff_lat, dropoff_lng, distance_km, fare, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	pickupLat, pickupLng := coordsArgs(ride.Pickup.Coords)
	dropoffLat, dropoffLng := coordsArgs(ride.Dropoff.Coords)

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.PassengerID,
		nullString(ride.DriverID),
		ride.Pickup.Address,
		pickupLat,
		pickupLng,
		ride.Dropoff.Address,
		dropoffLat,
		dropoffLng,
		nullFloat(ride.DistanceKm),
		ride.Fare,
		ride.Status,
		ride.CreatedAt,
		ride.UpdatedAt,
	)

	return translateError(err)
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translateError(err)
	}
	return ride, nil
}

// List retrieves rides matching the filter, newest first unless
// filter.OldestFirst is set.
func (r *RideRepository) List(ctx context.Context, filter repository.RideFilter) ([]*domain.Ride, error) {
	where, args := rideWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRideListLimit
	}
	args = append(args, limit)

	order := "DESC"
	if filter.OldestFirst {
		order = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM rides%s ORDER BY created_at %s LIMIT $%d`, rideColumns, where, order, len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// Count returns the number of rides matching the filter.
func (r *RideRepository) Count(ctx context.Context, filter repository.RideFilter) (int, error) {
	where, args := rideWhere(filter)

	var count int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rides`+where, args...).Scan(&count)
	return count, err
}

// CountByPassenger returns the number of rides per passenger.
func (r *RideRepository) CountByPassenger(ctx context.Context) (map[string]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT passenger_id, COUNT(*) FROM rides GROUP BY passenger_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var passengerID string
		var count int
		if err := rows.Scan(&passengerID, &count); err != nil {
			return nil, err
		}
		counts[passengerID] = count
	}
	return counts, rows.Err()
}

// SumFare returns the total fare of rides matching the filter.
func (r *RideRepository) SumFare(ctx context.Context, filter repository.RideFilter) (float64, error) {
	where, args := rideWhere(filter)

	var total float64
	err := r.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(fare), 0) FROM rides`+where, args...).Scan(&total)
	return total, err
}

// Accept assigns driverID to a ride that is still pending and driverless.
// The WHERE clause re-asserts the expected state so that concurrent callers
// are serialized by the row update: exactly one of them sees a matched row.
func (r *RideRepository) Accept(ctx context.Context, rideID, driverID string, at time.Time) error {
	query := `
		UPDATE rides
		SET driver_id = $1, status = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND driver_id IS NULL
	`

	result, err := r.q.ExecContext(ctx, query,
		driverID,
		domain.RideStatusAccepted,
		at,
		rideID,
		domain.RideStatusPending,
	)
	if err != nil {
		return translateError(err)
	}

	return expectAffected(result, repository.ErrConditionFailed)
}

// Transition applies a conditional status change.
func (r *RideRepository) Transition(ctx context.Context, t repository.RideTransition) error {
	args := []any{t.To, t.At, t.RideID, pq.Array(statusStrings(t.From))}
	conds := []string{"id = $3", "status = ANY($4)"}

	if t.DriverID != "" {
		args = append(args, t.DriverID)
		conds = append(conds, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if t.PassengerID != "" {
		args = append(args, t.PassengerID)
		conds = append(conds, fmt.Sprintf("passenger_id = $%d", len(args)))
	}

	query := `
		UPDATE rides
		SET status = $1,
			updated_at = $2,
			started_at = CASE WHEN $1 = 'in_progress' THEN $2 ELSE started_at END,
			completed_at = CASE WHEN $1 = 'completed' THEN $2 ELSE completed_at END
		WHERE ` + strings.Join(conds, " AND ")

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return translateError(err)
	}

	return expectAffected(result, repository.ErrConditionFailed)
}

// rideWhere builds the WHERE clause and arguments for a filter.
func rideWhere(filter repository.RideFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.PassengerID != "" {
		args = append(args, filter.PassengerID)
		conds = append(conds, fmt.Sprintf("passenger_id = $%d", len(args)))
	}
	if filter.DriverID != "" {
		args = append(args, filter.DriverID)
		conds = append(conds, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.CompletedSince.IsZero() {
		args = append(args, filter.CompletedSince)
		conds = append(conds, fmt.Sprintf("completed_at >= $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func statusStrings(statuses []domain.RideStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func coordsArgs(c *domain.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lng, Valid: true}
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var driverID sql.NullString
	var pickupLat, pickupLng, dropoffLat, dropoffLng, distanceKm sql.NullFloat64
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&ride.ID,
		&ride.PassengerID,
		&driverID,
		&ride.Pickup.Address,
		&pickupLat,
		&pickupLng,
		&ride.Dropoff.Address,
		&dropoffLat,
		&dropoffLng,
		&distanceKm,
		&ride.Fare,
		&ride.Status,
		&ride.CreatedAt,
		&ride.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		ride.DriverID = driverID.String
	}
	if pickupLat.Valid && pickupLng.Valid {
		ride.Pickup.Coords = &domain.Coordinates{Lat: pickupLat.Float64, Lng: pickupLng.Float64}
	}
	if dropoffLat.Valid && dropoffLng.Valid {
		ride.Dropoff.Coords = &domain.Coordinates{Lat: dropoffLat.Float64, Lng: dropoffLng.Float64}
	}
	if distanceKm.Valid {
		ride.DistanceKm = distanceKm.Float64
	}
	if startedAt.Valid {
		ride.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		ride.CompletedAt = completedAt.Time
	}

	return &ride, nil
}

// Ensure RideRepository implements repository.RideRepository.
var _ repository.RideRepository = (*RideRepository)(nil)
