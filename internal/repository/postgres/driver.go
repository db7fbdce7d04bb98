package postgres

import (
	"context"
	"database/sql"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

const driverColumns = `id, user_id, COALESCE(license_number, ''), status, is_approved, total_rides,
	COALESCE(rating, 0), created_at, updated_at`

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

// Create adds a new driver profile.
func (r *DriverRepository) Create(ctx context.Context, profile *domain.DriverProfile) error {
	query := `
		INSERT INTO driver_profiles (id, user_id, license_number, status, is_approved, total_rides, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.ExecContext(ctx, query,
		profile.ID,
		profile.UserID,
		nullString(profile.LicenseNumber),
		profile.Status,
		profile.IsApproved,
		profile.TotalRides,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	return translateError(err)
}

// GetByUserID retrieves the profile of a driver.
func (r *DriverRepository) GetByUserID(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	query := `SELECT ` + driverColumns + ` FROM driver_profiles WHERE user_id = $1`

	profile, err := scanDriver(r.q.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, translateError(err)
	}
	return profile, nil
}

// GetAll retrieves all driver profiles.
func (r *DriverRepository) GetAll(ctx context.Context) ([]*domain.DriverProfile, error) {
	query := `SELECT ` + driverColumns + ` FROM driver_profiles ORDER BY created_at DESC`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.DriverProfile
	for rows.Next() {
		profile, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// UpdateStatus updates the availability of a driver.
func (r *DriverRepository) UpdateStatus(ctx context.Context, userID string, status domain.DriverStatus) error {
	query := `UPDATE driver_profiles SET status = $1, updated_at = now() WHERE user_id = $2`

	result, err := r.q.ExecContext(ctx, query, status, userID)
	if err != nil {
		return err
	}
	return expectAffected(result, repository.ErrNotFound)
}

// SetApproved updates the approval flag of a driver.
func (r *DriverRepository) SetApproved(ctx context.Context, userID string, approved bool) error {
	query := `UPDATE driver_profiles SET is_approved = $1, updated_at = now() WHERE user_id = $2`

	result, err := r.q.ExecContext(ctx, query, approved, userID)
	if err != nil {
		return err
	}
	return expectAffected(result, repository.ErrNotFound)
}

// IncrementTotalRides adds one to the driver's ride counter in a single statement.
func (r *DriverRepository) IncrementTotalRides(ctx context.Context, userID string) error {
	query := `UPDATE driver_profiles SET total_rides = total_rides + 1, updated_at = now() WHERE user_id = $1`

	result, err := r.q.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	return expectAffected(result, repository.ErrNotFound)
}

// RefreshRating recomputes the driver's rating from stored ratings.
func (r *DriverRepository) RefreshRating(ctx context.Context, userID string) error {
	query := `
		UPDATE driver_profiles
		SET rating = (SELECT ROUND(AVG(rating), 2) FROM ratings WHERE driver_id = $1),
			updated_at = now()
		WHERE user_id = $1
	`

	result, err := r.q.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	return expectAffected(result, repository.ErrNotFound)
}

// CountUnapproved returns the number of drivers waiting for approval.
func (r *DriverRepository) CountUnapproved(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM driver_profiles WHERE NOT is_approved`).Scan(&count)
	return count, err
}

func scanDriver(row rowScanner) (*domain.DriverProfile, error) {
	var profile domain.DriverProfile
	err := row.Scan(
		&profile.ID,
		&profile.UserID,
		&profile.LicenseNumber,
		&profile.Status,
		&profile.IsApproved,
		&profile.TotalRides,
		&profile.Rating,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Ensure DriverRepository implements repository.DriverRepository.
var _ repository.DriverRepository = (*DriverRepository)(nil)
