package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Register adds a new user and, for drivers, the driver profile and vehicle in
// the same transaction.
func (r *UserRepository) Register(ctx context.Context, user *domain.User, profile *domain.DriverProfile, vehicle *domain.Vehicle) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `INSERT INTO users (id, full_name, phone, role, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, query, user.ID, user.FullName, nullString(user.Phone), user.Role, user.CreatedAt); err != nil {
		return translateError(err)
	}

	if profile != nil {
		if err = NewDriverRepositoryWithTx(tx).Create(ctx, profile); err != nil {
			return err
		}
		if vehicle != nil {
			if err = NewVehicleRepositoryWithTx(tx).Upsert(ctx, vehicle); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, full_name, COALESCE(phone, ''), role, created_at FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDs retrieves the users with the given IDs keyed by ID.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query := `SELECT id, full_name, COALESCE(phone, ''), role, created_at FROM users WHERE id = ANY($1::uuid[])`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.FullName, &user.Phone, &user.Role, &user.CreatedAt); err != nil {
			return nil, err
		}
		users[user.ID] = &user
	}
	return users, rows.Err()
}

// UpdateProfile overwrites the user's full name and phone.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, fullName, phone string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET full_name = $1, phone = $2 WHERE id = $3`,
		fullName, nullString(phone), id,
	)
	if err != nil {
		return translateError(err)
	}
	return expectAffected(result, repository.ErrNotFound)
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	query := `SELECT id, full_name, COALESCE(phone, ''), role, created_at FROM users WHERE phone = $1`
	return r.getOne(ctx, query, phone)
}

// GetAll retrieves all users, optionally filtered by role.
func (r *UserRepository) GetAll(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	query := `
		SELECT id, full_name, COALESCE(phone, ''), role, created_at FROM users
		WHERE $1 = '' OR role = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.FullName, &user.Phone, &user.Role, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// CountByRole returns the number of users with the given role.
func (r *UserRepository) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&count)
	return count, err
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.FullName, &user.Phone, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// Ensure UserRepository implements repository.UserRepository.
var _ repository.UserRepository = (*UserRepository)(nil)
