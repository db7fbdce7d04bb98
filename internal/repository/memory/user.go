package memory

import (
	"context"
	"sort"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// UserRepository is an in-memory repository.UserRepository.
type UserRepository struct {
	s *Store
}

// Register adds a new user and, when given, its driver profile and vehicle.
func (r *UserRepository) Register(_ context.Context, user *domain.User, profile *domain.DriverProfile, vehicle *domain.Vehicle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	if r.s.phoneTaken(user.Phone, "") {
		return repository.ErrDuplicate
	}
	if profile != nil {
		if err := r.s.createDriver(profile); err != nil {
			return err
		}
		if vehicle != nil {
			r.s.upsertVehicle(vehicle)
		}
	}

	u := *user
	r.s.users[user.ID] = &u
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := *user
	return &u, nil
}

// GetByIDs retrieves the users with the given IDs keyed by ID.
func (r *UserRepository) GetByIDs(_ context.Context, ids []string) (map[string]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if user, ok := r.s.users[id]; ok {
			u := *user
			out[id] = &u
		}
	}
	return out, nil
}

// UpdateProfile overwrites the user's full name and phone.
func (r *UserRepository) UpdateProfile(_ context.Context, id, fullName, phone string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.s.phoneTaken(phone, id) {
		return repository.ErrDuplicate
	}
	user.FullName = fullName
	user.Phone = phone
	return nil
}

// phoneTaken reports whether a user other than exceptID owns phone. Callers hold s.mu.
func (s *Store) phoneTaken(phone, exceptID string) bool {
	if phone == "" {
		return false
	}
	for id, user := range s.users {
		if id != exceptID && user.Phone == phone {
			return true
		}
	}
	return false
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, user := range r.s.users {
		if phone != "" && user.Phone == phone {
			u := *user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetAll retrieves all users, optionally filtered by role.
func (r *UserRepository) GetAll(_ context.Context, role domain.Role) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.User
	for _, user := range r.s.users {
		if role == "" || user.Role == role {
			u := *user
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountByRole returns the number of users with the given role.
func (r *UserRepository) CountByRole(_ context.Context, role domain.Role) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int
	for _, user := range r.s.users {
		if user.Role == role {
			n++
		}
	}
	return n, nil
}

// Ensure UserRepository implements repository.UserRepository.
var _ repository.UserRepository = (*UserRepository)(nil)
