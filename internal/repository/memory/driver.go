package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// DriverRepository is an in-memory repository.DriverRepository.
type DriverRepository struct {
	s *Store
}

// Create adds a new driver profile.
func (r *DriverRepository) Create(_ context.Context, profile *domain.DriverProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.createDriver(profile)
}

func (s *Store) createDriver(profile *domain.DriverProfile) error {
	if _, ok := s.drivers[profile.UserID]; ok {
		return repository.ErrDuplicate
	}
	p := *profile
	s.drivers[profile.UserID] = &p
	return nil
}

// GetByUserID retrieves the profile of a driver.
func (r *DriverRepository) GetByUserID(_ context.Context, userID string) (*domain.DriverProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	profile, ok := r.s.drivers[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p := *profile
	return &p, nil
}

// GetAll retrieves all driver profiles, newest first.
func (r *DriverRepository) GetAll(_ context.Context) ([]*domain.DriverProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.DriverProfile, 0, len(r.s.drivers))
	for _, profile := range r.s.drivers {
		p := *profile
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateStatus updates the availability of a driver.
func (r *DriverRepository) UpdateStatus(_ context.Context, userID string, status domain.DriverStatus) error {
	return r.update(userID, func(p *domain.DriverProfile) { p.Status = status })
}

// SetApproved updates the approval flag of a driver.
func (r *DriverRepository) SetApproved(_ context.Context, userID string, approved bool) error {
	return r.update(userID, func(p *domain.DriverProfile) { p.IsApproved = approved })
}

// IncrementTotalRides adds one to the driver's ride counter.
func (r *DriverRepository) IncrementTotalRides(_ context.Context, userID string) error {
	return r.update(userID, func(p *domain.DriverProfile) { p.TotalRides++ })
}

// RefreshRating recomputes the driver's rating from stored ratings.
func (r *DriverRepository) RefreshRating(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	profile, ok := r.s.drivers[userID]
	if !ok {
		return repository.ErrNotFound
	}

	var sum, n int
	for _, rating := range r.s.ratings {
		if rating.DriverID == userID {
			sum += rating.Score
			n++
		}
	}
	profile.Rating = 0
	if n > 0 {
		profile.Rating = math.Round(float64(sum)/float64(n)*100) / 100
	}
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// CountUnapproved returns the number of drivers waiting for approval.
func (r *DriverRepository) CountUnapproved(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int
	for _, profile := range r.s.drivers {
		if !profile.IsApproved {
			n++
		}
	}
	return n, nil
}

func (r *DriverRepository) update(userID string, fn func(*domain.DriverProfile)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	profile, ok := r.s.drivers[userID]
	if !ok {
		return repository.ErrNotFound
	}
	fn(profile)
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// Ensure DriverRepository implements repository.DriverRepository.
var _ repository.DriverRepository = (*DriverRepository)(nil)
