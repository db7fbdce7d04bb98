package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// DriverService handles driver profile and vehicle operations.
//
// Cached profiles are refreshed from the store after every write. The cache
// rejects a profile older than the one it holds, so a read-through fill that
// raced a write cannot bring back the superseded state.
type DriverService struct {
	driverRepo  repository.DriverRepository
	vehicleRepo repository.VehicleRepository
	userRepo    repository.UserRepository
	cacheStore  redis.DriverCacheInterface
	logger      *slog.Logger
	now         func() time.Time
}

// NewDriverService creates a new DriverService. cacheStore may be nil.
func NewDriverService(
	driverRepo repository.DriverRepository,
	vehicleRepo repository.VehicleRepository,
	userRepo repository.UserRepository,
	cacheStore redis.DriverCacheInterface,
	logger *slog.Logger,
) *DriverService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriverService{
		driverRepo:  driverRepo,
		vehicleRepo: vehicleRepo,
		userRepo:    userRepo,
		cacheStore:  cacheStore,
		logger:      logger,
		now:         defaultNow,
	}
}

// VehicleRequest contains the editable vehicle details of a driver.
type VehicleRequest struct {
	CarModel    string
	CarColor    string
	PlateNumber string
}

func (r VehicleRequest) trimmed() (VehicleRequest, error) {
	r.CarModel = strings.TrimSpace(r.CarModel)
	r.CarColor = strings.TrimSpace(r.CarColor)
	r.PlateNumber = strings.TrimSpace(r.PlateNumber)
	if r.CarModel == "" || r.CarColor == "" || r.PlateNumber == "" {
		return r, ErrInvalidVehicle
	}
	return r, nil
}

// newVehicle builds the vehicle row for driverID from a validated request.
func newVehicle(driverID string, req VehicleRequest, now time.Time) *domain.Vehicle {
	return &domain.Vehicle{
		ID:          uuid.New().String(),
		DriverID:    driverID,
		CarModel:    req.CarModel,
		CarColor:    req.CarColor,
		PlateNumber: req.PlateNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Profile returns the driver profile of userID, served from cache when possible.
func (s *DriverService) Profile(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	if userID == "" {
		return nil, ErrInvalidDriverID
	}

	if s.cacheStore != nil {
		if cached, err := s.cacheStore.GetDriver(ctx, userID); err == nil && cached != nil {
			return cached, nil
		}
	}

	profile, err := s.driverRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.store(ctx, profile)
	return profile, nil
}

// currentProfile reads the profile from the store, bypassing the cache.
func (s *DriverService) currentProfile(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	profile, err := s.driverRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, profile)
	return profile, nil
}

// ListDetails returns every driver with their user record and vehicle,
// newest first.
func (s *DriverService) ListDetails(ctx context.Context) ([]*domain.DriverDetails, error) {
	profiles, err := s.driverRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.UserID
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load driver users: %w", err)
	}
	vehicles, err := s.vehicleRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vehicles: %w", err)
	}

	out := make([]*domain.DriverDetails, 0, len(profiles))
	for _, p := range profiles {
		details := &domain.DriverDetails{Profile: *p, User: domain.User{ID: p.UserID, Role: domain.RoleDriver}}
		if u, ok := users[p.UserID]; ok {
			details.User = *u
		}
		details.Vehicle = vehicles[p.UserID]
		out = append(out, details)
	}
	return out, nil
}

// Vehicle returns the vehicle of a driver.
func (s *DriverService) Vehicle(ctx context.Context, driverID string) (*domain.Vehicle, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return s.vehicleRepo.GetByDriverID(ctx, driverID)
}

// UpdateVehicle registers or edits the vehicle of a driver.
func (s *DriverService) UpdateVehicle(ctx context.Context, driverID string, req VehicleRequest) (*domain.Vehicle, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	req, err := req.trimmed()
	if err != nil {
		return nil, err
	}

	if _, err := s.driverRepo.GetByUserID(ctx, driverID); err != nil {
		return nil, err
	}

	if err := s.vehicleRepo.Upsert(ctx, newVehicle(driverID, req, s.now())); err != nil {
		return nil, fmt.Errorf("save vehicle: %w", err)
	}

	s.logger.Info("driver vehicle updated", "driver_id", driverID, "plate_number", req.PlateNumber)
	return s.vehicleRepo.GetByDriverID(ctx, driverID)
}

// SetAvailability lets a driver go online, offline or busy.
func (s *DriverService) SetAvailability(ctx context.Context, userID string, status domain.DriverStatus) (*domain.DriverProfile, error) {
	if userID == "" {
		return nil, ErrInvalidDriverID
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	if err := s.driverRepo.UpdateStatus(ctx, userID, status); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

// SetApproval approves or revokes a driver.
func (s *DriverService) SetApproval(ctx context.Context, userID string, approved bool) (*domain.DriverProfile, error) {
	if userID == "" {
		return nil, ErrInvalidDriverID
	}

	if err := s.driverRepo.SetApproved(ctx, userID, approved); err != nil {
		return nil, err
	}

	s.logger.Info("driver approval changed", "driver_id", userID, "approved", approved)
	return s.reload(ctx, userID)
}

// markAvailability records a lifecycle-driven availability change. Failures
// are logged only.
func (s *DriverService) markAvailability(ctx context.Context, userID string, status domain.DriverStatus) {
	if err := s.driverRepo.UpdateStatus(ctx, userID, status); err != nil {
		s.logger.Warn("failed to update driver availability",
			"driver_id", userID,
			"status", status,
			"error", err,
		)
	}
	s.refresh(ctx, userID)
}

// recordCompletedRide increments the driver's ride counter in the store.
// Failures are logged only and never undo the completion.
func (s *DriverService) recordCompletedRide(ctx context.Context, userID, rideID string) {
	if err := s.driverRepo.IncrementTotalRides(ctx, userID); err != nil {
		s.logger.Error("failed to increment driver total rides",
			"driver_id", userID,
			"ride_id", rideID,
			"error", err,
		)
	}
	s.refresh(ctx, userID)
}

// refreshRating recomputes the driver's rating. Failures are logged only.
func (s *DriverService) refreshRating(ctx context.Context, userID string) {
	if err := s.driverRepo.RefreshRating(ctx, userID); err != nil {
		s.logger.Warn("failed to refresh driver rating", "driver_id", userID, "error", err)
	}
	s.refresh(ctx, userID)
}

// reload returns the stored profile after a write and refreshes the cache with it.
func (s *DriverService) reload(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	profile, err := s.driverRepo.GetByUserID(ctx, userID)
	if err != nil {
		s.invalidate(ctx, userID)
		return nil, err
	}
	s.store(ctx, profile)
	return profile, nil
}

func (s *DriverService) refresh(ctx context.Context, userID string) {
	if s.cacheStore == nil {
		return
	}
	_, _ = s.reload(ctx, userID)
}

func (s *DriverService) store(ctx context.Context, profile *domain.DriverProfile) {
	if s.cacheStore == nil {
		return
	}
	if err := s.cacheStore.SetDriver(ctx, profile); err != nil {
		s.logger.Debug("failed to cache driver", "driver_id", profile.UserID, "error", err)
	}
}

func (s *DriverService) invalidate(ctx context.Context, userID string) {
	if s.cacheStore == nil {
		return
	}
	if err := s.cacheStore.InvalidateDriver(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate driver cache", "driver_id", userID, "error", err)
	}
}
