package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// TokenIssuer signs bearer tokens for an actor.
type TokenIssuer interface {
	Issue(actor domain.Actor) (string, error)
}

// UserService handles user registration and lookup.
type UserService struct {
	userRepo         repository.UserRepository
	tokens           TokenIssuer
	allowAdminSignup bool
	logger           *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, tokens TokenIssuer, allowAdminSignup bool, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		userRepo:         userRepo,
		tokens:           tokens,
		allowAdminSignup: allowAdminSignup,
		logger:           logger,
	}
}

// RegisterRequest contains the parameters for registering a user.
type RegisterRequest struct {
	FullName      string
	Phone         string
	Role          domain.Role
	LicenseNumber string          // Drivers only
	Vehicle       *VehicleRequest // Drivers only, optional
}

// Registration is the result of a successful registration.
type Registration struct {
	User    *domain.User
	Driver  *domain.DriverProfile // Set for drivers
	Vehicle *domain.Vehicle       // Set for drivers who registered a vehicle
	Token   string
}

// Register creates a user and, for drivers, an unapproved offline profile in
// the same write. The returned token identifies the new user.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.FullName == "" {
		return nil, ErrInvalidFullName
	}
	if !req.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if req.Role == domain.RoleAdmin && !s.allowAdminSignup {
		return nil, ErrAdminSignupDisabled
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &domain.User{
		ID:        uuid.New().String(),
		FullName:  req.FullName,
		Phone:     req.Phone,
		Role:      req.Role,
		CreatedAt: now,
	}

	var profile *domain.DriverProfile
	var vehicle *domain.Vehicle
	if req.Role == domain.RoleDriver {
		profile = &domain.DriverProfile{
			ID:            uuid.New().String(),
			UserID:        user.ID,
			LicenseNumber: strings.TrimSpace(req.LicenseNumber),
			Status:        domain.DriverStatusOffline,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if req.Vehicle != nil {
			v, err := req.Vehicle.trimmed()
			if err != nil {
				return nil, err
			}
			vehicle = newVehicle(user.ID, v, now)
		}
	}

	if err := s.userRepo.Register(ctx, user, profile, vehicle); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("register user: %w", err)
	}

	token, err := s.tokens.Issue(domain.Actor{ID: user.ID, Role: user.Role})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return &Registration{User: user, Driver: profile, Vehicle: vehicle, Token: token}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, ErrInvalidPassengerID
	}
	return s.userRepo.GetByID(ctx, id)
}

// UpdateProfileRequest contains the editable fields of a user.
type UpdateProfileRequest struct {
	FullName string
	Phone    string
}

// UpdateProfile edits the caller's name and phone.
func (s *UserService) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (*domain.User, error) {
	if id == "" {
		return nil, ErrInvalidPassengerID
	}
	fullName := strings.TrimSpace(req.FullName)
	phone := strings.TrimSpace(req.Phone)
	if fullName == "" {
		return nil, ErrInvalidFullName
	}

	if err := s.userRepo.UpdateProfile(ctx, id, fullName, phone); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPhoneTaken
		}
		return nil, err
	}

	s.logger.Info("user profile updated", "user_id", id)
	return s.userRepo.GetByID(ctx, id)
}

// RideParties is the contact data attached to one ride for a viewer.
type RideParties struct {
	Passenger *domain.Party
	Driver    *domain.Party
}

// Parties returns, per ride ID, the party details viewer may see. Drivers see
// the passenger's name and phone on pending rides and on rides they hold.
// Admins see both names. Passengers see nothing.
func (s *UserService) Parties(ctx context.Context, viewer domain.Actor, rides []*domain.Ride) (map[string]RideParties, error) {
	out := make(map[string]RideParties, len(rides))
	if viewer.Role != domain.RoleDriver && !viewer.IsAdmin() {
		return out, nil
	}

	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, ride := range rides {
		add(ride.PassengerID)
		if viewer.IsAdmin() {
			add(ride.DriverID)
		}
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load ride parties: %w", err)
	}

	for _, ride := range rides {
		var parties RideParties
		switch {
		case viewer.IsAdmin():
			if u, ok := users[ride.PassengerID]; ok {
				parties.Passenger = &domain.Party{FullName: u.FullName}
			}
			if u, ok := users[ride.DriverID]; ok {
				parties.Driver = &domain.Party{FullName: u.FullName}
			}
		case ride.Status == domain.RideStatusPending || ride.DriverID == viewer.ID:
			if u, ok := users[ride.PassengerID]; ok {
				parties.Passenger = &domain.Party{FullName: u.FullName, Phone: u.Phone}
			}
		}
		out[ride.ID] = parties
	}
	return out, nil
}

// List returns users, optionally only those with role.
func (s *UserService) List(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	if role != "" && !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.userRepo.GetAll(ctx, role)
}
