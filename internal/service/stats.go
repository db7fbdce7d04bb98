package service

import (
	"context"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// StatsService builds the dashboard summaries.
type StatsService struct {
	rideRepo   repository.RideRepository
	driverRepo repository.DriverRepository
	userRepo   repository.UserRepository
	now        func() time.Time
}

// NewStatsService creates a new StatsService.
func NewStatsService(rideRepo repository.RideRepository, driverRepo repository.DriverRepository, userRepo repository.UserRepository) *StatsService {
	return &StatsService{
		rideRepo:   rideRepo,
		driverRepo: driverRepo,
		userRepo:   userRepo,
		now:        time.Now,
	}
}

var completedOnly = []domain.RideStatus{domain.RideStatusCompleted}

// DriverStats summarizes a driver's day and totals.
func (s *StatsService) DriverStats(ctx context.Context, driverID string) (*domain.DriverStats, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	profile, err := s.driverRepo.GetByUserID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	today := repository.RideFilter{
		DriverID:       driverID,
		Statuses:       completedOnly,
		CompletedSince: s.startOfDay(),
	}
	todayRides, err := s.rideRepo.Count(ctx, today)
	if err != nil {
		return nil, err
	}
	todayEarnings, err := s.rideRepo.SumFare(ctx, today)
	if err != nil {
		return nil, err
	}

	return &domain.DriverStats{
		TodayRides:    todayRides,
		TodayEarnings: todayEarnings,
		TotalRides:    profile.TotalRides,
		Rating:        profile.EffectiveRating(),
	}, nil
}

// PassengerSummary summarizes a passenger's rides.
func (s *StatsService) PassengerSummary(ctx context.Context, passengerID string) (*domain.PassengerSummary, error) {
	if passengerID == "" {
		return nil, ErrInvalidPassengerID
	}

	total, err := s.rideRepo.Count(ctx, repository.RideFilter{PassengerID: passengerID})
	if err != nil {
		return nil, err
	}

	summary := &domain.PassengerSummary{TotalRides: total}

	active, err := s.rideRepo.List(ctx, repository.RideFilter{
		PassengerID: passengerID,
		Statuses:    domain.OutstandingStatuses,
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		summary.ActiveRide = active[0]
	}

	last, err := s.rideRepo.List(ctx, repository.RideFilter{PassengerID: passengerID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(last) > 0 {
		summary.LastRide = last[0]
	}

	return summary, nil
}

// Overview summarizes the whole system for admins.
func (s *StatsService) Overview(ctx context.Context) (*domain.Overview, error) {
	var (
		overview domain.Overview
		err      error
	)

	if overview.Drivers, err = s.userRepo.CountByRole(ctx, domain.RoleDriver); err != nil {
		return nil, err
	}
	if overview.Passengers, err = s.userRepo.CountByRole(ctx, domain.RolePassenger); err != nil {
		return nil, err
	}
	if overview.Rides, err = s.rideRepo.Count(ctx, repository.RideFilter{}); err != nil {
		return nil, err
	}
	if overview.CompletedRides, err = s.rideRepo.Count(ctx, repository.RideFilter{Statuses: completedOnly}); err != nil {
		return nil, err
	}
	if overview.PendingApprovals, err = s.driverRepo.CountUnapproved(ctx); err != nil {
		return nil, err
	}
	overview.TodayEarnings, err = s.rideRepo.SumFare(ctx, repository.RideFilter{
		Statuses:       completedOnly,
		CompletedSince: s.startOfDay(),
	})
	if err != nil {
		return nil, err
	}

	return &overview, nil
}

// startOfDay returns local midnight of the current day.
func (s *StatsService) startOfDay() time.Time {
	now := s.now()
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// Passengers lists passengers with the number of rides each requested,
// newest first.
func (s *StatsService) Passengers(ctx context.Context) ([]*domain.PassengerListing, error) {
	users, err := s.userRepo.GetAll(ctx, domain.RolePassenger)
	if err != nil {
		return nil, err
	}
	counts, err := s.rideRepo.CountByPassenger(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.PassengerListing, len(users))
	for i, u := range users {
		out[i] = &domain.PassengerListing{User: *u, RideCount: counts[u.ID]}
	}
	return out, nil
}
