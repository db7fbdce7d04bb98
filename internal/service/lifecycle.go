package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// LifecycleService is the single authority for ride state transitions.
//
// Every transition is one conditional write whose condition re-asserts the
// guard, so concurrent callers are serialized by the store. When the write
// matches nothing the ride is re-read only to explain the failure. Side
// effects after a successful write (driver availability, counters, cache,
// events) are best-effort and never undo the transition.
type LifecycleService struct {
	rideRepo      repository.RideRepository
	drivers       *DriverService
	estimator     FareEstimator
	cacheStore    redis.RideCacheInterface
	notifications *NotificationService
	logger        *slog.Logger
	now           func() time.Time
}

// NewLifecycleService creates a new LifecycleService. cacheStore may be nil.
func NewLifecycleService(
	rideRepo repository.RideRepository,
	drivers *DriverService,
	estimator FareEstimator,
	cacheStore redis.RideCacheInterface,
	notifications *NotificationService,
	logger *slog.Logger,
) *LifecycleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleService{
		rideRepo:      rideRepo,
		drivers:       drivers,
		estimator:     estimator,
		cacheStore:    cacheStore,
		notifications: notifications,
		logger:        logger,
		now:           defaultNow,
	}
}

// estimateTolerance absorbs rounding of an echoed quote.
const estimateTolerance = 0.005

// defaultNow truncates to the store's timestamp precision.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// CreateRideRequest contains the parameters for requesting a ride.
type CreateRideRequest struct {
	PassengerID string
	Pickup      domain.Place
	Dropoff     domain.Place
	Estimate    *Estimate // Optional: echo of a previous quote, must match the server quote
}

// Estimate quotes a fare without creating a ride.
func (s *LifecycleService) Estimate(ctx context.Context, pickup, dropoff domain.Place) (Estimate, error) {
	if err := validatePlaces(pickup, dropoff); err != nil {
		return Estimate{}, err
	}
	return s.estimator.Estimate(ctx, pickup, dropoff)
}

// CreateRequest inserts a pending ride for a passenger without an outstanding
// ride. The fare is always quoted by the estimator; an echoed estimate that
// differs from the quote is rejected with ErrInvalidEstimate.
func (s *LifecycleService) CreateRequest(ctx context.Context, req CreateRideRequest) (*domain.Ride, error) {
	if req.PassengerID == "" {
		return nil, ErrInvalidPassengerID
	}
	if err := validatePlaces(req.Pickup, req.Dropoff); err != nil {
		return nil, err
	}

	estimate, err := s.estimator.Estimate(ctx, req.Pickup, req.Dropoff)
	if err != nil {
		return nil, fmt.Errorf("estimate fare: %w", err)
	}
	if req.Estimate != nil && !sameEstimate(*req.Estimate, estimate) {
		s.logger.Warn("ride request with stale estimate",
			"passenger_id", req.PassengerID,
			"echoed_fare", req.Estimate.Fare,
			"quoted_fare", estimate.Fare,
		)
		return nil, ErrInvalidEstimate
	}

	now := s.now()
	ride := &domain.Ride{
		ID:          uuid.New().String(),
		PassengerID: req.PassengerID,
		Pickup:      trimPlace(req.Pickup),
		Dropoff:     trimPlace(req.Dropoff),
		DistanceKm:  estimate.DistanceKm,
		Fare:        estimate.Fare,
		Status:      domain.RideStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create ride: %w", err)
	}

	s.logger.Info("ride requested", "ride_id", ride.ID, "passenger_id", ride.PassengerID, "fare", ride.Fare)
	s.notifications.RideCreated(ctx, ride)

	return ride, nil
}

// AcceptRide assigns driverID to a pending ride. Exactly one of several
// concurrent callers wins; the others get ErrAlreadyTaken. A driver accepting
// a ride they already hold in accepted gets the ride back unchanged.
func (s *LifecycleService) AcceptRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if !validRideID(rideID) {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	// Approval is read from the store, never from cache, so a revocation
	// takes effect on the next accept.
	profile, err := s.drivers.currentProfile(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("load driver profile: %w", err)
	}
	if !profile.IsApproved {
		return nil, ErrDriverNotApproved
	}

	err = s.rideRepo.Accept(ctx, rideID, driverID, s.now())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrDriverHasActiveRide
	case errors.Is(err, repository.ErrConditionFailed):
		return s.explainAcceptFailure(ctx, rideID, driverID)
	default:
		return nil, fmt.Errorf("accept ride: %w", err)
	}

	ride, err := s.afterTransition(ctx, rideID, domain.RideStatusPending)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	s.drivers.markAvailability(ctx, driverID, domain.DriverStatusBusy)

	return ride, nil
}

// StartRide moves an accepted ride to in_progress. Only the assigned driver may start it.
func (s *LifecycleService) StartRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if !validRideID(rideID) {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	err := s.rideRepo.Transition(ctx, repository.RideTransition{
		RideID:   rideID,
		From:     []domain.RideStatus{domain.RideStatusAccepted},
		To:       domain.RideStatusInProgress,
		DriverID: driverID,
		At:       s.now(),
	})
	if err != nil {
		return nil, s.explainTransitionFailure(ctx, err, rideID, domain.RideStatusInProgress, domain.Actor{ID: driverID, Role: domain.RoleDriver})
	}

	ride, err := s.afterTransition(ctx, rideID, domain.RideStatusAccepted)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ride started", "ride_id", rideID, "driver_id", driverID)
	return ride, nil
}

// CompleteRide moves an in_progress ride to completed and then counts the
// ride for its driver. Only the assigned driver may complete it.
func (s *LifecycleService) CompleteRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if !validRideID(rideID) {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	err := s.rideRepo.Transition(ctx, repository.RideTransition{
		RideID:   rideID,
		From:     []domain.RideStatus{domain.RideStatusInProgress},
		To:       domain.RideStatusCompleted,
		DriverID: driverID,
		At:       s.now(),
	})
	if err != nil {
		return nil, s.explainTransitionFailure(ctx, err, rideID, domain.RideStatusCompleted, domain.Actor{ID: driverID, Role: domain.RoleDriver})
	}

	ride, err := s.afterTransition(ctx, rideID, domain.RideStatusInProgress)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ride completed", "ride_id", rideID, "driver_id", driverID, "fare", ride.Fare)
	s.drivers.recordCompletedRide(ctx, driverID, rideID)
	s.drivers.markAvailability(ctx, driverID, domain.DriverStatusOnline)

	return ride, nil
}

// CancelRide cancels a pending or accepted ride on behalf of its passenger or an admin.
func (s *LifecycleService) CancelRide(ctx context.Context, rideID string, actor domain.Actor) (*domain.Ride, error) {
	if !validRideID(rideID) {
		return nil, ErrInvalidRideID
	}
	if actor.ID == "" {
		return nil, ErrInvalidPassengerID
	}

	t := repository.RideTransition{
		RideID: rideID,
		From:   domain.CancellableStatuses,
		To:     domain.RideStatusCancelled,
		At:     s.now(),
	}
	if !actor.IsAdmin() {
		t.PassengerID = actor.ID
	}

	if err := s.rideRepo.Transition(ctx, t); err != nil {
		return nil, s.explainTransitionFailure(ctx, err, rideID, domain.RideStatusCancelled, actor)
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("reload ride: %w", err)
	}

	// A driver is only ever assigned on acceptance.
	previous := domain.RideStatusPending
	if ride.HasDriver() {
		previous = domain.RideStatusAccepted
	}

	s.invalidate(ctx, rideID)
	s.notifications.RideChanged(ctx, ride, previous)
	s.logger.Info("ride cancelled", "ride_id", rideID, "actor_id", actor.ID, "actor_role", actor.Role, "previous_status", previous)

	if ride.HasDriver() {
		s.drivers.markAvailability(ctx, ride.DriverID, domain.DriverStatusOnline)
	}

	return ride, nil
}

// GetRide returns a ride visible to actor: its parties, admins, and drivers
// looking at a ride that is still pending.
func (s *LifecycleService) GetRide(ctx context.Context, rideID string, actor domain.Actor) (*domain.Ride, error) {
	if !validRideID(rideID) {
		return nil, ErrInvalidRideID
	}

	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.IsAdmin(), ride.InvolvesUser(actor.ID):
	case actor.Role == domain.RoleDriver && ride.Status == domain.RideStatusPending:
	default:
		return nil, ErrForbidden
	}
	return ride, nil
}

// ListRides returns the rides visible to actor, optionally narrowed by status.
// Admins see every ride, everyone else their own.
func (s *LifecycleService) ListRides(ctx context.Context, actor domain.Actor, statuses []domain.RideStatus, limit int) ([]*domain.Ride, error) {
	filter := repository.RideFilter{Statuses: statuses, Limit: limit}
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleDriver:
		filter.DriverID = actor.ID
	default:
		filter.PassengerID = actor.ID
	}
	return s.rideRepo.List(ctx, filter)
}

// PendingRides returns rides waiting for a driver, oldest first.
func (s *LifecycleService) PendingRides(ctx context.Context, limit int) ([]*domain.Ride, error) {
	return s.rideRepo.List(ctx, repository.RideFilter{
		Statuses:    []domain.RideStatus{domain.RideStatusPending},
		Limit:       limit,
		OldestFirst: true,
	})
}

// ActiveRide returns the actor's current ride, or nil when there is none.
func (s *LifecycleService) ActiveRide(ctx context.Context, actor domain.Actor) (*domain.Ride, error) {
	filter := repository.RideFilter{Limit: 1}
	switch actor.Role {
	case domain.RoleDriver:
		filter.DriverID = actor.ID
		filter.Statuses = domain.DriverActiveStatuses
	case domain.RolePassenger:
		filter.PassengerID = actor.ID
		filter.Statuses = domain.OutstandingStatuses
	default:
		return nil, ErrForbidden
	}

	rides, err := s.rideRepo.List(ctx, filter)
	if err != nil || len(rides) == 0 {
		return nil, err
	}
	return rides[0], nil
}

// explainAcceptFailure classifies a conditional accept that matched nothing.
func (s *LifecycleService) explainAcceptFailure(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	switch {
	case ride.DriverID == driverID && ride.Status == domain.RideStatusAccepted:
		return ride, nil
	case ride.DriverID == driverID:
		return nil, &TransitionError{RideID: rideID, From: ride.Status, To: domain.RideStatusAccepted, Reason: "ride already past acceptance"}
	case ride.Status == domain.RideStatusCancelled:
		return nil, &TransitionError{RideID: rideID, From: ride.Status, To: domain.RideStatusAccepted, Reason: "ride was cancelled"}
	default:
		s.logger.Info("ride accept lost race", "ride_id", rideID, "driver_id", driverID, "winner_id", ride.DriverID)
		return nil, ErrAlreadyTaken
	}
}

// explainTransitionFailure classifies a failed conditional transition.
func (s *LifecycleService) explainTransitionFailure(ctx context.Context, err error, rideID string, to domain.RideStatus, actor domain.Actor) error {
	if !errors.Is(err, repository.ErrConditionFailed) {
		return fmt.Errorf("transition ride to %s: %w", to, err)
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}

	terr := &TransitionError{RideID: rideID, From: ride.Status, To: to}
	switch {
	case !ride.Status.CanTransitionTo(to):
		terr.Reason = fmt.Sprintf("ride is %s", ride.Status)
	case to == domain.RideStatusCancelled:
		terr.Reason = "only the passenger or an admin may cancel"
	default:
		terr.Reason = "caller is not the assigned driver"
	}

	s.logger.Warn("ride transition rejected", "ride_id", rideID, "to", to, "actor_id", actor.ID, "reason", terr.Reason)
	return terr
}

// afterTransition reloads the ride, drops it from cache and announces the change.
func (s *LifecycleService) afterTransition(ctx context.Context, rideID string, previous domain.RideStatus) (*domain.Ride, error) {
	s.invalidate(ctx, rideID)

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("reload ride: %w", err)
	}

	s.notifications.RideChanged(ctx, ride, previous)
	return ride, nil
}

// loadRide reads through the cache. Only terminal rides are written back:
// they never change again, so a fill racing a transition cannot store a
// state that was already superseded.
func (s *LifecycleService) loadRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if s.cacheStore != nil {
		if cached, err := s.cacheStore.GetRide(ctx, rideID); err == nil && cached != nil {
			return cached, nil
		}
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status.IsTerminal() {
		s.cache(ctx, ride)
	}
	return ride, nil
}

func (s *LifecycleService) cache(ctx context.Context, ride *domain.Ride) {
	if s.cacheStore == nil {
		return
	}
	if err := s.cacheStore.SetRide(ctx, ride); err != nil {
		s.logger.Debug("failed to cache ride", "ride_id", ride.ID, "error", err)
	}
}

func (s *LifecycleService) invalidate(ctx context.Context, rideID string) {
	if s.cacheStore == nil {
		return
	}
	if err := s.cacheStore.InvalidateRide(ctx, rideID); err != nil {
		s.logger.Warn("failed to invalidate ride cache", "ride_id", rideID, "error", err)
	}
}

// validRideID reports whether id can name a ride. Ride IDs are UUIDs.
func validRideID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func sameEstimate(a, b Estimate) bool {
	return math.Abs(a.Fare-b.Fare) < estimateTolerance && math.Abs(a.DistanceKm-b.DistanceKm) < estimateTolerance
}

func validatePlaces(pickup, dropoff domain.Place) error {
	if strings.TrimSpace(pickup.Address) == "" || !validCoords(pickup.Coords) {
		return ErrInvalidPickup
	}
	if strings.TrimSpace(dropoff.Address) == "" || !validCoords(dropoff.Coords) {
		return ErrInvalidDropoff
	}
	return nil
}

func validCoords(c *domain.Coordinates) bool {
	return c == nil || (c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180)
}

func trimPlace(p domain.Place) domain.Place {
	p.Address = strings.TrimSpace(p.Address)
	return p
}
