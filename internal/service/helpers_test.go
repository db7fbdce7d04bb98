package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/relay"
	"ridehail/internal/repository"
	"ridehail/internal/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedEstimator always quotes the same estimate.
type fixedEstimator struct {
	estimate Estimate
}

func (e fixedEstimator) Estimate(context.Context, domain.Place, domain.Place) (Estimate, error) {
	return e.estimate, nil
}

// flakyDriverRepository wraps a driver repository with call counters and
// error injection.
type flakyDriverRepository struct {
	repository.DriverRepository

	IncrementCallCount int32
	IncrementError     error
	UpdateStatusError  error
}

func (r *flakyDriverRepository) IncrementTotalRides(ctx context.Context, userID string) error {
	atomic.AddInt32(&r.IncrementCallCount, 1)
	if r.IncrementError != nil {
		return r.IncrementError
	}
	return r.DriverRepository.IncrementTotalRides(ctx, userID)
}

func (r *flakyDriverRepository) UpdateStatus(ctx context.Context, userID string, status domain.DriverStatus) error {
	if r.UpdateStatusError != nil {
		return r.UpdateStatusError
	}
	return r.DriverRepository.UpdateStatus(ctx, userID, status)
}

// memoryRideCache is a map-backed redis.RideCacheInterface.
type memoryRideCache struct {
	mu    sync.Mutex
	rides map[string]*domain.Ride
	sets  int
}

func newMemoryRideCache() *memoryRideCache {
	return &memoryRideCache{rides: make(map[string]*domain.Ride)}
}

func (c *memoryRideCache) GetRide(_ context.Context, rideID string) (*domain.Ride, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ride, ok := c.rides[rideID]; ok {
		r := *ride
		return &r, nil
	}
	return nil, nil
}

func (c *memoryRideCache) SetRide(_ context.Context, ride *domain.Ride) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := *ride
	c.rides[ride.ID] = &r
	c.sets++
	return nil
}

func (c *memoryRideCache) InvalidateRide(_ context.Context, rideID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rides, rideID)
	return nil
}

func (c *memoryRideCache) cached(rideID string) *domain.Ride {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rides[rideID]
}

// memoryDriverCache is a map-backed redis.DriverCacheInterface that, like the
// Redis store, keeps a version per driver and ignores older profiles.
type memoryDriverCache struct {
	mu       sync.Mutex
	profiles map[string]*domain.DriverProfile
	versions map[string]time.Time
}

func newMemoryDriverCache() *memoryDriverCache {
	return &memoryDriverCache{
		profiles: make(map[string]*domain.DriverProfile),
		versions: make(map[string]time.Time),
	}
}

func (c *memoryDriverCache) GetDriver(_ context.Context, userID string) (*domain.DriverProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if profile, ok := c.profiles[userID]; ok {
		p := *profile
		return &p, nil
	}
	return nil, nil
}

func (c *memoryDriverCache) SetDriver(_ context.Context, profile *domain.DriverProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if profile.UpdatedAt.Before(c.versions[profile.UserID]) {
		return nil
	}
	p := *profile
	c.profiles[profile.UserID] = &p
	c.versions[profile.UserID] = profile.UpdatedAt
	return nil
}

func (c *memoryDriverCache) InvalidateDriver(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, userID)
	return nil
}

// hookedRideRepository runs afterGet once, right after the next GetByID read
// and before its result is returned.
type hookedRideRepository struct {
	repository.RideRepository

	mu       sync.Mutex
	afterGet func()
}

func (r *hookedRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	ride, err := r.RideRepository.GetByID(ctx, id)

	r.mu.Lock()
	hook := r.afterGet
	r.afterGet = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return ride, err
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RideEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.RideEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []domain.RideEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.RideEvent(nil), p.events...)
}

var _ relay.Publisher = (*recordingPublisher)(nil)

// fixture wires the services over an in-memory store.
type fixture struct {
	store       *memory.Store
	rides       *hookedRideRepository
	drivers     *flakyDriverRepository
	publisher   *recordingPublisher
	rideCache   *memoryRideCache
	driverCache *memoryDriverCache
	driverSvc   *DriverService
	lifecycle   *LifecycleService
	ratings     *RatingService
	stats       *StatsService
	users       *UserService
}

func newFixture(t *testing.T) *fixture {
	return buildFixture(t, false)
}

// newCachedFixture is newFixture with ride and driver caches in front of the store.
func newCachedFixture(t *testing.T) *fixture {
	return buildFixture(t, true)
}

func buildFixture(t *testing.T, cached bool) *fixture {
	t.Helper()

	store := memory.NewStore()
	f := &fixture{
		store:     store,
		rides:     &hookedRideRepository{RideRepository: store.Rides()},
		drivers:   &flakyDriverRepository{DriverRepository: store.Drivers()},
		publisher: &recordingPublisher{},
	}
	logger := discardLogger()

	var (
		rideCache   redis.RideCacheInterface
		driverCache redis.DriverCacheInterface
	)
	if cached {
		f.rideCache, f.driverCache = newMemoryRideCache(), newMemoryDriverCache()
		rideCache, driverCache = f.rideCache, f.driverCache
	}

	f.driverSvc = NewDriverService(f.drivers, store.Vehicles(), store.Users(), driverCache, logger)
	f.lifecycle = NewLifecycleService(
		f.rides,
		f.driverSvc,
		fixedEstimator{estimate: Estimate{Fare: 25, DistanceKm: 5}},
		rideCache,
		NewNotificationService(f.publisher, logger),
		logger,
	)
	f.ratings = NewRatingService(f.rides, store.Ratings(), f.driverSvc)
	f.stats = NewStatsService(f.rides, f.drivers, store.Users())
	f.users = NewUserService(store.Users(), stubIssuer{}, true, logger)
	return f
}

// addDriver registers an approved, online driver.
func (f *fixture) addDriver(t *testing.T, id string) {
	t.Helper()
	f.addUser(t, id, domain.RoleDriver, &domain.DriverProfile{
		ID:         "profile-" + id,
		UserID:     id,
		Status:     domain.DriverStatusOnline,
		IsApproved: true,
	})
}

func (f *fixture) addUser(t *testing.T, id string, role domain.Role, profile *domain.DriverProfile) {
	t.Helper()
	require.NoError(t, f.store.Users().Register(context.Background(), &domain.User{
		ID:       id,
		FullName: "User " + id,
		Role:     role,
	}, profile, nil))
}

func (f *fixture) requestRide(t *testing.T, passengerID string) *domain.Ride {
	t.Helper()
	ride, err := f.lifecycle.CreateRequest(context.Background(), CreateRideRequest{
		PassengerID: passengerID,
		Pickup:      domain.Place{Address: "X"},
		Dropoff:     domain.Place{Address: "Y"},
	})
	require.NoError(t, err)
	return ride
}

func (f *fixture) driverProfile(t *testing.T, id string) *domain.DriverProfile {
	t.Helper()
	profile, err := f.store.Drivers().GetByUserID(context.Background(), id)
	require.NoError(t, err)
	return profile
}
