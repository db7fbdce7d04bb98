package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
)

// CacheStore handles entity caching in Redis. A miss is reported as a nil
// entity with a nil error.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	DriverCacheTTL = 30 * time.Second // Availability changes often
	RideCacheTTL   = 10 * time.Minute // Only terminal rides are cached

	// driverVersionTTL outlives the entry so a slow stale fill still meets
	// the newer version after the entry expired or was invalidated.
	driverVersionTTL = 10 * DriverCacheTTL
)

// Key prefixes
const (
	driverCachePrefix   = "cache:driver:"
	driverVersionPrefix = "cache:driver-version:"
	rideCachePrefix     = "cache:ride:"
)

// setIfNewer stores ARGV[2] under KEYS[1] unless KEYS[2] already holds a
// version greater than ARGV[1]. Returns 1 when stored.
var setIfNewer = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[4])
return 1
`)

// cachedRide is the JSON form of a domain.Ride.
type cachedRide struct {
	ID          string              `json:"id"`
	PassengerID string              `json:"passenger_id"`
	DriverID    string              `json:"driver_id,omitempty"`
	Pickup      string              `json:"pickup"`
	PickupAt    *domain.Coordinates `json:"pickup_coords,omitempty"`
	Dropoff     string              `json:"dropoff"`
	DropoffAt   *domain.Coordinates `json:"dropoff_coords,omitempty"`
	DistanceKm  float64             `json:"distance_km,omitempty"`
	Fare        float64             `json:"fare"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
}

// cachedDriver is the JSON form of a domain.DriverProfile.
type cachedDriver struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	LicenseNumber string    `json:"license_number,omitempty"`
	Status        string    `json:"status"`
	IsApproved    bool      `json:"is_approved"`
	TotalRides    int       `json:"total_rides"`
	Rating        float64   `json:"rating"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetRide retrieves a ride from cache.
func (s *CacheStore) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	var c cachedRide
	if ok, err := s.get(ctx, rideCachePrefix+rideID, &c); !ok || err != nil {
		return nil, err
	}
	return &domain.Ride{
		ID:          c.ID,
		PassengerID: c.PassengerID,
		DriverID:    c.DriverID,
		Pickup:      domain.Place{Address: c.Pickup, Coords: c.PickupAt},
		Dropoff:     domain.Place{Address: c.Dropoff, Coords: c.DropoffAt},
		DistanceKm:  c.DistanceKm,
		Fare:        c.Fare,
		Status:      domain.RideStatus(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
	}, nil
}

// SetRide stores a ride in cache.
func (s *CacheStore) SetRide(ctx context.Context, ride *domain.Ride) error {
	return s.set(ctx, rideCachePrefix+ride.ID, cachedRide{
		ID:          ride.ID,
		PassengerID: ride.PassengerID,
		DriverID:    ride.DriverID,
		Pickup:      ride.Pickup.Address,
		PickupAt:    ride.Pickup.Coords,
		Dropoff:     ride.Dropoff.Address,
		DropoffAt:   ride.Dropoff.Coords,
		DistanceKm:  ride.DistanceKm,
		Fare:        ride.Fare,
		Status:      string(ride.Status),
		CreatedAt:   ride.CreatedAt,
		UpdatedAt:   ride.UpdatedAt,
		StartedAt:   ride.StartedAt,
		CompletedAt: ride.CompletedAt,
	}, RideCacheTTL)
}

// InvalidateRide removes a ride from cache.
func (s *CacheStore) InvalidateRide(ctx context.Context, rideID string) error {
	return s.client.Del(ctx, rideCachePrefix+rideID).Err()
}

// GetDriver retrieves a driver profile from cache.
func (s *CacheStore) GetDriver(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	var c cachedDriver
	if ok, err := s.get(ctx, driverCachePrefix+userID, &c); !ok || err != nil {
		return nil, err
	}
	return &domain.DriverProfile{
		ID:            c.ID,
		UserID:        c.UserID,
		LicenseNumber: c.LicenseNumber,
		Status:        domain.DriverStatus(c.Status),
		IsApproved:    c.IsApproved,
		TotalRides:    c.TotalRides,
		Rating:        c.Rating,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}, nil
}

// SetDriver stores a driver profile in cache unless a profile with a newer
// UpdatedAt was stored before. A rejected write is not an error.
func (s *CacheStore) SetDriver(ctx context.Context, profile *domain.DriverProfile) error {
	data, err := json.Marshal(cachedDriver{
		ID:            profile.ID,
		UserID:        profile.UserID,
		LicenseNumber: profile.LicenseNumber,
		Status:        string(profile.Status),
		IsApproved:    profile.IsApproved,
		TotalRides:    profile.TotalRides,
		Rating:        profile.Rating,
		CreatedAt:     profile.CreatedAt,
		UpdatedAt:     profile.UpdatedAt,
	})
	if err != nil {
		return err
	}

	keys := []string{driverCachePrefix + profile.UserID, driverVersionPrefix + profile.UserID}
	return setIfNewer.Run(ctx, s.client, keys,
		profile.UpdatedAt.UnixMicro(),
		data,
		DriverCacheTTL.Milliseconds(),
		driverVersionTTL.Milliseconds(),
	).Err()
}

// InvalidateDriver removes a driver profile from cache. The version marker
// stays so that older profiles cannot be stored again.
func (s *CacheStore) InvalidateDriver(ctx context.Context, userID string) error {
	return s.client.Del(ctx, driverCachePrefix+userID).Err()
}

func (s *CacheStore) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CacheStore) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}
