package redis

import (
	"context"

	"ridehail/internal/domain"
)

// RideCacheInterface defines the cache operations used by the ride lifecycle.
type RideCacheInterface interface {
	GetRide(ctx context.Context, rideID string) (*domain.Ride, error)
	SetRide(ctx context.Context, ride *domain.Ride) error
	InvalidateRide(ctx context.Context, rideID string) error
}

// DriverCacheInterface defines the cache operations used for driver profiles.
type DriverCacheInterface interface {
	GetDriver(ctx context.Context, userID string) (*domain.DriverProfile, error)
	SetDriver(ctx context.Context, profile *domain.DriverProfile) error
	InvalidateDriver(ctx context.Context, userID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ RideCacheInterface   = (*CacheStore)(nil)
	_ DriverCacheInterface = (*CacheStore)(nil)
)
