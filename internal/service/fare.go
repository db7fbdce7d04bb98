package service

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"ridehail/internal/domain"
)

const earthRadiusKm = 6371.0

// Estimate is a fare quote for a pickup and dropoff pair.
type Estimate struct {
	Fare       float64
	DistanceKm float64
}

// FareEstimator quotes a fare before a ride is requested.
type FareEstimator interface {
	Estimate(ctx context.Context, pickup, dropoff domain.Place) (Estimate, error)
}

// FlatRateConfig holds the parameters of FlatRateEstimator.
type FlatRateConfig struct {
	BaseFare      float64
	PerKmRate     float64
	MinDistanceKm float64
	MaxDistanceKm float64
}

// DefaultFlatRateConfig returns base 10, 3 per km and a 3 to 12 km range.
func DefaultFlatRateConfig() FlatRateConfig {
	return FlatRateConfig{
		BaseFare:      10,
		PerKmRate:     3,
		MinDistanceKm: 3,
		MaxDistanceKm: 12,
	}
}

// FlatRateEstimator charges a base fare plus a per-km rate. The distance is
// the great-circle distance when both places carry coordinates; otherwise it
// is derived from a hash of the two addresses, so the same pair always quotes
// the same fare. The distance is clamped to the configured range.
type FlatRateEstimator struct {
	cfg FlatRateConfig
}

// NewFlatRateEstimator creates a new FlatRateEstimator.
func NewFlatRateEstimator(cfg FlatRateConfig) *FlatRateEstimator {
	if cfg.MinDistanceKm <= 0 || cfg.MaxDistanceKm < cfg.MinDistanceKm {
		defaults := DefaultFlatRateConfig()
		cfg.MinDistanceKm, cfg.MaxDistanceKm = defaults.MinDistanceKm, defaults.MaxDistanceKm
	}
	return &FlatRateEstimator{cfg: cfg}
}

// Estimate implements FareEstimator.
func (e *FlatRateEstimator) Estimate(_ context.Context, pickup, dropoff domain.Place) (Estimate, error) {
	if strings.TrimSpace(pickup.Address) == "" {
		return Estimate{}, ErrInvalidPickup
	}
	if strings.TrimSpace(dropoff.Address) == "" {
		return Estimate{}, ErrInvalidDropoff
	}

	var distance float64
	if pickup.Coords != nil && dropoff.Coords != nil {
		distance = haversineKm(*pickup.Coords, *dropoff.Coords)
	} else {
		distance = e.hashedDistance(pickup.Address, dropoff.Address)
	}
	distance = math.Min(math.Max(distance, e.cfg.MinDistanceKm), e.cfg.MaxDistanceKm)
	distance = roundCents(distance)

	return Estimate{
		Fare:       roundCents(e.cfg.BaseFare + e.cfg.PerKmRate*distance),
		DistanceKm: distance,
	}, nil
}

// hashedDistance maps the normalized address pair onto the whole kilometres
// of the configured range.
func (e *FlatRateEstimator) hashedDistance(pickup, dropoff string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalizeAddress(pickup)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(normalizeAddress(dropoff)))

	lo := math.Ceil(e.cfg.MinDistanceKm)
	hi := math.Floor(e.cfg.MaxDistanceKm)
	if hi < lo {
		return e.cfg.MinDistanceKm
	}
	span := uint32(hi-lo) + 1
	return lo + float64(h.Sum32()%span)
}

func normalizeAddress(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// haversineKm returns the great-circle distance between a and b.
func haversineKm(a, b domain.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Ensure FlatRateEstimator implements FareEstimator.
var _ FareEstimator = (*FlatRateEstimator)(nil)
