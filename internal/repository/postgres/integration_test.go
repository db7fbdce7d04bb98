package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
	"ridehail/migrations"
)

// openTestDB connects to TEST_DATABASE_URL and applies the migrations.
func openTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(context.Background()))

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	require.NoError(t, err)
	_, err = provider.Up(context.Background())
	require.NoError(t, err)

	return db, dsn
}

func seedUser(t *testing.T, users *UserRepository, role domain.Role) *domain.User {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &domain.User{
		ID:        uuid.NewString(),
		FullName:  "Test " + string(role),
		Phone:     "+1" + uuid.NewString()[:12],
		Role:      role,
		CreatedAt: now,
	}

	var profile *domain.DriverProfile
	if role == domain.RoleDriver {
		profile = &domain.DriverProfile{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			Status:     domain.DriverStatusOnline,
			IsApproved: true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	require.NoError(t, users.Register(context.Background(), user, profile, nil))
	return user
}

func newPendingRide(passengerID string) *domain.Ride {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Ride{
		ID:          uuid.NewString(),
		PassengerID: passengerID,
		Pickup:      domain.Place{Address: "Central Station", Coords: &domain.Coordinates{Lat: 52.3791, Lng: 4.9003}},
		Dropoff:     domain.Place{Address: "Museumplein"},
		DistanceKm:  3,
		Fare:        19,
		Status:      domain.RideStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestIntegration_RideLifecycle(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	rides := NewRideRepository(db)

	passenger := seedUser(t, users, domain.RolePassenger)
	driver := seedUser(t, users, domain.RoleDriver)

	ride := newPendingRide(passenger.ID)
	require.NoError(t, rides.Create(ctx, ride))

	second := newPendingRide(passenger.ID)
	assert.ErrorIs(t, rides.Create(ctx, second), repository.ErrDuplicate)

	require.NoError(t, rides.Accept(ctx, ride.ID, driver.ID, time.Now().UTC()))
	assert.ErrorIs(t, rides.Accept(ctx, ride.ID, driver.ID, time.Now().UTC()), repository.ErrConditionFailed)

	// Starting requires the assigned driver.
	err := rides.Transition(ctx, repository.RideTransition{
		RideID:   ride.ID,
		From:     []domain.RideStatus{domain.RideStatusAccepted},
		To:       domain.RideStatusInProgress,
		DriverID: uuid.NewString(),
		At:       time.Now().UTC(),
	})
	assert.ErrorIs(t, err, repository.ErrConditionFailed)

	for _, to := range []domain.RideStatus{domain.RideStatusInProgress, domain.RideStatusCompleted} {
		from := domain.RideStatusAccepted
		if to == domain.RideStatusCompleted {
			from = domain.RideStatusInProgress
		}
		require.NoError(t, rides.Transition(ctx, repository.RideTransition{
			RideID:   ride.ID,
			From:     []domain.RideStatus{from},
			To:       to,
			DriverID: driver.ID,
			At:       time.Now().UTC(),
		}))
	}

	stored, err := rides.GetByID(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RideStatusCompleted, stored.Status)
	assert.Equal(t, driver.ID, stored.DriverID)
	assert.False(t, stored.StartedAt.IsZero())
	assert.False(t, stored.CompletedAt.IsZero())
	require.NotNil(t, stored.Pickup.Coords)
	assert.InDelta(t, 52.3791, stored.Pickup.Coords.Lat, 1e-9)
	assert.Nil(t, stored.Dropoff.Coords)

	_, err = rides.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = rides.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, repository.ErrNotFound, "malformed ids name no row")
}

func TestIntegration_PendingOrderAndCounts(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	rides := NewRideRepository(db)

	first := seedUser(t, users, domain.RolePassenger)
	second := seedUser(t, users, domain.RolePassenger)

	older := newPendingRide(first.ID)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	require.NoError(t, rides.Create(ctx, older))
	newer := newPendingRide(second.ID)
	require.NoError(t, rides.Create(ctx, newer))

	filter := repository.RideFilter{PassengerID: first.ID}
	ours := func(rs []*domain.Ride) []string {
		var ids []string
		for _, r := range rs {
			if r.ID == older.ID || r.ID == newer.ID {
				ids = append(ids, r.ID)
			}
		}
		return ids
	}

	asc, err := rides.List(ctx, repository.RideFilter{Statuses: []domain.RideStatus{domain.RideStatusPending}, OldestFirst: true, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, []string{older.ID, newer.ID}, ours(asc))

	desc, err := rides.List(ctx, repository.RideFilter{Statuses: []domain.RideStatus{domain.RideStatusPending}, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, ours(desc))

	counts, err := rides.CountByPassenger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[first.ID])
	assert.Equal(t, 1, counts[second.ID])

	n, err := rides.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntegration_VehiclesAndProfiles(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	vehicles := NewVehicleRepository(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	driver := &domain.User{ID: uuid.NewString(), FullName: "Dana", Role: domain.RoleDriver, CreatedAt: now}
	profile := &domain.DriverProfile{ID: uuid.NewString(), UserID: driver.ID, Status: domain.DriverStatusOffline, CreatedAt: now, UpdatedAt: now}
	vehicle := &domain.Vehicle{ID: uuid.NewString(), DriverID: driver.ID, CarModel: "Prius", CarColor: "Grey", PlateNumber: "AB-1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, users.Register(ctx, driver, profile, vehicle))

	got, err := vehicles.GetByDriverID(ctx, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, vehicle.ID, got.ID)

	edit := *vehicle
	edit.ID = uuid.NewString()
	edit.CarColor = "Blue"
	edit.UpdatedAt = now.Add(time.Second)
	require.NoError(t, vehicles.Upsert(ctx, &edit))

	got, err = vehicles.GetByDriverID(ctx, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, vehicle.ID, got.ID, "upsert keeps the row")
	assert.Equal(t, "Blue", got.CarColor)

	all, err := vehicles.GetAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, driver.ID)

	other := seedUser(t, users, domain.RolePassenger)
	phone := "+9" + uuid.NewString()[:12]
	require.NoError(t, users.UpdateProfile(ctx, driver.ID, "Dana D.", phone))
	assert.ErrorIs(t, users.UpdateProfile(ctx, other.ID, other.FullName, phone), repository.ErrDuplicate)
	assert.ErrorIs(t, users.UpdateProfile(ctx, uuid.NewString(), "Nobody", ""), repository.ErrNotFound)

	byID, err := users.GetByIDs(ctx, []string{driver.ID, other.ID, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, "Dana D.", byID[driver.ID].FullName)
	assert.Equal(t, phone, byID[driver.ID].Phone)
}

func TestIntegration_ConcurrentAccept(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	rides := NewRideRepository(db)

	passenger := seedUser(t, users, domain.RolePassenger)
	ride := newPendingRide(passenger.ID)
	require.NoError(t, rides.Create(ctx, ride))

	const numDrivers = 20
	drivers := make([]*domain.User, numDrivers)
	for i := range drivers {
		drivers[i] = seedUser(t, users, domain.RoleDriver)
	}

	results := make([]error, numDrivers)
	var wg sync.WaitGroup
	for i, d := range drivers {
		wg.Add(1)
		go func(i int, driverID string) {
			defer wg.Done()
			results[i] = rides.Accept(ctx, ride.ID, driverID, time.Now().UTC())
		}(i, d.ID)
	}
	wg.Wait()

	winner := ""
	for i, err := range results {
		if err == nil {
			require.Empty(t, winner, "two drivers accepted the same ride")
			winner = drivers[i].ID
			continue
		}
		assert.True(t, errors.Is(err, repository.ErrConditionFailed), "unexpected error: %v", err)
	}
	require.NotEmpty(t, winner)

	stored, err := rides.GetByID(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, winner, stored.DriverID)
}

func TestIntegration_ChangeFeed(t *testing.T) {
	db, dsn := openTestDB(t)
	users := NewUserRepository(db)
	rides := NewRideRepository(db)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewChangeFeed(dsn, time.Minute, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sub, err := feed.Open(ctx)
	require.NoError(t, err)
	defer sub.Close()

	// The listener connects in the background, so keep inserting until one
	// of our rides comes through.
	created := make(map[string]bool)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			passenger := seedUser(t, users, domain.RolePassenger)
			ride := newPendingRide(passenger.ID)
			require.NoError(t, rides.Create(ctx, ride))
			created[ride.ID] = true
		case event, ok := <-sub.Events():
			require.True(t, ok, "subscription closed")
			if !created[event.RideID] {
				continue
			}
			assert.Equal(t, domain.EventInsert, event.Type)
			assert.Equal(t, domain.RideStatusPending, event.Status)
			assert.Empty(t, event.DriverID)
			return
		case <-ctx.Done():
			t.Fatal("no change notification received")
		}
	}
}
