package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

func newPendingRide(id, passengerID string, createdAt time.Time) *domain.Ride {
	return &domain.Ride{
		ID:          id,
		PassengerID: passengerID,
		Pickup:      domain.Place{Address: "A"},
		Dropoff:     domain.Place{Address: "B"},
		Fare:        25,
		Status:      domain.RideStatusPending,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestRideRepository_OneOutstandingRidePerPassenger(t *testing.T) {
	ctx := context.Background()
	rides := NewStore().Rides()
	now := time.Now()

	require.NoError(t, rides.Create(ctx, newPendingRide("r1", "p1", now)))
	assert.ErrorIs(t, rides.Create(ctx, newPendingRide("r2", "p1", now)), repository.ErrDuplicate)

	require.NoError(t, rides.Transition(ctx, repository.RideTransition{
		RideID: "r1",
		From:   domain.CancellableStatuses,
		To:     domain.RideStatusCancelled,
		At:     now,
	}))
	assert.NoError(t, rides.Create(ctx, newPendingRide("r2", "p1", now)))
}

func TestRideRepository_AcceptIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	rides := NewStore().Rides()
	require.NoError(t, rides.Create(ctx, newPendingRide("r1", "p1", time.Now())))

	const drivers = 16
	var wg sync.WaitGroup
	results := make([]error, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = rides.Accept(ctx, "r1", fmt.Sprintf("d%d", i), time.Now())
		}(i)
	}
	wg.Wait()

	var winners int
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, repository.ErrConditionFailed)
		}
	}
	assert.Equal(t, 1, winners)

	ride, err := rides.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RideStatusAccepted, ride.Status)
	assert.NotEmpty(t, ride.DriverID)
}

func TestRideRepository_AcceptRejectsBusyDriver(t *testing.T) {
	ctx := context.Background()
	rides := NewStore().Rides()
	now := time.Now()
	require.NoError(t, rides.Create(ctx, newPendingRide("r1", "p1", now)))
	require.NoError(t, rides.Create(ctx, newPendingRide("r2", "p2", now)))

	require.NoError(t, rides.Accept(ctx, "r1", "d1", now))
	assert.ErrorIs(t, rides.Accept(ctx, "r2", "d1", now), repository.ErrDuplicate)
}

func TestRideRepository_TransitionChecksGuards(t *testing.T) {
	ctx := context.Background()
	rides := NewStore().Rides()
	now := time.Now()
	require.NoError(t, rides.Create(ctx, newPendingRide("r1", "p1", now)))
	require.NoError(t, rides.Accept(ctx, "r1", "d1", now))

	start := repository.RideTransition{
		RideID:   "r1",
		From:     []domain.RideStatus{domain.RideStatusAccepted},
		To:       domain.RideStatusInProgress,
		DriverID: "d2",
		At:       now,
	}
	assert.ErrorIs(t, rides.Transition(ctx, start), repository.ErrConditionFailed)

	start.DriverID = "d1"
	require.NoError(t, rides.Transition(ctx, start))
	assert.ErrorIs(t, rides.Transition(ctx, start), repository.ErrConditionFailed)

	ride, err := rides.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RideStatusInProgress, ride.Status)
	assert.False(t, ride.StartedAt.IsZero())
	assert.True(t, ride.CompletedAt.IsZero())
}

func TestRideRepository_ListAndAggregates(t *testing.T) {
	ctx := context.Background()
	rides := NewStore().Rides()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		ride := newPendingRide(fmt.Sprintf("r%d", i), fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, rides.Create(ctx, ride))
	}
	require.NoError(t, rides.Accept(ctx, "r0", "d1", base))
	for _, to := range []domain.RideStatus{domain.RideStatusInProgress, domain.RideStatusCompleted} {
		from := domain.RideStatusAccepted
		if to == domain.RideStatusCompleted {
			from = domain.RideStatusInProgress
		}
		require.NoError(t, rides.Transition(ctx, repository.RideTransition{
			RideID: "r0", From: []domain.RideStatus{from}, To: to, DriverID: "d1", At: time.Now(),
		}))
	}

	all, err := rides.List(ctx, repository.RideFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[0].ID)

	pending, err := rides.Count(ctx, repository.RideFilter{Statuses: []domain.RideStatus{domain.RideStatusPending}})
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	earned, err := rides.SumFare(ctx, repository.RideFilter{DriverID: "d1", CompletedSince: base})
	require.NoError(t, err)
	assert.Equal(t, 25.0, earned)

	limited, err := rides.List(ctx, repository.RideFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	oldest, err := rides.List(ctx, repository.RideFilter{
		Statuses:    []domain.RideStatus{domain.RideStatusPending},
		OldestFirst: true,
		Limit:       1,
	})
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, "r1", oldest[0].ID)

	counts, err := rides.CountByPassenger(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p0": 1, "p1": 1, "p2": 1}, counts)
}

func TestUserRepository_UpdateProfileAndLookup(t *testing.T) {
	ctx := context.Background()
	users := NewStore().Users()

	require.NoError(t, users.Register(ctx, &domain.User{ID: "u1", FullName: "Dana", Phone: "+1"}, nil, nil))
	require.NoError(t, users.Register(ctx, &domain.User{ID: "u2", FullName: "Eli", Phone: "+2"}, nil, nil))

	assert.ErrorIs(t, users.UpdateProfile(ctx, "u2", "Eli", "+1"), repository.ErrDuplicate)
	assert.ErrorIs(t, users.UpdateProfile(ctx, "ghost", "Nobody", ""), repository.ErrNotFound)
	require.NoError(t, users.UpdateProfile(ctx, "u1", "Dana D.", "+3"))

	byID, err := users.GetByIDs(ctx, []string{"u1", "u2", "ghost"})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, "Dana D.", byID["u1"].FullName)
	assert.Equal(t, "+3", byID["u1"].Phone)

	_, err = users.GetByPhone(ctx, "+1")
	assert.ErrorIs(t, err, repository.ErrNotFound, "the old phone is released")
}

func TestVehicleRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	vehicles := NewStore().Vehicles()
	created := time.Now().Add(-time.Hour)

	require.NoError(t, vehicles.Upsert(ctx, &domain.Vehicle{ID: "v1", DriverID: "d1", CarModel: "Prius", CarColor: "Grey", PlateNumber: "A", CreatedAt: created}))
	require.NoError(t, vehicles.Upsert(ctx, &domain.Vehicle{ID: "v2", DriverID: "d1", CarModel: "Prius", CarColor: "Blue", PlateNumber: "A", CreatedAt: time.Now()}))

	got, err := vehicles.GetByDriverID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.ID)
	assert.Equal(t, "Blue", got.CarColor)
	assert.True(t, created.Equal(got.CreatedAt))

	all, err := vehicles.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUserRepository_RegisterDriverAtomically(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	users, drivers := store.Users(), store.Drivers()

	require.NoError(t, drivers.Create(ctx, &domain.DriverProfile{ID: "dp0", UserID: "u1"}))

	err := users.Register(ctx,
		&domain.User{ID: "u1", FullName: "Dana", Role: domain.RoleDriver},
		&domain.DriverProfile{ID: "dp1", UserID: "u1"},
		&domain.Vehicle{ID: "v1", DriverID: "u1", CarModel: "Prius"},
	)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = store.Vehicles().GetByDriverID(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrNotFound, "the vehicle is not stored without its driver")

	_, err = users.GetByID(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDriverRepository_RefreshRating(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	drivers, ratings := store.Drivers(), store.Ratings()

	require.NoError(t, drivers.Create(ctx, &domain.DriverProfile{ID: "dp1", UserID: "d1"}))
	require.NoError(t, ratings.Create(ctx, &domain.Rating{ID: "a", RideID: "r1", DriverID: "d1", Score: 5}))
	require.NoError(t, ratings.Create(ctx, &domain.Rating{ID: "b", RideID: "r2", DriverID: "d1", Score: 4}))
	assert.ErrorIs(t, ratings.Create(ctx, &domain.Rating{ID: "c", RideID: "r2", DriverID: "d1", Score: 1}), repository.ErrDuplicate)

	require.NoError(t, drivers.RefreshRating(ctx, "d1"))
	profile, err := drivers.GetByUserID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 4.5, profile.Rating)
}
