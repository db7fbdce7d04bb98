package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusPending    RideStatus = "pending"
	RideStatusAccepted   RideStatus = "accepted"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusCompleted  RideStatus = "completed"
	RideStatusCancelled  RideStatus = "cancelled"
)

var (
	// OutstandingStatuses are the statuses that block a passenger from requesting another ride.
	OutstandingStatuses = []RideStatus{RideStatusPending, RideStatusAccepted, RideStatusInProgress}

	// DriverActiveStatuses are the statuses in which a ride occupies its driver.
	DriverActiveStatuses = []RideStatus{RideStatusAccepted, RideStatusInProgress}

	// CancellableStatuses are the statuses from which a ride may be cancelled.
	CancellableStatuses = []RideStatus{RideStatusPending, RideStatusAccepted}
)

// transitions lists the allowed next statuses for every status.
var transitions = map[RideStatus][]RideStatus{
	RideStatusPending:    {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted},
}

// ParseRideStatus converts a string into a RideStatus.
func ParseRideStatus(s string) (RideStatus, bool) {
	status := RideStatus(s)
	return status, status.Valid()
}

// Valid reports whether s is one of the known statuses.
func (s RideStatus) Valid() bool {
	switch s {
	case RideStatusPending, RideStatusAccepted, RideStatusInProgress,
		RideStatusCompleted, RideStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// IsOutstanding reports whether a ride in s still belongs to its passenger's current request.
func (s RideStatus) IsOutstanding() bool {
	return s.in(OutstandingStatuses)
}

// IsDriverActive reports whether a ride in s occupies its driver.
func (s RideStatus) IsDriverActive() bool {
	return s.in(DriverActiveStatuses)
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	return next.in(transitions[s])
}

func (s RideStatus) in(set []RideStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

// Coordinates is a point on the map.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Place is a pickup or dropoff location as entered by the passenger.
type Place struct {
	Address string
	Coords  *Coordinates // Optional
}

// Ride represents a ride request in the system.
type Ride struct {
	ID          string
	PassengerID string
	DriverID    string // Empty until a driver accepts
	Pickup      Place
	Dropoff     Place
	DistanceKm  float64 // 0 = unknown
	Fare        float64
	Status      RideStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// HasDriver reports whether a driver is assigned to the ride.
func (r *Ride) HasDriver() bool {
	return r.DriverID != ""
}

// InvolvesUser reports whether userID is the ride's passenger or driver.
func (r *Ride) InvolvesUser(userID string) bool {
	return userID != "" && (r.PassengerID == userID || r.DriverID == userID)
}
