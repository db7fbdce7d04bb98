package domain

import "time"

// Rating is a passenger's score for a completed ride.
type Rating struct {
	ID          string
	RideID      string
	PassengerID string
	DriverID    string
	Score       int
	Comment     string
	CreatedAt   time.Time
}

// DriverStats is the driver dashboard summary.
type DriverStats struct {
	TodayRides    int
	TodayEarnings float64
	TotalRides    int
	Rating        float64
}

// PassengerSummary is the passenger dashboard summary.
type PassengerSummary struct {
	TotalRides int
	ActiveRide *Ride
	LastRide   *Ride
}

// Overview is the admin dashboard summary.
type Overview struct {
	Drivers          int
	Passengers       int
	Rides            int
	CompletedRides   int
	PendingApprovals int
	TodayEarnings    float64
}

// PassengerListing is one row of the admin passengers view.
type PassengerListing struct {
	User      User
	RideCount int
}
