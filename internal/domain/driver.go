package domain

import "time"

// DriverStatus represents the availability of a driver.
type DriverStatus string

const (
	DriverStatusOnline  DriverStatus = "online"
	DriverStatusOffline DriverStatus = "offline"
	DriverStatusBusy    DriverStatus = "busy"
)

// DefaultDriverRating is reported for drivers without any rating yet.
const DefaultDriverRating = 5.0

// Valid reports whether s is one of the known availability statuses.
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverStatusOnline, DriverStatusOffline, DriverStatusBusy:
		return true
	}
	return false
}

// DriverProfile holds the driver-specific data of a user with the driver role.
type DriverProfile struct {
	ID            string
	UserID        string
	LicenseNumber string
	Status        DriverStatus
	IsApproved    bool
	TotalRides    int
	Rating        float64 // 0 = not rated yet
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectiveRating returns the rating to display.
func (p *DriverProfile) EffectiveRating() float64 {
	if p.Rating <= 0 {
		return DefaultDriverRating
	}
	return p.Rating
}

// Vehicle is the car a driver registered with. A driver has at most one.
type Vehicle struct {
	ID          string
	DriverID    string
	CarModel    string
	CarColor    string
	PlateNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DriverDetails joins a driver profile with the owning user and vehicle for
// admin listings. Vehicle is nil when the driver never registered one.
type DriverDetails struct {
	Profile DriverProfile
	User    User
	Vehicle *Vehicle
}
