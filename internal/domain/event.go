package domain

import "time"

// EventType is the kind of change a RideEvent reports.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"

	// EventResync tells a subscriber that events may have been missed and
	// all cached state should be re-fetched.
	EventResync EventType = "resync"
)

// RideEvent is a change notification for a ride row. It is an invalidation
// hint only: consumers re-read the ride instead of trusting the payload.
type RideEvent struct {
	Type           EventType  `json:"type"`
	RideID         string     `json:"ride_id,omitempty"`
	PassengerID    string     `json:"passenger_id,omitempty"`
	DriverID       string     `json:"driver_id,omitempty"`
	Status         RideStatus `json:"status,omitempty"`
	PreviousStatus RideStatus `json:"previous_status,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// NewRideEvent builds an event describing ride after a change from previous.
func NewRideEvent(eventType EventType, ride *Ride, previous RideStatus) RideEvent {
	return RideEvent{
		Type:           eventType,
		RideID:         ride.ID,
		PassengerID:    ride.PassengerID,
		DriverID:       ride.DriverID,
		Status:         ride.Status,
		PreviousStatus: previous,
		OccurredAt:     ride.UpdatedAt,
	}
}
