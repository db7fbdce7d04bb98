package service

import (
	"errors"
	"fmt"

	"ridehail/internal/domain"
)

var (
	// ErrConflict is returned when a passenger who already has an outstanding
	// ride requests another one.
	ErrConflict = errors.New("passenger already has an outstanding ride")

	// ErrAlreadyTaken is returned when another driver accepted the ride first.
	// Callers should refresh the pending list instead of retrying.
	ErrAlreadyTaken = errors.New("ride already taken")

	// ErrInvalidTransition is returned when a transition is attempted from the
	// wrong status or by the wrong actor.
	ErrInvalidTransition = errors.New("invalid ride transition")

	// ErrDriverHasActiveRide is returned when a driver already serves a ride.
	ErrDriverHasActiveRide = errors.New("driver already has an active ride")

	// ErrDriverNotApproved is returned when an unapproved driver tries to accept.
	ErrDriverNotApproved = errors.New("driver not approved")

	// ErrForbidden is returned when the actor may not see or change the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyRated is returned when a ride already carries a rating.
	ErrAlreadyRated = errors.New("ride already rated")

	// ErrRideNotCompleted is returned when rating a ride that has not finished.
	ErrRideNotCompleted = errors.New("ride not completed")

	// ErrPhoneTaken is returned when a phone number is already registered.
	ErrPhoneTaken = errors.New("phone already registered")

	// ErrAdminSignupDisabled is returned when self-registration as admin is off.
	ErrAdminSignupDisabled = errors.New("admin registration disabled")
)

// Validation errors.
var (
	ErrInvalidRideID      = errors.New("invalid ride id")
	ErrInvalidPassengerID = errors.New("invalid passenger id")
	ErrInvalidDriverID    = errors.New("invalid driver id")
	ErrInvalidPickup      = errors.New("invalid pickup location")
	ErrInvalidDropoff     = errors.New("invalid dropoff location")
	ErrInvalidEstimate    = errors.New("invalid fare estimate")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidFullName    = errors.New("invalid full name")
	ErrInvalidStatus      = errors.New("invalid driver status")
	ErrInvalidVehicle     = errors.New("vehicle needs car model, color and plate number")
)

// TransitionError describes a rejected ride transition. It matches
// ErrInvalidTransition with errors.Is.
type TransitionError struct {
	RideID string
	From   domain.RideStatus
	To     domain.RideStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("ride %s cannot move to %s: %s", e.RideID, e.To, e.Reason)
	}
	return fmt.Sprintf("ride %s cannot move from %s to %s: %s", e.RideID, e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsValidationError reports whether err is one of the input validation errors.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidRideID,
		ErrInvalidPassengerID,
		ErrInvalidDriverID,
		ErrInvalidPickup,
		ErrInvalidDropoff,
		ErrInvalidEstimate,
		ErrInvalidRating,
		ErrInvalidRole,
		ErrInvalidFullName,
		ErrInvalidStatus,
		ErrInvalidVehicle,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
