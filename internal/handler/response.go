package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/middleware"
	"ridehail/internal/repository"
	"ridehail/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Internal errors are reported generically and attached to the context for
// the request logger.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	case service.IsValidationError(err):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrAlreadyTaken),
		errors.Is(err, service.ErrDriverHasActiveRide),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyRated),
		errors.Is(err, service.ErrRideNotCompleted),
		errors.Is(err, service.ErrPhoneTaken):
		return http.StatusConflict

	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrDriverNotApproved),
		errors.Is(err, service.ErrAdminSignupDisabled):
		return http.StatusForbidden

	default:
		return http.StatusInternalServerError
	}
}

// actor returns the authenticated actor or aborts with 401.
func actor(c *gin.Context) (domain.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
	}
	return a, ok
}

// PlaceBody is a pickup or dropoff location.
type PlaceBody struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

func (p PlaceBody) toDomain() domain.Place {
	place := domain.Place{Address: p.Address}
	if p.Lat != nil && p.Lng != nil {
		place.Coords = &domain.Coordinates{Lat: *p.Lat, Lng: *p.Lng}
	}
	return place
}

func placeBody(p domain.Place) PlaceBody {
	body := PlaceBody{Address: p.Address}
	if p.Coords != nil {
		lat, lng := p.Coords.Lat, p.Coords.Lng
		body.Lat, body.Lng = &lat, &lng
	}
	return body
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID          string    `json:"id"`
	PassengerID string    `json:"passenger_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	Pickup      PlaceBody `json:"pickup"`
	Dropoff     PlaceBody `json:"dropoff"`
	DistanceKm  float64   `json:"distance_km,omitempty"`
	Fare        float64   `json:"fare"`
	Status      string    `json:"status"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
	StartedAt   string    `json:"started_at,omitempty"`
	CompletedAt string    `json:"completed_at,omitempty"`

	Passenger *PartyResponse `json:"passenger,omitempty"`
	Driver    *PartyResponse `json:"driver,omitempty"`
}

// PartyResponse is the contact data of a ride party.
type PartyResponse struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}

func partyResponse(p *domain.Party) *PartyResponse {
	if p == nil {
		return nil
	}
	return &PartyResponse{FullName: p.FullName, Phone: p.Phone}
}

func rideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:          r.ID,
		PassengerID: r.PassengerID,
		DriverID:    r.DriverID,
		Pickup:      placeBody(r.Pickup),
		Dropoff:     placeBody(r.Dropoff),
		DistanceKm:  r.DistanceKm,
		Fare:        r.Fare,
		Status:      string(r.Status),
		CreatedAt:   formatTime(r.CreatedAt),
		UpdatedAt:   formatTime(r.UpdatedAt),
		StartedAt:   formatTime(r.StartedAt),
		CompletedAt: formatTime(r.CompletedAt),
	}
}

func rideResponsesWithParties(rides []*domain.Ride, parties map[string]service.RideParties) []RideResponse {
	response := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		resp := rideResponse(r)
		if p, ok := parties[r.ID]; ok {
			resp.Passenger = partyResponse(p.Passenger)
			resp.Driver = partyResponse(p.Driver)
		}
		response = append(response, resp)
	}
	return response
}

// DriverResponse is the HTTP representation of a driver profile.
type DriverResponse struct {
	UserID        string  `json:"user_id"`
	LicenseNumber string  `json:"license_number,omitempty"`
	Status        string  `json:"status"`
	IsApproved    bool    `json:"is_approved"`
	TotalRides    int     `json:"total_rides"`
	Rating        float64 `json:"rating"`
}

func driverResponse(p *domain.DriverProfile) DriverResponse {
	return DriverResponse{
		UserID:        p.UserID,
		LicenseNumber: p.LicenseNumber,
		Status:        string(p.Status),
		IsApproved:    p.IsApproved,
		TotalRides:    p.TotalRides,
		Rating:        p.EffectiveRating(),
	}
}

// VehicleResponse is the HTTP representation of a driver's vehicle.
type VehicleResponse struct {
	CarModel    string `json:"car_model"`
	CarColor    string `json:"car_color"`
	PlateNumber string `json:"plate_number"`
}

func vehicleResponse(v *domain.Vehicle) *VehicleResponse {
	if v == nil {
		return nil
	}
	return &VehicleResponse{CarModel: v.CarModel, CarColor: v.CarColor, PlateNumber: v.PlateNumber}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
