package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	lifecycle *service.LifecycleService
	ratings   *service.RatingService
	users     *service.UserService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(lifecycle *service.LifecycleService, ratings *service.RatingService, users *service.UserService) *RideHandler {
	return &RideHandler{lifecycle: lifecycle, ratings: ratings, users: users}
}

// CreateRideRequest is the HTTP request body for requesting a ride. The fare
// is always quoted by the server. Fare and distance may echo the estimate the
// passenger saw; both must then be given and match the quote.
type CreateRideRequest struct {
	Pickup     PlaceBody `json:"pickup"`
	Dropoff    PlaceBody `json:"dropoff"`
	Fare       *float64  `json:"fare,omitempty"`
	DistanceKm *float64  `json:"distance_km,omitempty"`
}

// EstimateQuery holds the query parameters of an estimate.
type EstimateQuery struct {
	Pickup     string   `form:"pickup"`
	Dropoff    string   `form:"dropoff"`
	PickupLat  *float64 `form:"pickup_lat"`
	PickupLng  *float64 `form:"pickup_lng"`
	DropoffLat *float64 `form:"dropoff_lat"`
	DropoffLng *float64 `form:"dropoff_lng"`
}

// EstimateResponse is the HTTP response for a fare estimate.
type EstimateResponse struct {
	Fare       float64 `json:"fare"`
	DistanceKm float64 `json:"distance_km"`
}

// RateRideRequest is the HTTP request body for rating a ride.
type RateRideRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// RatingResponse is the HTTP response for a rating.
type RatingResponse struct {
	ID       string `json:"id"`
	RideID   string `json:"ride_id"`
	DriverID string `json:"driver_id"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment,omitempty"`
}

// Estimate handles GET /v1/rides/estimate
func (h *RideHandler) Estimate(c *gin.Context) {
	var q EstimateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query"})
		return
	}

	pickup := PlaceBody{Address: q.Pickup, Lat: q.PickupLat, Lng: q.PickupLng}
	dropoff := PlaceBody{Address: q.Dropoff, Lat: q.DropoffLat, Lng: q.DropoffLng}

	estimate, err := h.lifecycle.Estimate(c.Request.Context(), pickup.toDomain(), dropoff.toDomain())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, EstimateResponse{Fare: estimate.Fare, DistanceKm: estimate.DistanceKm})
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	create := service.CreateRideRequest{
		PassengerID: a.ID,
		Pickup:      req.Pickup.toDomain(),
		Dropoff:     req.Dropoff.toDomain(),
	}
	if req.Fare != nil || req.DistanceKm != nil {
		if req.Fare == nil || req.DistanceKm == nil {
			respondError(c, service.ErrInvalidEstimate)
			return
		}
		create.Estimate = &service.Estimate{Fare: *req.Fare, DistanceKm: *req.DistanceKm}
	}

	ride, err := h.lifecycle.CreateRequest(c.Request.Context(), create)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, rideResponse(ride))
}

// GetAll handles GET /v1/rides
func (h *RideHandler) GetAll(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}

	rides, err := h.lifecycle.ListRides(c.Request.Context(), a, statuses, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondRides(c, a, rides)
}

// Pending handles GET /v1/rides/pending. Oldest requests come first.
func (h *RideHandler) Pending(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	rides, err := h.lifecycle.PendingRides(c.Request.Context(), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondRides(c, a, rides)
}

// Active handles GET /v1/rides/active. It answers 204 when the actor has no ride.
func (h *RideHandler) Active(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	ride, err := h.lifecycle.ActiveRide(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	if ride == nil {
		c.Status(http.StatusNoContent)
		return
	}

	h.respondRide(c, a, ride)
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	ride, err := h.lifecycle.GetRide(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondRide(c, a, ride)
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	h.driverTransition(c, h.lifecycle.AcceptRide)
}

// StartRide handles POST /v1/rides/:id/start
func (h *RideHandler) StartRide(c *gin.Context) {
	h.driverTransition(c, h.lifecycle.StartRide)
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *RideHandler) CompleteRide(c *gin.Context) {
	h.driverTransition(c, h.lifecycle.CompleteRide)
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	ride, err := h.lifecycle.CancelRide(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rideResponse(ride))
}

// RateRide handles POST /v1/rides/:id/rating
func (h *RideHandler) RateRide(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req RateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	rating, err := h.ratings.RateRide(c.Request.Context(), c.Param("id"), a, req.Rating, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, RatingResponse{
		ID:       rating.ID,
		RideID:   rating.RideID,
		DriverID: rating.DriverID,
		Rating:   rating.Score,
		Comment:  rating.Comment,
	})
}

// driverTransition runs a transition on behalf of the authenticated driver.
func (h *RideHandler) driverTransition(c *gin.Context, transition func(ctx context.Context, rideID, driverID string) (*domain.Ride, error)) {
	a, ok := actor(c)
	if !ok {
		return
	}

	ride, err := transition(c.Request.Context(), c.Param("id"), a.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rideResponse(ride))
}

// respondRides writes rides with the party details the actor may see.
func (h *RideHandler) respondRides(c *gin.Context, a domain.Actor, rides []*domain.Ride) {
	parties, err := h.users.Parties(c.Request.Context(), a, rides)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, rideResponsesWithParties(rides, parties))
}

func (h *RideHandler) respondRide(c *gin.Context, a domain.Actor, ride *domain.Ride) {
	parties, err := h.users.Parties(c.Request.Context(), a, []*domain.Ride{ride})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, rideResponsesWithParties([]*domain.Ride{ride}, parties)[0])
}

// parseStatuses parses a comma-separated status list.
func parseStatuses(raw string) ([]domain.RideStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []domain.RideStatus
	for _, part := range strings.Split(raw, ",") {
		status, ok := domain.ParseRideStatus(strings.TrimSpace(part))
		if !ok {
			return nil, service.ErrInvalidStatus
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
