package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService *service.DriverService
	statsService  *service.StatsService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService *service.DriverService, statsService *service.StatsService) *DriverHandler {
	return &DriverHandler{
		driverService: driverService,
		statsService:  statsService,
	}
}

// UpdateStatusRequest is the HTTP request body for changing availability.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ApprovalRequest is the HTTP request body for approving a driver.
type ApprovalRequest struct {
	Approved bool `json:"approved"`
}

// VehicleRequest is the HTTP request body for registering or editing a vehicle.
type VehicleRequest struct {
	CarModel    string `json:"car_model"`
	CarColor    string `json:"car_color"`
	PlateNumber string `json:"plate_number"`
}

// DriverDetailsResponse is one row of the admin drivers view.
type DriverDetailsResponse struct {
	DriverResponse
	FullName string           `json:"full_name"`
	Phone    string           `json:"phone,omitempty"`
	Vehicle  *VehicleResponse `json:"vehicle,omitempty"`
}

// DriverStatsResponse is the HTTP response for a driver's dashboard.
type DriverStatsResponse struct {
	TodayRides    int     `json:"today_rides"`
	TodayEarnings float64 `json:"today_earnings"`
	TotalRides    int     `json:"total_rides"`
	Rating        float64 `json:"rating"`
}

// GetAll handles GET /v1/drivers
func (h *DriverHandler) GetAll(c *gin.Context) {
	drivers, err := h.driverService.ListDetails(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]DriverDetailsResponse, 0, len(drivers))
	for _, d := range drivers {
		response = append(response, DriverDetailsResponse{
			DriverResponse: driverResponse(&d.Profile),
			FullName:       d.User.FullName,
			Phone:          d.User.Phone,
			Vehicle:        vehicleResponse(d.Vehicle),
		})
	}
	respondJSON(c, http.StatusOK, response)
}

// Me handles GET /v1/drivers/me
func (h *DriverHandler) Me(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	profile, err := h.driverService.Profile(c.Request.Context(), a.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, driverResponse(profile))
}

// UpdateStatus handles PUT /v1/drivers/me/status
func (h *DriverHandler) UpdateStatus(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	profile, err := h.driverService.SetAvailability(c.Request.Context(), a.ID, domain.DriverStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, driverResponse(profile))
}

// Vehicle handles GET /v1/drivers/me/vehicle
func (h *DriverHandler) Vehicle(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	vehicle, err := h.driverService.Vehicle(c.Request.Context(), a.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, vehicleResponse(vehicle))
}

// UpdateVehicle handles PUT /v1/drivers/me/vehicle
func (h *DriverHandler) UpdateVehicle(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	vehicle, err := h.driverService.UpdateVehicle(c.Request.Context(), a.ID, service.VehicleRequest{
		CarModel:    req.CarModel,
		CarColor:    req.CarColor,
		PlateNumber: req.PlateNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, vehicleResponse(vehicle))
}

// Stats handles GET /v1/drivers/me/stats
func (h *DriverHandler) Stats(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	stats, err := h.statsService.DriverStats(c.Request.Context(), a.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, DriverStatsResponse{
		TodayRides:    stats.TodayRides,
		TodayEarnings: stats.TodayEarnings,
		TotalRides:    stats.TotalRides,
		Rating:        stats.Rating,
	})
}

// SetApproval handles POST /v1/drivers/:id/approval
func (h *DriverHandler) SetApproval(c *gin.Context) {
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	profile, err := h.driverService.SetApproval(c.Request.Context(), c.Param("id"), req.Approved)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, driverResponse(profile))
}
