package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/service"
)

// DashboardHandler serves the passenger and admin summaries.
type DashboardHandler struct {
	statsService *service.StatsService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(statsService *service.StatsService) *DashboardHandler {
	return &DashboardHandler{statsService: statsService}
}

// PassengerSummaryResponse is the HTTP response for a passenger's summary.
type PassengerSummaryResponse struct {
	TotalRides int           `json:"total_rides"`
	ActiveRide *RideResponse `json:"active_ride,omitempty"`
	LastRide   *RideResponse `json:"last_ride,omitempty"`
}

// OverviewResponse is the HTTP response for the admin overview.
type OverviewResponse struct {
	Drivers          int     `json:"drivers"`
	Passengers       int     `json:"passengers"`
	Rides            int     `json:"rides"`
	CompletedRides   int     `json:"completed_rides"`
	PendingApprovals int     `json:"pending_approvals"`
	TodayEarnings    float64 `json:"today_earnings"`
}

// PassengerListingResponse is one row of the admin passengers view.
type PassengerListingResponse struct {
	UserResponse
	CreatedAt string `json:"created_at"`
	RideCount int    `json:"ride_count"`
}

// PassengerSummary handles GET /v1/passengers/me/summary
func (h *DashboardHandler) PassengerSummary(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	summary, err := h.statsService.PassengerSummary(c.Request.Context(), a.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := PassengerSummaryResponse{TotalRides: summary.TotalRides}
	if summary.ActiveRide != nil {
		r := rideResponse(summary.ActiveRide)
		response.ActiveRide = &r
	}
	if summary.LastRide != nil {
		r := rideResponse(summary.LastRide)
		response.LastRide = &r
	}
	respondJSON(c, http.StatusOK, response)
}

// Overview handles GET /v1/admin/overview
func (h *DashboardHandler) Overview(c *gin.Context) {
	overview, err := h.statsService.Overview(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, OverviewResponse{
		Drivers:          overview.Drivers,
		Passengers:       overview.Passengers,
		Rides:            overview.Rides,
		CompletedRides:   overview.CompletedRides,
		PendingApprovals: overview.PendingApprovals,
		TodayEarnings:    overview.TodayEarnings,
	})
}

// Passengers handles GET /v1/passengers
func (h *DashboardHandler) Passengers(c *gin.Context) {
	passengers, err := h.statsService.Passengers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]PassengerListingResponse, 0, len(passengers))
	for _, p := range passengers {
		response = append(response, PassengerListingResponse{
			UserResponse: userResponse(&p.User),
			CreatedAt:    formatTime(p.User.CreatedAt),
			RideCount:    p.RideCount,
		})
	}
	respondJSON(c, http.StatusOK, response)
}
