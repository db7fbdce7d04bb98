package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// UserHandler handles HTTP requests for users.
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest is the HTTP request body for user registration.
type RegisterRequest struct {
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	Role          string `json:"role"`
	LicenseNumber string `json:"license_number,omitempty"`

	// Drivers may register their vehicle with the account.
	CarModel    string `json:"car_model,omitempty"`
	CarColor    string `json:"car_color,omitempty"`
	PlateNumber string `json:"plate_number,omitempty"`
}

// UpdateProfileRequest is the HTTP request body for editing the caller's profile.
type UpdateProfileRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// UserResponse is the HTTP response for user data.
type UserResponse struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role"`
}

// RegisterResponse is the HTTP response for a registration.
type RegisterResponse struct {
	User    UserResponse     `json:"user"`
	Driver  *DriverResponse  `json:"driver,omitempty"`
	Vehicle *VehicleResponse `json:"vehicle,omitempty"`
	Token   string           `json:"token"`
}

func userResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, FullName: u.FullName, Phone: u.Phone, Role: string(u.Role)}
}

// Register handles POST /v1/users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	register := service.RegisterRequest{
		FullName:      req.FullName,
		Phone:         req.Phone,
		Role:          domain.Role(req.Role),
		LicenseNumber: req.LicenseNumber,
	}
	if req.CarModel != "" || req.CarColor != "" || req.PlateNumber != "" {
		register.Vehicle = &service.VehicleRequest{
			CarModel:    req.CarModel,
			CarColor:    req.CarColor,
			PlateNumber: req.PlateNumber,
		}
	}

	reg, err := h.userService.Register(c.Request.Context(), register)
	if err != nil {
		respondError(c, err)
		return
	}

	response := RegisterResponse{User: userResponse(reg.User), Vehicle: vehicleResponse(reg.Vehicle), Token: reg.Token}
	if reg.Driver != nil {
		d := driverResponse(reg.Driver)
		response.Driver = &d
	}
	respondJSON(c, http.StatusCreated, response)
}

// GetAll handles GET /v1/users
func (h *UserHandler) GetAll(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context(), domain.Role(c.Query("role")))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, userResponse(u))
	}
	respondJSON(c, http.StatusOK, response)
}

// Me handles GET /v1/users/me
func (h *UserHandler) Me(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	user, err := h.userService.Get(c.Request.Context(), a.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, userResponse(user))
}

// UpdateMe handles PUT /v1/users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), a.ID, service.UpdateProfileRequest{
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, userResponse(user))
}
