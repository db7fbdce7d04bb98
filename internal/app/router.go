package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
	"ridehail/internal/handler"
	"ridehail/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	UserHandler      *handler.UserHandler
	RideHandler      *handler.RideHandler
	DriverHandler    *handler.DriverHandler
	DashboardHandler *handler.DashboardHandler
	FeedHandler      *handler.FeedHandler
	Tokens           middleware.TokenParser
	RedisClient      *redis.Client // Optional: enables Idempotency-Key replay
	NewRelicApp      *newrelic.Application
	AllowedOrigins   []string
	Logger           *slog.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.POST("/users/register", deps.UserHandler.Register)

	authed := v1.Group("")
	authed.Use(middleware.Authenticate(deps.Tokens))
	authed.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))

	passenger := middleware.RequireRole(domain.RolePassenger)
	driver := middleware.RequireRole(domain.RoleDriver)
	admin := middleware.RequireRole(domain.RoleAdmin)

	authed.GET("/users", admin, deps.UserHandler.GetAll)
	authed.GET("/users/me", deps.UserHandler.Me)
	authed.PUT("/users/me", deps.UserHandler.UpdateMe)

	rides := authed.Group("/rides")
	{
		rides.GET("/estimate", passenger, deps.RideHandler.Estimate)
		rides.POST("", passenger, deps.RideHandler.CreateRide)
		rides.GET("", deps.RideHandler.GetAll)
		rides.GET("/pending", driver, deps.RideHandler.Pending)
		rides.GET("/active", middleware.RequireRole(domain.RolePassenger, domain.RoleDriver), deps.RideHandler.Active)
		rides.GET("/feed", deps.FeedHandler.Stream)
		rides.GET("/:id", deps.RideHandler.GetRide)
		rides.POST("/:id/accept", driver, deps.RideHandler.AcceptRide)
		rides.POST("/:id/start", driver, deps.RideHandler.StartRide)
		rides.POST("/:id/complete", driver, deps.RideHandler.CompleteRide)
		rides.POST("/:id/cancel", middleware.RequireRole(domain.RolePassenger, domain.RoleAdmin), deps.RideHandler.CancelRide)
		rides.POST("/:id/rating", passenger, deps.RideHandler.RateRide)
	}

	drivers := authed.Group("/drivers")
	{
		drivers.GET("", admin, deps.DriverHandler.GetAll)
		drivers.GET("/me", driver, deps.DriverHandler.Me)
		drivers.PUT("/me/status", driver, deps.DriverHandler.UpdateStatus)
		drivers.GET("/me/stats", driver, deps.DriverHandler.Stats)
		drivers.GET("/me/vehicle", driver, deps.DriverHandler.Vehicle)
		drivers.PUT("/me/vehicle", driver, deps.DriverHandler.UpdateVehicle)
		drivers.POST("/:id/approval", admin, deps.DriverHandler.SetApproval)
	}

	authed.GET("/passengers", admin, deps.DashboardHandler.Passengers)
	authed.GET("/passengers/me/summary", passenger, deps.DashboardHandler.PassengerSummary)
	authed.GET("/admin/overview", admin, deps.DashboardHandler.Overview)

	return router
}
