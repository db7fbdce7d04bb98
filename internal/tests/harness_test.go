// Package tests drives the HTTP API end to end over the in-memory store.
package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"ridehail/internal/app"
	"ridehail/internal/auth"
	"ridehail/internal/handler"
	"ridehail/internal/middleware"
	"ridehail/internal/relay"
	"ridehail/internal/repository/memory"
	"ridehail/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// harness is a full API wired over the in-memory store and relay hub.
type harness struct {
	router *gin.Engine
	hub    *relay.Hub
	phones atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	hub := relay.NewHub(0)
	tokens := auth.NewIssuer("test-secret-0123456789", "ridehail-test", time.Hour)

	estimator := service.NewFlatRateEstimator(service.FlatRateConfig{
		BaseFare:      10,
		PerKmRate:     3,
		MinDistanceKm: 3,
		MaxDistanceKm: 12,
	})
	notifications := service.NewNotificationService(hub, logger)
	drivers := service.NewDriverService(store.Drivers(), store.Vehicles(), store.Users(), nil, logger)
	lifecycle := service.NewLifecycleService(store.Rides(), drivers, estimator, nil, notifications, logger)
	ratings := service.NewRatingService(store.Rides(), store.Ratings(), drivers)
	stats := service.NewStatsService(store.Rides(), store.Drivers(), store.Users())
	users := service.NewUserService(store.Users(), tokens, true, logger)

	origins := []string{"*"}
	router := app.NewRouter(app.RouterDeps{
		UserHandler:      handler.NewUserHandler(users),
		RideHandler:      handler.NewRideHandler(lifecycle, ratings, users),
		DriverHandler:    handler.NewDriverHandler(drivers, stats),
		DashboardHandler: handler.NewDashboardHandler(stats),
		FeedHandler: handler.NewFeedHandler(hub, middleware.OriginChecker(origins), logger,
			relay.WithBackoff(10*time.Millisecond, 50*time.Millisecond)),
		Tokens:         tokens,
		AllowedOrigins: origins,
		Logger:         logger,
	})

	return &harness{router: router, hub: hub}
}

// account is a registered user and its bearer token.
type account struct {
	ID    string
	Token string
}

func (h *harness) register(t *testing.T, role, name string) account {
	t.Helper()

	phone := fmt.Sprintf("+1555%07d", h.phones.Add(1))
	var resp handler.RegisterResponse
	h.do(t, http.MethodPost, "/v1/users/register", "", map[string]any{
		"full_name":      name,
		"phone":          phone,
		"role":           role,
		"license_number": "LIC-" + phone,
	}, http.StatusCreated, &resp)

	require.NotEmpty(t, resp.Token)
	return account{ID: resp.User.ID, Token: resp.Token}
}

// approvedDriver registers a driver and has an admin approve them.
func (h *harness) approvedDriver(t *testing.T, admin account, name string) account {
	t.Helper()

	driver := h.register(t, "driver", name)
	h.do(t, http.MethodPost, "/v1/drivers/"+driver.ID+"/approval", admin.Token,
		map[string]any{"approved": true}, http.StatusOK, nil)
	h.do(t, http.MethodPut, "/v1/drivers/me/status", driver.Token,
		map[string]any{"status": "online"}, http.StatusOK, nil)
	return driver
}

func (h *harness) requestRide(t *testing.T, passenger account) handler.RideResponse {
	t.Helper()

	var ride handler.RideResponse
	h.do(t, http.MethodPost, "/v1/rides", passenger.Token, map[string]any{
		"pickup":  map[string]any{"address": "Central Station", "lat": 52.3791, "lng": 4.9003},
		"dropoff": map[string]any{"address": "Museumplein", "lat": 52.3579, "lng": 4.8816},
	}, http.StatusCreated, &ride)
	return ride
}

// do sends a request and asserts the status code. out may be nil.
func (h *harness) do(t *testing.T, method, path, token string, body any, wantStatus int, out any) *httptest.ResponseRecorder {
	t.Helper()

	rec := h.send(t, method, path, token, body)
	require.Equal(t, wantStatus, rec.Code, "%s %s: %s", method, path, rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func (h *harness) send(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}
