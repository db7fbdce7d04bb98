package tests

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
)

func dialFeed(t *testing.T, h *harness, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	before := h.hub.Subscribers()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/rides/feed?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	// The subscription opens after the upgrade; wait so no event slips past.
	require.Eventually(t, func() bool { return h.hub.Subscribers() > before }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.RideEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event domain.RideEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestFeed_DeliversMatchingEvents(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.router)
	defer server.Close()

	admin := h.register(t, "admin", "Ada Admin")
	passenger := h.register(t, "passenger", "Pia Passenger")
	other := h.register(t, "passenger", "Otto Other")
	driver := h.approvedDriver(t, admin, "Dirk Driver")

	passengerFeed := dialFeed(t, h, server, passenger.Token)
	driverFeed := dialFeed(t, h, server, driver.Token)

	// Another passenger's ride reaches the driver's pending pool only.
	otherRide := h.requestRide(t, other)
	event := readEvent(t, driverFeed)
	assert.Equal(t, domain.EventInsert, event.Type)
	assert.Equal(t, otherRide.ID, event.RideID)

	ride := h.requestRide(t, passenger)
	event = readEvent(t, passengerFeed)
	assert.Equal(t, domain.EventInsert, event.Type)
	assert.Equal(t, ride.ID, event.RideID)
	assert.Equal(t, domain.RideStatusPending, event.Status)

	event = readEvent(t, driverFeed)
	assert.Equal(t, ride.ID, event.RideID)

	h.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/accept", driver.Token, nil, http.StatusOK, nil)

	event = readEvent(t, passengerFeed)
	assert.Equal(t, domain.EventUpdate, event.Type)
	assert.Equal(t, domain.RideStatusAccepted, event.Status)
	assert.Equal(t, domain.RideStatusPending, event.PreviousStatus)
	assert.Equal(t, driver.ID, event.DriverID)

	event = readEvent(t, driverFeed)
	assert.Equal(t, ride.ID, event.RideID)
	assert.Equal(t, domain.RideStatusAccepted, event.Status)
}

func TestFeed_RejectsMissingToken(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/rides/feed"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeed_DisconnectReleasesSubscription(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.router)
	defer server.Close()

	passenger := h.register(t, "passenger", "Pia Passenger")
	conn := dialFeed(t, h, server, passenger.Token)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return h.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
