package broker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
)

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		event domain.RideEvent
		want  string
	}{
		{domain.RideEvent{Type: domain.EventUpdate, Status: domain.RideStatusAccepted}, "ride.accepted"},
		{domain.RideEvent{Type: domain.EventInsert, Status: domain.RideStatusPending}, "ride.pending"},
		{domain.RideEvent{Type: domain.EventUpdate, Status: domain.RideStatusInProgress}, "ride.in_progress"},
		{domain.RideEvent{Type: domain.EventResync}, "ride.resync"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoutingKey(tt.event))
	}
}

func TestPublisher_Publish(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exchange := "ride_topic_test"
	pub, err := Dial(ctx, url, exchange, nil)
	require.NoError(t, err)
	defer pub.Close()
	require.True(t, pub.IsAlive())

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "ride.accepted", exchange, false, nil))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	event := domain.RideEvent{
		Type:           domain.EventUpdate,
		RideID:         "r1",
		PassengerID:    "p1",
		DriverID:       "d1",
		Status:         domain.RideStatusAccepted,
		PreviousStatus: domain.RideStatusPending,
		OccurredAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, pub.Publish(ctx, event))

	select {
	case d := <-deliveries:
		var got domain.RideEvent
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, event.RideID, got.RideID)
		assert.Equal(t, event.Status, got.Status)
		assert.Equal(t, "ride.accepted", d.RoutingKey)
	case <-ctx.Done():
		t.Fatal("no delivery received")
	}
}
