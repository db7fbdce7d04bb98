package service

import (
	"context"
	"log/slog"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/relay"
)

const publishTimeout = 3 * time.Second

// NotificationService publishes ride change events. Delivery is best-effort:
// subscribers treat events as hints and re-read the ride, so a lost event
// only delays a refresh.
type NotificationService struct {
	publisher relay.Publisher
	logger    *slog.Logger
}

// NewNotificationService creates a new NotificationService. A nil publisher
// disables publishing.
func NewNotificationService(publisher relay.Publisher, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{publisher: publisher, logger: logger}
}

// RideCreated announces a new pending ride.
func (s *NotificationService) RideCreated(ctx context.Context, ride *domain.Ride) {
	s.publish(ctx, domain.NewRideEvent(domain.EventInsert, ride, ""))
}

// RideChanged announces that ride moved out of previous.
func (s *NotificationService) RideChanged(ctx context.Context, ride *domain.Ride, previous domain.RideStatus) {
	s.publish(ctx, domain.NewRideEvent(domain.EventUpdate, ride, previous))
}

func (s *NotificationService) publish(ctx context.Context, event domain.RideEvent) {
	if s == nil || s.publisher == nil {
		return
	}

	// The request may be finished by the time a slow transport answers.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish ride event",
			"ride_id", event.RideID,
			"type", event.Type,
			"status", event.Status,
			"error", err,
		)
	}
}
