// Package broker publishes ride events to RabbitMQ for consumers outside
// this service.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridehail/internal/domain"
	"ridehail/internal/relay"
)

const (
	// DefaultExchange is the topic exchange ride events are published to.
	DefaultExchange = "ride_topic"

	publishTimeout = 3 * time.Second
	maxDialRetries = 5
)

// ErrUnavailable is returned when no channel could be opened.
var ErrUnavailable = errors.New("rabbitmq channel not available")

// Publisher publishes ride events to a durable topic exchange with routing
// key ride.<status>.
type Publisher struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to RabbitMQ, retrying with a growing delay, and declares the exchange.
func Dial(ctx context.Context, url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{url: url, exchange: exchange, logger: logger}

	delay := time.Second
	for attempt := 1; ; attempt++ {
		err := p.connect()
		if err == nil {
			logger.Info("connected to rabbitmq", "exchange", exchange, "attempt", attempt)
			return p, nil
		}
		if attempt == maxDialRetries {
			return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", attempt, err)
		}

		logger.Warn("rabbitmq connection attempt failed", "attempt", attempt, "retry_in", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Publish implements relay.Publisher.
func (p *Publisher) Publish(ctx context.Context, event domain.RideEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode ride event: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(ctx, p.exchange, RoutingKey(event), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.RideID,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		Body:         body,
	})
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil && !p.ch.IsClosed() {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil && !p.conn.IsClosed() {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}

// IsAlive reports whether the connection and channel are open.
func (p *Publisher) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed()
}

// RoutingKey returns the routing key of event.
func RoutingKey(event domain.RideEvent) string {
	if event.Status == "" {
		return "ride." + string(event.Type)
	}
	return "ride." + string(event.Status)
}

// channel returns an open channel, reconnecting once if the previous one died.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	p.logger.Warn("rabbitmq channel closed, reconnecting", "exchange", p.exchange)
	if err := p.connectLocked(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return p.ch, nil
}

func (p *Publisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked()
}

func (p *Publisher) connectLocked() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Ensure Publisher implements relay.Publisher.
var _ relay.Publisher = (*Publisher)(nil)
