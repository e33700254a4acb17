// Package service holds the background pieces that run beside the HTTP
// server: the broker publisher for security events and the revocation
// housekeeping loop.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/recipe-box/internal/auth"
	"github.com/iliyamo/recipe-box/internal/queue"
)

var errBrokerBackoff = errors.New("broker unavailable, waiting before redial")

// EventPublisher publishes auth events to the auth.events queue. The
// connection is opened lazily and re-established after the broker drops
// it. It satisfies auth.EventPublisher.
type EventPublisher struct {
	url    string
	logger *slog.Logger

	// DialTimeout bounds a connection attempt; RetryAfter is how long
	// Publish fails fast after a failed attempt.
	DialTimeout time.Duration
	RetryAfter  time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

func NewEventPublisher(url string, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		url:         url,
		logger:      logger.With("component", "event-publisher"),
		DialTimeout: 2 * time.Second,
		RetryAfter:  10 * time.Second,
	}
}

// Publish sends ev as a persistent JSON message. Errors are logged and
// returned so the caller can ignore them.
func (p *EventPublisher) Publish(ctx context.Context, ev auth.Event) error {
	body, err := json.Marshal(queue.NewSecurityEvent(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.logger.Warn("broker unavailable", "error", err, "event", ev.Type)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.AuthEventsQueue, false, false, pub); err != nil {
		p.logger.Warn("publish failed", "error", err, "event", ev.Type)
		p.reset()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close releases the broker connection. It is safe to call more than once.
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// channel returns an open channel, dialing when needed. p.mu must be held.
func (p *EventPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if now := time.Now(); now.Before(p.nextDial) {
		return nil, errBrokerBackoff
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.DialTimeout)})
	if err != nil {
		p.nextDial = time.Now().Add(p.RetryAfter)
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(queue.AuthEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *EventPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}
