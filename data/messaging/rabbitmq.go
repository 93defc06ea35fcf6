package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ncobase/keyvault/data/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ publishes to a topic exchange using the message key as routing key
type RabbitMQ struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbitMQ dials the broker and declares the exchange
func NewRabbitMQ(cfg *config.RabbitMQ) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("rabbitmq url is not configured")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "keyvault.events"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	r := &RabbitMQ{conn: conn, exchange: exchange}
	if _, err := r.channel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Name() string { return "rabbitmq" }

// channel returns the open channel, reopening it after a channel-level error
func (r *RabbitMQ) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(r.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	r.ch = ch
	return ch, nil
}

// Publish publishes a persistent JSON message
func (r *RabbitMQ) Publish(ctx context.Context, key string, body []byte) error {
	ch, err := r.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = ch.PublishWithContext(ctx, r.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish rabbitmq message: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
	}
	return r.conn.Close()
}
