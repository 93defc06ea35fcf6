// Package messaging publishes opaque payloads to external brokers. Every
// publisher is wrapped in a circuit breaker so a dead broker fails fast.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker of a publisher is open
var ErrUnavailable = errors.New("publisher unavailable")

// Publisher sends a keyed payload to a broker
type Publisher interface {
	Name() string
	Publish(ctx context.Context, key string, body []byte) error
	Close() error
}

// Breaker guards a Publisher with a circuit breaker
type Breaker struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings tunes when the breaker trips and how long it stays open
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	OnStateChange       func(name string, from, to gobreaker.State)
}

// WithBreaker wraps next in a circuit breaker
func WithBreaker(next Publisher, s BreakerSettings) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	threshold := s.ConsecutiveFailures

	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: s.OnStateChange,
		}),
	}
}

// Name returns the wrapped publisher name
func (b *Breaker) Name() string {
	return b.next.Name()
}

// State returns the current breaker state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Publish forwards to the wrapped publisher unless the breaker is open
func (b *Breaker) Publish(ctx context.Context, key string, body []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, key, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, b.Name(), err)
	}
	return err
}

// Close closes the wrapped publisher
func (b *Breaker) Close() error {
	return b.next.Close()
}
