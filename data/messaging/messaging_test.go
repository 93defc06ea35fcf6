package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ncobase/keyvault/data/config"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	err   error
	calls int
}

func (s *stubPublisher) Name() string { return "stub" }

func (s *stubPublisher) Publish(context.Context, string, []byte) error {
	s.calls++
	return s.err
}

func (s *stubPublisher) Close() error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubPublisher{err: errors.New("broker down")}
	b := WithBreaker(stub, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute})
	ctx := context.Background()

	assert.Error(t, b.Publish(ctx, "k", nil))
	assert.Error(t, b.Publish(ctx, "k", nil))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Publish(ctx, "k", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, stub.calls)
}

func TestBreakerPassesThrough(t *testing.T) {
	stub := &stubPublisher{}
	b := WithBreaker(stub, BreakerSettings{})

	require.NoError(t, b.Publish(context.Background(), "k", []byte("{}")))
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, "stub", b.Name())
}

func TestNewKafkaRequiresConfig(t *testing.T) {
	_, err := NewKafka(&config.Kafka{})
	assert.Error(t, err)

	_, err = NewKafka(&config.Kafka{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	k, err := NewKafka(&config.Kafka{Brokers: []string{"localhost:9092"}, Topic: "events", ClientID: "keyvault"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", k.Name())
	assert.NoError(t, k.Close())
}

func TestNewRabbitMQRequiresURL(t *testing.T) {
	_, err := NewRabbitMQ(&config.RabbitMQ{})
	assert.Error(t, err)
}
