package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/keyvault/data/config"
	"github.com/segmentio/kafka-go"
)

// Kafka publishes to a single kafka topic
type Kafka struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewKafka creates a kafka publisher from config
func NewKafka(cfg *config.Kafka) (*Kafka, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is not configured")
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	if cfg.ClientID != "" {
		w.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}

	return &Kafka{writer: w, timeout: timeout}, nil
}

func (k *Kafka) Name() string { return "kafka" }

// Publish writes one message keyed by key so events of one workspace stay ordered
func (k *Kafka) Publish(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
