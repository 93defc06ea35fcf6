// Package service records audit events and fans them out to subscribers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ncobase/keyvault/core/event/data/repository"
	"github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/data/messaging"
	"github.com/ncobase/keyvault/logging/logger"
)

// Handler consumes a published event.
type Handler func(ctx context.Context, event *structs.Event) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus saves every event synchronously and hands it to subscribers through
// a bounded buffer drained by background workers.
type Bus struct {
	store       repository.Store
	subscribers []subscriber
	buffer      chan *structs.Event
	logger      *logger.Logger

	mu      sync.RWMutex
	wg      sync.WaitGroup
	dropped int
}

// NewBus creates a new event bus.
func NewBus(bufferSize int, logger *logger.Logger, store repository.Store) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Bus{
		store:  store,
		buffer: make(chan *structs.Event, bufferSize),
		logger: logger,
	}
}

// Subscribe registers a handler for every event.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = append(b.subscribers, subscriber{name: name, handler: handler})
	b.logger.Info(context.Background(), "Event subscriber registered",
		"subscriber", name,
		"total_subscribers", len(b.subscribers))
}

// Publish stores the event and queues it for subscribers. A full buffer
// drops the fan-out, never the stored record.
func (b *Bus) Publish(ctx context.Context, event *structs.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if b.store != nil {
		if err := b.store.Save(ctx, event); err != nil {
			return fmt.Errorf("failed to store event: %w", err)
		}
	}

	b.mu.RLock()
	hasSubscribers := len(b.subscribers) > 0
	b.mu.RUnlock()
	if !hasSubscribers {
		return nil
	}

	select {
	case b.buffer <- event:
		b.logger.Debug(ctx, "Event published",
			"type", event.Type,
			"id", event.ID,
			"workspace_id", event.WorkspaceID)
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		b.logger.Warn(ctx, "Event buffer full, fan-out skipped",
			"type", event.Type,
			"id", event.ID)
	}
	return nil
}

// Start starts the event bus workers.
func (b *Bus) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		b.wg.Add(1)
		go b.worker(ctx, i)
	}
	b.logger.Info(ctx, "Event bus started", "workers", numWorkers)
}

func (b *Bus) worker(ctx context.Context, id int) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			b.logger.Debug(context.Background(), "Event bus worker stopped", "worker_id", id)
			return
		case event, ok := <-b.buffer:
			if !ok {
				return
			}
			b.dispatch(ctx, event)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event *structs.Event) {
	b.mu.RLock()
	subscribers := b.subscribers
	b.mu.RUnlock()

	for _, s := range subscribers {
		handlerCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		start := time.Now()
		if err := s.handler(handlerCtx, event); err != nil {
			b.logger.Error(ctx, "Event subscriber failed",
				"subscriber", s.name,
				"type", event.Type,
				"id", event.ID,
				"duration", time.Since(start).String(),
				"error", err)
		}
		cancel()
	}
}

// Stats returns event bus statistics.
func (b *Bus) Stats() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		names = append(names, s.name)
	}
	return map[string]any{
		"buffer_size": cap(b.buffer),
		"buffer_used": len(b.buffer),
		"subscribers": names,
		"dropped":     b.dropped,
	}
}

// Shutdown waits until the buffer is drained or ctx expires. The workers
// must have been started with a context that is cancelled afterwards.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info(ctx, "Shutting down event bus", "pending_events", len(b.buffer))

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for len(b.buffer) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown timeout with %d events remaining: %w", len(b.buffer), ctx.Err())
		case <-ticker.C:
		}
	}
	b.logger.Info(ctx, "Event bus shutdown complete")
	return nil
}

// Wait blocks until every worker has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// PublisherHandler forwards events to a broker as JSON keyed by workspace.
func PublisherHandler(p messaging.Publisher) Handler {
	return func(ctx context.Context, event *structs.Event) error {
		if p == nil {
			return errors.New("publisher is nil")
		}
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		return p.Publish(ctx, event.WorkspaceID, body)
	}
}
