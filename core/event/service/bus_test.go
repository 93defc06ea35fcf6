package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ncobase/keyvault/core/event/data/repository"
	"github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/data/datatest"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	events []*structs.Event
	err    error
}

func (m *memStore) Save(_ context.Context, e *structs.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) List(context.Context, string, structs.Filter, int, int) ([]*structs.Event, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events, len(m.events), nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestBusStoresAndFansOut(t *testing.T) {
	store := &memStore{}
	bus := NewBus(8, logger.StdLogger(), store)

	got := make(chan *structs.Event, 1)
	bus.Subscribe("test", func(_ context.Context, e *structs.Event) error {
		got <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx, 1)

	e := &structs.Event{WorkspaceID: "w1", Type: structs.WorkspaceUpdated, Source: structs.SourceWorkspace}
	require.NoError(t, bus.Publish(ctx, e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, 1, store.len())

	select {
	case delivered := <-got:
		assert.Equal(t, e.ID, delivered.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBusStoreFailure(t *testing.T) {
	bus := NewBus(1, logger.StdLogger(), &memStore{err: errors.New("down")})
	err := bus.Publish(context.Background(), &structs.Event{WorkspaceID: "w1"})
	assert.Error(t, err)
}

func TestBusDropsWhenBufferFull(t *testing.T) {
	bus := NewBus(1, logger.StdLogger(), &memStore{})
	bus.Subscribe("slow", func(context.Context, *structs.Event) error { return nil })

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &structs.Event{WorkspaceID: "w1"}))
	require.NoError(t, bus.Publish(ctx, &structs.Event{WorkspaceID: "w1"}))
	assert.Equal(t, 1, bus.Stats()["dropped"])
}

func TestRecorderWaitsForCommit(t *testing.T) {
	d := datatest.NewSQLite(t)
	store := &memStore{}
	rec := NewRecorder(NewBus(8, logger.StdLogger(), store), logger.StdLogger())

	err := d.WithTx(context.Background(), func(ctx context.Context) error {
		rec.Record(ctx, &structs.Event{WorkspaceID: "w1", Type: structs.ApprovalCreated})
		assert.Equal(t, 0, store.len())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.len())

	_ = d.WithTx(context.Background(), func(ctx context.Context) error {
		rec.Record(ctx, &structs.Event{WorkspaceID: "w1", Type: structs.ApprovalCreated})
		return errors.New("rollback")
	})
	assert.Equal(t, 1, store.len())
}

func TestSQLStoreList(t *testing.T) {
	d := datatest.NewSQLite(t)
	store, err := repository.NewSQLStore(d)
	require.NoError(t, err)
	bus := NewBus(8, logger.StdLogger(), store)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []structs.Type{structs.SecretCreated, structs.SecretUpdated, structs.ApprovalCreated} {
		src := structs.SourceSecret
		if typ == structs.ApprovalCreated {
			src = structs.SourceApproval
		}
		require.NoError(t, bus.Publish(ctx, &structs.Event{
			WorkspaceID: "w1",
			Type:        typ,
			Source:      src,
			Title:       string(typ),
			Metadata:    map[string]any{"n": i},
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, bus.Publish(ctx, &structs.Event{WorkspaceID: "w2", Type: structs.SecretCreated, Source: structs.SourceSecret}))

	events, total, err := store.List(ctx, "w1", structs.Filter{Sources: []structs.Source{structs.SourceSecret}}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, events, 2)
	assert.Equal(t, structs.SecretUpdated, events[0].Type)
	assert.EqualValues(t, 1, events[0].Metadata["n"])

	_, total, err = store.List(ctx, "w1", structs.Filter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

}
