package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomasbielik/precedent/internal/bus"
	"github.com/tomasbielik/precedent/internal/models"
)

func recvEvent(t *testing.T, sink chan models.Event) models.Event {
	t.Helper()
	select {
	case ev := <-sink:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func TestRegistrySharedListener(t *testing.T) {
	b := bus.NewLocalBus(nil)
	r := NewRegistry(b, nil)
	ctx := context.Background()

	first, err := r.Subscribe(ctx, "research-1")
	require.NoError(t, err)
	second, err := r.Subscribe(ctx, "research-1")
	require.NoError(t, err)

	ev := models.Event{Type: "searching", At: time.Now()}
	require.NoError(t, b.Publish(ctx, "research-1", ev))

	assert.Equal(t, "searching", recvEvent(t, first).Type)
	assert.Equal(t, "searching", recvEvent(t, second).Type)
}

func TestRegistryIsolatesResearches(t *testing.T) {
	b := bus.NewLocalBus(nil)
	r := NewRegistry(b, nil)
	ctx := context.Background()

	one, err := r.Subscribe(ctx, "research-1")
	require.NoError(t, err)
	other, err := r.Subscribe(ctx, "research-2")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "research-1", models.Event{Type: "scoping"}))

	assert.Equal(t, "scoping", recvEvent(t, one).Type)
	select {
	case ev := <-other:
		t.Fatalf("unexpected event for other research: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistryLastUnsubscribeClosesListener(t *testing.T) {
	b := bus.NewLocalBus(nil)
	r := NewRegistry(b, nil)
	ctx := context.Background()

	first, err := r.Subscribe(ctx, "research-1")
	require.NoError(t, err)
	second, err := r.Subscribe(ctx, "research-1")
	require.NoError(t, err)

	r.Unsubscribe("research-1", first)
	_, open := <-first
	assert.False(t, open, "detached sink is closed")

	// The remaining watcher still gets events.
	require.NoError(t, b.Publish(ctx, "research-1", models.Event{Type: "planning"}))
	assert.Equal(t, "planning", recvEvent(t, second).Type)

	r.Unsubscribe("research-1", second)

	// With no watchers left, publishing must not reach closed sinks.
	require.NoError(t, b.Publish(ctx, "research-1", models.Event{Type: "searching"}))
	select {
	case _, open := <-second:
		assert.False(t, open)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistryUnsubscribeUnknownIsNoop(t *testing.T) {
	r := NewRegistry(bus.NewLocalBus(nil), nil)
	r.Unsubscribe("never-subscribed", make(chan models.Event))
}
