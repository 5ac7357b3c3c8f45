package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomasbielik/precedent/internal/models"
)

func TestLocalBusFanout(t *testing.T) {
	b := NewLocalBus(nil)
	ctx := context.Background()

	sub1, err := b.Subscribe(ctx, "r1")
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := b.Subscribe(ctx, "r1")
	require.NoError(t, err)
	defer sub2.Close()

	require.NoError(t, b.Publish(ctx, "r1", models.Event{Type: "searching"}))

	for _, sub := range []Subscription{sub1, sub2} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, "searching", ev.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestLocalBusIsolatesResearches(t *testing.T) {
	b := NewLocalBus(nil)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "r1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, "r2", models.Event{Type: "started"}))

	select {
	case ev := <-sub.Events():
		t.Fatalf("received event %q for another research", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBusCloseStopsDelivery(t *testing.T) {
	b := NewLocalBus(nil)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")

	// Channel is closed, so reads complete immediately.
	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after close must not panic or block.
	require.NoError(t, b.Publish(ctx, "r1", models.Event{Type: "ended"}))
}

func TestLocalBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewLocalBus(nil)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "r1")
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Never read: overflow the buffer and keep publishing.
		for i := 0; i < 100; i++ {
			_ = b.Publish(ctx, "r1", models.Event{Type: "searching"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
