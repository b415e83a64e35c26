package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"shiftclock/internal/config"
	"shiftclock/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDispatcherDelivers(t *testing.T) {
	memStore := store.NewMemoryStore()
	defer memStore.Close()

	sub, err := memStore.Subscribe(EventChannel)
	require.NoError(t, err)
	defer sub.Close()

	d := NewEventDispatcher(config.NewSystemSettingsManager(), memStore)
	d.Start()
	defer d.Stop(context.Background())

	d.Emit(Event{Type: EventTypeTimeIn, UserID: 7, Message: "Ada timed in"})

	select {
	case msg := <-sub.Channel():
		var event Event
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, EventTypeTimeIn, event.Type)
		assert.Equal(t, uint(7), event.UserID)
		assert.False(t, event.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestEventDispatcherDropsWhenFull(t *testing.T) {
	memStore := store.NewMemoryStore()
	defer memStore.Close()

	// Worker not started: the queue fills and overflow is dropped.
	d := NewEventDispatcher(config.NewSystemSettingsManager(), memStore)
	size := cap(d.queue)
	for i := 0; i < size+5; i++ {
		d.Emit(Event{Type: EventTypeTimeIn, UserID: uint(i)})
	}
	assert.Equal(t, int64(5), d.DroppedCount())
}
