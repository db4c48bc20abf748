package realtime_test

import (
	"testing"

	"livefeed/models"
	"livefeed/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := realtime.NewHub()

	first := make(chan models.PostEvent, 10)
	second := make(chan models.PostEvent, 10)
	hub.AddClient("first", first)
	hub.AddClient("second", second)

	event := models.CreateEvent(models.Post{ID: "post-1", Title: "Hello World"})
	hub.Broadcast(event)

	for _, client := range []chan models.PostEvent{first, second} {
		select {
		case got := <-client:
			assert.Equal(t, "create", got.Actions)
		default:
			t.Fatal("expected a buffered event")
		}
	}
}

func TestBroadcastNeverBlocksOnFullClient(t *testing.T) {
	hub := realtime.NewHub()

	full := make(chan models.PostEvent) // Unbuffered, nobody reading
	healthy := make(chan models.PostEvent, 10)
	hub.AddClient("full", full)
	hub.AddClient("healthy", healthy)

	hub.Broadcast(models.DeleteEvent("post-1"))

	select {
	case got := <-healthy:
		assert.Equal(t, "delete", got.Action)
		assert.Equal(t, "post-1", got.Post)
	default:
		t.Fatal("healthy client should still receive events")
	}
}

func TestRemoveClientClosesChannel(t *testing.T) {
	hub := realtime.NewHub()

	client := make(chan models.PostEvent, 1)
	hub.AddClient("key", client)
	hub.RemoveClient("key")

	_, ok := <-client
	assert.False(t, ok)

	// Removing twice is fine
	hub.RemoveClient("key")

	// Broadcasts after removal are not delivered anywhere
	hub.Broadcast(models.DeleteEvent("post-1"))
}

func TestShutdownClosesAllClients(t *testing.T) {
	hub := realtime.NewHub()

	first := make(chan models.PostEvent, 1)
	second := make(chan models.PostEvent, 1)
	hub.AddClient("first", first)
	hub.AddClient("second", second)

	hub.Shutdown()

	_, ok := <-first
	require.False(t, ok)
	_, ok = <-second
	require.False(t, ok)
}

func TestSingleton(t *testing.T) {
	hub := realtime.NewHub()
	realtime.Init(hub)
	assert.Same(t, hub, realtime.Get())
}
