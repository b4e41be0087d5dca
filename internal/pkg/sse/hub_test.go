package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishDeliversToUserSubscribersOnly(t *testing.T) {
	hub := NewHub()
	aliceCh, aliceDone := hub.Subscribe("alice")
	defer aliceDone()
	bobCh, bobDone := hub.Subscribe("bob")
	defer bobDone()

	hub.Publish("alice", Event{Event: "notification", Data: "hello"})

	select {
	case ev := <-aliceCh:
		assert.Equal(t, "alice", ev.UserID)
		assert.Equal(t, "notification", ev.Event)
		assert.Equal(t, uint64(1), ev.ID)
	default:
		t.Fatal("expected an event for alice")
	}
	assert.Len(t, bobCh, 0)
}

func TestHub_CleanupIsIdempotent(t *testing.T) {
	hub := NewHub()
	_, cleanup := hub.Subscribe("alice")
	require.Equal(t, 1, hub.SubscriberCount("alice"))

	cleanup()
	cleanup()

	assert.Equal(t, 0, hub.SubscriberCount("alice"))
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	_, cleanup := hub.Subscribe("alice")
	defer cleanup()

	for i := 0; i < 20; i++ {
		hub.Publish("alice", Event{Event: "notification"})
	}

	assert.Equal(t, uint64(4), hub.Dropped())
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub()
	ch, cleanup := hub.Subscribe("alice")

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)
	cleanup()

	late, _ := hub.Subscribe("bob")
	_, ok = <-late
	assert.False(t, ok)
}
