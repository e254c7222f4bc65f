package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_LocalDelivery(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	received := make(chan Event, 1)
	require.NoError(t, bus.Subscribe(IMAGES_CHANNEL, func(event Event) error {
		received <- event
		return nil
	}))

	require.NoError(t, bus.PublishImageEvent(VARIANT_GENERATED, 42, map[string]any{"type": "thumb"}))

	select {
	case event := <-received:
		assert.Equal(t, VARIANT_GENERATED, event.Type)
		assert.Equal(t, 42, event.ImageID)
		assert.Equal(t, IMAGES_CHANNEL, event.Channel)
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
		assert.Equal(t, "thumb", event.Data["type"])
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestEventBus_PublishWithoutSubscribers(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	assert.NoError(t, bus.PublishImageEvent(IMAGE_DELETED, 1, nil))
}
