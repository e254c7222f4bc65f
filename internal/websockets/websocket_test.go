package websockets

import (
	"testing"
	"time"

	"imagevariants/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *events.EventBus) {
	t.Helper()
	bus := events.New(nil)
	manager, err := New(bus)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = manager.Close()
		_ = bus.Close()
	})
	return manager, bus
}

func connect(t *testing.T, m *Manager) *Client {
	t.Helper()
	client := newClient(m, nil)
	m.hub.register <- client
	require.Eventually(t, func() bool { return m.ClientCount() > 0 }, time.Second, 5*time.Millisecond)
	return client
}

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case message := <-client.send:
		return message
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestManager_RelaysImageEvents(t *testing.T) {
	manager, bus := newTestManager(t)
	client := connect(t, manager)

	require.NoError(t, bus.PublishImageEvent(events.VARIANT_GENERATED, 5, map[string]any{"type": "thumb"}))

	message := receive(t, client)
	assert.Equal(t, MESSAGE_TYPE_EVENT, message.Type)
	assert.Equal(t, string(events.VARIANT_GENERATED), message.Action)
	assert.Equal(t, events.IMAGES_CHANNEL.String(), message.Channel)
	assert.Equal(t, 5, message.ImageID)
	assert.Equal(t, "thumb", message.Data["type"])
}

func TestManager_RespectsSubscriptions(t *testing.T) {
	manager, bus := newTestManager(t)
	client := connect(t, manager)
	client.subscribe([]int{9}, true)

	require.NoError(t, bus.PublishImageEvent(events.IMAGE_DELETED, 5, nil))
	require.NoError(t, bus.PublishImageEvent(events.IMAGE_DELETED, 9, nil))

	assert.Equal(t, 9, receive(t, client).ImageID)
	select {
	case message := <-client.send:
		t.Fatalf("unexpected message for image %d", message.ImageID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_RouteMessage(t *testing.T) {
	manager, _ := newTestManager(t)
	client := newClient(manager, nil)

	reply, ok := client.routeMessage(Message{Type: MESSAGE_TYPE_PING})
	require.True(t, ok)
	assert.Equal(t, MESSAGE_TYPE_PONG, reply.Type)

	reply, _ = client.routeMessage(Message{Type: MESSAGE_TYPE_SUBSCRIBE, ImageID: 3, ImageIDs: []int{4}})
	assert.Equal(t, MESSAGE_TYPE_SUBSCRIBE, reply.Type)
	assert.ElementsMatch(t, []int{3, 4}, reply.ImageIDs)
	assert.True(t, client.wants(3))
	assert.True(t, client.wants(4))
	assert.False(t, client.wants(5))

	client.routeMessage(Message{Type: MESSAGE_TYPE_UNSUBSCRIBE, ImageIDs: []int{3, 4}})
	assert.True(t, client.wants(5), "no subscriptions means every image")

	reply, _ = client.routeMessage(Message{Type: "shout"})
	assert.Equal(t, MESSAGE_TYPE_ERROR, reply.Type)
}

func TestManager_UnregisterClosesSend(t *testing.T) {
	manager, _ := newTestManager(t)
	client := connect(t, manager)

	manager.unregister(client)
	require.Eventually(t, func() bool { return manager.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-client.send
	assert.False(t, open)
	assert.False(t, manager.sendTo(client, Message{Type: MESSAGE_TYPE_PONG}))

	manager.unregister(client)
}
