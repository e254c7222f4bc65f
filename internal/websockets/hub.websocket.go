package websockets

import (
	"context"
	"sync"
)

type Hub struct {
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	clients    map[string]*Client
	mutex      sync.RWMutex
}

func (h *Hub) run(ctx context.Context, m *Manager) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			m.registerClient(client)

		case client := <-h.unregister:
			m.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message, m)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.hub.mutex.Lock()
	defer m.hub.mutex.Unlock()

	m.hub.clients[client.ID] = client
	m.log.Function("registerClient").Info("Client registered", "clientID", client.ID, "clients", len(m.hub.clients))
}

// unregisterClient is safe to call twice for the same client; readPump and
// HandleWebSocket both unregister on exit.
func (m *Manager) unregisterClient(client *Client) {
	m.hub.mutex.Lock()
	defer m.hub.mutex.Unlock()

	if _, ok := m.hub.clients[client.ID]; !ok {
		return
	}
	delete(m.hub.clients, client.ID)
	close(client.send)

	m.log.Function("unregisterClient").Info("Client unregistered", "clientID", client.ID)
}

func (h *Hub) broadcastMessage(message Message, m *Manager) {
	log := m.log.Function("broadcastMessage")

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sent := 0
	for _, client := range h.clients {
		if message.ImageID != 0 && !client.wants(message.ImageID) {
			continue
		}

		select {
		case client.send <- message:
			sent++
		default:
			log.Warn("Client too slow, dropping message", "clientID", client.ID, "messageID", message.ID)
		}
	}

	log.Debug("Broadcast complete", "messageID", message.ID, "sentTo", sent, "totalClients", len(h.clients))
}
