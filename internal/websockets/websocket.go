package websockets

import (
	"context"
	"sync"
	"time"

	"imagevariants/internal/events"
	"imagevariants/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	MESSAGE_TYPE_PING        = "ping"
	MESSAGE_TYPE_PONG        = "pong"
	MESSAGE_TYPE_SUBSCRIBE   = "subscribe"
	MESSAGE_TYPE_UNSUBSCRIBE = "unsubscribe"
	MESSAGE_TYPE_EVENT       = "event"
	MESSAGE_TYPE_ERROR       = "error"
	MESSAGE_TYPE_WELCOME     = "welcome"
	PING_INTERVAL            = 30 * time.Second
	PONG_TIMEOUT             = 60 * time.Second
	WRITE_TIMEOUT            = 10 * time.Second
	MAX_MESSAGE_SIZE         = 64 * 1024
	SEND_CHANNEL_SIZE        = 64
	BROADCAST_CHANNEL_SIZE   = 256
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Channel   string         `json:"channel,omitempty"`
	Action    string         `json:"action,omitempty"`
	ImageID   int            `json:"imageId,omitempty"`
	ImageIDs  []int          `json:"imageIds,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Client struct {
	ID         string
	Connection *websocket.Conn
	Manager    *Manager
	send       chan Message

	mu            sync.RWMutex
	subscriptions map[int]bool
}

// Manager relays image events from the event bus to connected websocket
// clients. A client receives every event until it subscribes to specific
// image ids.
type Manager struct {
	hub      *Hub
	log      logger.Logger
	eventBus *events.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(eventBus *events.EventBus) (*Manager, error) {
	log := logger.New("websockets")
	ctx, cancel := context.WithCancel(context.Background())

	manager := &Manager{
		hub: &Hub{
			broadcast:  make(chan Message, BROADCAST_CHANNEL_SIZE),
			register:   make(chan *Client),
			unregister: make(chan *Client),
			clients:    make(map[string]*Client),
		},
		log:      log,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
	}

	log.Function("New").Info("Starting websocket hub")
	go manager.hub.run(ctx, manager)

	if err := manager.subscribeToImageEvents(); err != nil {
		cancel()
		return nil, err
	}

	return manager, nil
}

func newClient(m *Manager, conn *websocket.Conn) *Client {
	return &Client{
		ID:            uuid.New().String(),
		Connection:    conn,
		Manager:       m,
		send:          make(chan Message, SEND_CHANNEL_SIZE),
		subscriptions: make(map[int]bool),
	}
}

func (m *Manager) HandleWebSocket(c *websocket.Conn) {
	log := m.log.Function("HandleWebSocket")
	client := newClient(m, c)

	welcome := Message{
		ID:        uuid.New().String(),
		Type:      MESSAGE_TYPE_WELCOME,
		Channel:   "system",
		Data:      map[string]any{"clientId": client.ID},
		Timestamp: time.Now(),
	}
	if err := c.WriteJSON(welcome); err != nil {
		log.Er("failed to send welcome", err)
		if err := c.Close(); err != nil {
			log.Er("failed to close connection", err)
		}
		return
	}

	m.hub.register <- client
	defer func() {
		log.Info("Client disconnected", "clientID", client.ID)
		m.unregister(client)
		if err := c.Close(); err != nil {
			log.Debug("connection already closed", "clientID", client.ID)
		}
	}()

	go client.readPump()
	client.writePump()
}

// BroadcastMessage queues message for every interested client. It never
// blocks; a full queue drops the message.
func (m *Manager) BroadcastMessage(message Message) {
	log := m.log.Function("BroadcastMessage")

	select {
	case m.hub.broadcast <- message:
	default:
		log.Warn("Broadcast channel is full, dropping message", "messageID", message.ID)
	}
}

// sendTo queues message for a registered client without blocking. It reports
// false when the client is gone or its queue is full.
func (m *Manager) sendTo(client *Client, message Message) bool {
	m.hub.mutex.RLock()
	defer m.hub.mutex.RUnlock()

	if _, ok := m.hub.clients[client.ID]; !ok {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

func (m *Manager) ClientCount() int {
	m.hub.mutex.RLock()
	defer m.hub.mutex.RUnlock()
	return len(m.hub.clients)
}

func (m *Manager) Close() error {
	m.cancel()
	return nil
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.hub.unregister <- client:
	case <-m.ctx.Done():
	}
}

func (c *Client) wants(imageID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[imageID]
}

func (c *Client) subscribe(ids []int, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if on {
			c.subscriptions[id] = true
		} else {
			delete(c.subscriptions, id)
		}
	}
}

func (c *Client) readPump() {
	log := c.Manager.log.Function("readPump")
	defer func() {
		c.Manager.unregister(c)
		_ = c.Connection.Close()
	}()

	c.Connection.SetReadLimit(MAX_MESSAGE_SIZE)
	if err := c.Connection.SetReadDeadline(time.Now().Add(PONG_TIMEOUT)); err != nil {
		log.Er("failed to set read deadline", err, "clientID", c.ID)
	}
	c.Connection.SetPongHandler(func(string) error {
		return c.Connection.SetReadDeadline(time.Now().Add(PONG_TIMEOUT))
	})

	for {
		var message Message
		if err := c.Connection.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				log.Er("Unexpected close error", err, "clientID", c.ID)
			}
			return
		}

		if reply, ok := c.routeMessage(message); ok && !c.Manager.sendTo(c, reply) {
			log.Warn("Dropping reply", "clientID", c.ID, "type", reply.Type)
		}
	}
}

// routeMessage applies a client message and returns the reply, if any.
func (c *Client) routeMessage(message Message) (Message, bool) {
	reply := Message{
		ID:        uuid.New().String(),
		Channel:   "system",
		Timestamp: time.Now(),
	}

	switch message.Type {
	case MESSAGE_TYPE_PING:
		reply.Type = MESSAGE_TYPE_PONG
	case MESSAGE_TYPE_SUBSCRIBE, MESSAGE_TYPE_UNSUBSCRIBE:
		ids := message.ImageIDs
		if message.ImageID > 0 {
			ids = append(ids, message.ImageID)
		}
		c.subscribe(ids, message.Type == MESSAGE_TYPE_SUBSCRIBE)
		reply.Type = message.Type
		reply.ImageIDs = ids
	default:
		c.Manager.log.Function("routeMessage").Warn("Unknown message type", "type", message.Type, "clientID", c.ID)
		reply.Type = MESSAGE_TYPE_ERROR
		reply.Data = map[string]any{"reason": "unknown message type"}
	}
	return reply, true
}

func (c *Client) writePump() {
	log := c.Manager.log.Function("writePump")

	ticker := time.NewTicker(PING_INTERVAL)
	defer func() {
		ticker.Stop()
		_ = c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.Connection.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT)); err != nil {
				log.Er("failed to set write deadline", err, "clientID", c.ID)
			}
			if !ok {
				_ = c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Connection.WriteJSON(message); err != nil {
				log.Er("WebSocket write error", err, "clientID", c.ID)
				return
			}

		case <-ticker.C:
			if err := c.Connection.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT)); err != nil {
				log.Er("failed to set write deadline for ping", err, "clientID", c.ID)
			}
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) subscribeToImageEvents() error {
	log := m.log.Function("subscribeToImageEvents")

	err := m.eventBus.Subscribe(events.IMAGES_CHANNEL, func(event events.Event) error {
		log.Debug("Relaying image event", "eventID", event.ID, "eventType", event.Type, "imageID", event.ImageID)

		m.BroadcastMessage(Message{
			ID:        event.ID,
			Type:      MESSAGE_TYPE_EVENT,
			Channel:   events.IMAGES_CHANNEL.String(),
			Action:    string(event.Type),
			ImageID:   event.ImageID,
			Data:      event.Data,
			Timestamp: event.Timestamp,
		})
		return nil
	})
	if err != nil {
		return log.Err("failed to subscribe to image events", err)
	}
	return nil
}
