package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/presence"
)

const (
	sendBufferSize = 64
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
)

// Socket is the subset of *websocket.Conn used by the hub.
type Socket interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Client is one live push connection of a user.
type Client struct {
	hub    *Hub
	conn   Socket
	info   ConnInfo
	send   chan models.Envelope
	closed chan struct{}
	once   sync.Once
}

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo {
	return c.info
}

// Hub fans push events out to every connection of a user and keeps the
// presence registry in step with connection lifecycles.
type Hub struct {
	registry presence.Registry
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[int]map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub(registry presence.Registry, log *zap.Logger) *Hub {
	if registry == nil {
		registry = presence.NewMemoryRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		registry: registry,
		log:      log.With(zap.String("component", "ws_hub")),
		clients:  make(map[int]map[*Client]struct{}),
	}
}

// Register adds conn for info.UserID, starts its writer and broadcasts the
// new presence snapshot.
func (h *Hub) Register(ctx context.Context, conn Socket, info ConnInfo) *Client {
	client := &Client{
		hub:    h,
		conn:   conn,
		info:   info,
		send:   make(chan models.Envelope, sendBufferSize),
		closed: make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.clients[info.UserID]; !ok {
		h.clients[info.UserID] = make(map[*Client]struct{})
	}
	h.clients[info.UserID][client] = struct{}{}
	h.mu.Unlock()

	observability.IncWSActive()
	if _, err := h.registry.Connect(ctx, info.UserID); err != nil {
		h.log.Warn("presence connect failed", zap.Int("user_id", info.UserID), zap.Error(err))
	}
	h.log.Debug("client connected", zap.Int("user_id", info.UserID), zap.String("conn_id", info.ConnID))

	go client.writer()
	h.BroadcastPresence(ctx)
	return client
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if conns, ok := h.clients[client.info.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.info.UserID)
		}
	}
	h.mu.Unlock()

	observability.DecWSActive()
	ctx := context.Background()
	if _, err := h.registry.Disconnect(ctx, client.info.UserID); err != nil {
		h.log.Warn("presence disconnect failed", zap.Int("user_id", client.info.UserID), zap.Error(err))
	}
	h.log.Debug("client disconnected", zap.Int("user_id", client.info.UserID), zap.String("conn_id", client.info.ConnID))
	h.BroadcastPresence(ctx)
}

// SendToUser queues event for every connection of userID and returns how
// many connections accepted it. Full buffers drop the frame.
func (h *Hub) SendToUser(userID int, event string, payload interface{}) int {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		h.log.Error("encode push event", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for client := range h.clients[userID] {
		if client.enqueue(env) {
			delivered++
		}
	}
	if delivered > 0 {
		observability.IncWSEvent("out", event)
	}
	return delivered
}

// Broadcast queues event for every connected client.
func (h *Hub) Broadcast(event string, payload interface{}) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		h.log.Error("encode push event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.clients {
		for client := range conns {
			client.enqueue(env)
		}
	}
	observability.IncWSEvent("out", event)
}

// BroadcastPresence sends the full online-user snapshot to everyone.
func (h *Hub) BroadcastPresence(ctx context.Context) {
	online, err := h.registry.Online(ctx)
	if err != nil {
		h.log.Warn("presence snapshot failed", zap.Error(err))
		return
	}
	observability.SetOnlineUsers(len(online))
	h.Broadcast(models.EventOnlineUsers, online)
}

// ConnectionCount reports how many live connections userID has on this node.
func (h *Hub) ConnectionCount(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ReadLoop decodes inbound envelopes until the connection fails, then
// unregisters the client. It returns the terminating error.
func (c *Client) ReadLoop(handle func(*Client, models.Envelope)) error {
	defer c.Close()
	for {
		var env models.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return err
		}
		if env.Event == "" {
			c.hub.log.Debug("dropping frame without event", zap.String("conn_id", c.info.ConnID))
			continue
		}
		observability.IncWSEvent("in", env.Event)
		handle(c, env)
	}
}

// Decode unmarshals an inbound payload.
func Decode(env models.Envelope, v interface{}) error {
	return json.Unmarshal(env.Data, v)
}

// Close unregisters the client and closes the socket. Safe to call twice.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.hub.unregister(c)
		_ = c.conn.Close()
	})
}

func (c *Client) enqueue(env models.Envelope) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		observability.IncWSDropped()
		c.hub.log.Warn("dropping push frame for slow client", zap.Int("user_id", c.info.UserID), zap.String("event", env.Event))
		return false
	}
}

func (c *Client) writer() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case env := <-c.send:
			if err := c.conn.WriteJSON(env); err != nil {
				c.hub.log.Debug("write loop terminated", zap.String("conn_id", c.info.ConnID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
