// Package ws keeps one WebSocket connection per client id and pushes chat
// messages, operation updates and errors to it.
package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/models"
)

const greeting = "Connected to PDF Assistant"

// Hub tracks connected clients. Run must be running for connections to be
// accepted.
type Hub struct {
	clients    map[string]*client
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex

	handlerMu sync.RWMutex
	onChat    ChatHandler
	runCtx    context.Context

	logger *zap.Logger
}

// NewHub creates an idle hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// OnChat sets the handler for inbound chat messages.
func (h *Hub) OnChat(fn ChatHandler) {
	h.handlerMu.Lock()
	h.onChat = fn
	h.handlerMu.Unlock()
}

func (h *Hub) chatHandler() ChatHandler {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	return h.onChat
}

func (h *Hub) ctx() context.Context {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	if h.runCtx == nil {
		return context.Background()
	}
	return h.runCtx
}

// Run processes registrations until ctx is canceled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) error {
	h.handlerMu.Lock()
	h.runCtx = ctx
	h.handlerMu.Unlock()

	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[c.id]; ok {
				close(old.send)
			}
			h.clients[c.id] = c
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client_id", c.id))

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.id]; ok && cur == c {
				delete(h.clients, c.id)
				close(c.send)
				h.logger.Info("client disconnected", zap.String("client_id", c.id))
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return nil
		}
	}
}

// Handler upgrades GET /ws/:clientId requests.
func (h *Hub) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return websocket.New(func(conn *websocket.Conn) {
			h.Serve(conn, conn.Params("clientId"))
		})(c)
	}
}

// Serve runs one connection until it closes.
func (h *Hub) Serve(conn *websocket.Conn, clientID string) {
	c := &client{hub: h, id: clientID, conn: conn, send: make(chan []byte, sendBuffer)}

	hello, err := json.Marshal(models.WebSocketMessage{
		Type:     models.WSConnection,
		Message:  greeting,
		ClientID: clientID,
	})
	if err == nil {
		c.send <- hello
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

func (h *Hub) detach(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// send queues an envelope for clientID without blocking.
func (h *Hub) send(clientID string, msg models.WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[clientID]
	if !ok {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		h.logger.Warn("send buffer full, dropping message",
			zap.String("client_id", clientID), zap.String("type", msg.Type))
		return ErrBufferFull
	}
}

// SendChatMessage pushes a transcript entry.
func (h *Hub) SendChatMessage(clientID string, msg models.ChatMessage) error {
	env, err := models.NewWebSocketMessage(models.WSChatMessage, msg)
	if err != nil {
		return err
	}
	return h.send(clientID, env)
}

// SendOperationUpdate pushes operation progress.
func (h *Hub) SendOperationUpdate(clientID string, update models.OperationUpdate) error {
	env, err := models.NewWebSocketMessage(models.WSOperationUpdate, update)
	if err != nil {
		return err
	}
	return h.send(clientID, env)
}

// SendError pushes an error envelope.
func (h *Hub) SendError(clientID, message string) error {
	return h.send(clientID, models.WebSocketMessage{Type: models.WSError, Message: message})
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(msg models.WebSocketMessage) {
	for _, id := range h.ConnectedClients() {
		if err := h.send(id, msg); err != nil {
			h.logger.Debug("broadcast skipped client", zap.String("client_id", id), zap.Error(err))
		}
	}
}

// IsConnected reports whether clientID has an open connection.
func (h *Hub) IsConnected(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

// ConnectedClients returns the connected client ids in sorted order.
func (h *Hub) ConnectedClients() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
