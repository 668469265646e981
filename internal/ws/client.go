package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// client is one WebSocket connection registered with the hub.
type client struct {
	hub  *Hub
	id   string
	conn *websocket.Conn
	send chan []byte
}

// readPump decodes inbound envelopes until the connection fails.
func (c *client) readPump() {
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		c.handle(data)
	}
}

func (c *client) handle(data []byte) {
	var msg models.WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Debug("invalid websocket message", zap.String("client_id", c.id), zap.Error(err))
		_ = c.hub.SendError(c.id, "Invalid message format")
		return
	}

	switch msg.Type {
	case models.WSPing:
		_ = c.hub.send(c.id, models.WebSocketMessage{Type: models.WSPong})

	case models.WSChatMessage:
		var in models.InboundChat
		if err := msg.DecodeData(&in); err != nil || in.Content == "" {
			_ = c.hub.SendError(c.id, "chat_message requires data.content")
			return
		}
		handler := c.hub.chatHandler()
		if handler == nil {
			_ = c.hub.SendError(c.id, "Chat is not available")
			return
		}
		// Operations can outlast the pong deadline, so they run off the read loop.
		go func(content string) {
			if err := handler(c.hub.ctx(), c.id, content); err != nil {
				_ = c.hub.SendError(c.id, err.Error())
			}
		}(in.Content)

	default:
		_ = c.hub.SendError(c.id, "Unknown message type: "+msg.Type)
	}
}

// writePump writes queued frames, one envelope per frame, and keeps the
// connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ChatHandler receives chat messages sent over a connection. A returned
// error is reported to the client as an error envelope.
type ChatHandler func(ctx context.Context, clientID, content string) error

var (
	// ErrNotConnected is returned when pushing to an unknown client.
	ErrNotConnected = errors.New("client not connected")
	// ErrBufferFull is returned when a client is not draining its queue.
	ErrBufferFull = errors.New("client send buffer full")
)
