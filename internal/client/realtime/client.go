// Package realtime is the reconnecting WebSocket client for assistant push
// events. One Client holds one logical connection per session.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/models"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5

	writeWait = 10 * time.Second
	// Longer than the server's ping period so a healthy link never expires.
	readWait = 70 * time.Second
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrNoSession    = errors.New("realtime: session id is required")
)

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Handler receives decoded push envelopes.
type Handler func(msg models.WebSocketMessage)

// Client maintains the connection, reconnects with exponential backoff and
// routes incoming envelopes to subscribers.
type Client struct {
	baseURL     string
	dialer      Dialer
	logger      *zap.Logger
	baseDelay   time.Duration
	maxAttempts int

	mu        sync.Mutex
	conn      *websocket.Conn
	status    Status
	sessionID string
	attempts  int
	timer     *time.Timer
	gen       uint64
	runCtx    context.Context
	runCancel context.CancelFunc

	writeMu sync.Mutex

	subs     *subscribers
	statusMu sync.Mutex
	watchers []*statusWatcher
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseDelay sets the backoff base; attempt n waits base·2^n.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithMaxAttempts caps consecutive reconnect attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxAttempts = n
		}
	}
}

// New creates a disconnected client for the backend at baseURL. http and
// https URLs are mapped to ws and wss.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		dialer:      &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
		logger:      zap.NewNop(),
		baseDelay:   DefaultBaseDelay,
		maxAttempts: DefaultMaxAttempts,
		subs:        newSubscribers(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the connection for sessionID, replacing any existing one. It
// returns once the socket is open or the dial has failed; a failed dial still
// schedules reconnect attempts.
func (c *Client) Connect(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	endpoint, err := c.endpoint(sessionID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.resetLocked()
	c.gen++
	gen := c.gen
	c.sessionID = sessionID
	c.attempts = 0
	c.status = StatusConnecting
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	runCtx := c.runCtx
	c.mu.Unlock()

	c.publish(StatusEvent{Status: StatusConnecting})

	dialCtx, cancel := mergeCancel(ctx, runCtx)
	defer cancel()

	if err := c.dial(dialCtx, gen, endpoint); err != nil {
		c.logger.Warn("websocket connect failed", zap.String("session_id", sessionID), zap.Error(err))
		c.dropped(gen, err)
		return err
	}
	return nil
}

// Disconnect cancels any pending reconnect and closes the transport.
// Subscriptions are kept.
func (c *Client) Disconnect() {
	c.mu.Lock()
	wasIdle := c.status == StatusDisconnected && c.conn == nil && c.timer == nil
	c.resetLocked()
	c.gen++
	c.status = StatusDisconnected
	c.attempts = 0
	c.mu.Unlock()

	if !wasIdle {
		c.logger.Debug("websocket disconnected")
		c.publish(StatusEvent{Status: StatusDisconnected})
	}
}

// resetLocked stops the timer, cancels in-flight dials and closes the socket.
func (c *Client) resetLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	if c.conn != nil {
		conn := c.conn
		c.conn = nil
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// Status returns the current state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// SessionID returns the session the client was last connected for.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SendMessage writes one envelope. It fails with ErrNotConnected while the
// socket is not open.
func (c *Client) SendMessage(msg models.WebSocketMessage) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Warn("websocket not connected, message dropped", zap.String("type", msg.Type))
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("realtime: write %s: %w", msg.Type, err)
	}
	return nil
}

// SendChat sends a chat_message envelope with the given content.
func (c *Client) SendChat(content string) error {
	msg, err := models.NewWebSocketMessage(models.WSChatMessage, models.InboundChat{Content: content})
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// Ping asks the server for a pong envelope.
func (c *Client) Ping() error {
	return c.SendMessage(models.WebSocketMessage{Type: models.WSPing})
}

func (c *Client) dial(ctx context.Context, gen uint64, endpoint string) error {
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime: dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return fmt.Errorf("realtime: dial %s: %w", endpoint, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close()
		return context.Canceled
	}
	c.conn = conn
	c.status = StatusConnected
	c.attempts = 0
	c.mu.Unlock()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	c.logger.Info("websocket connected", zap.String("url", endpoint))
	c.publish(StatusEvent{Status: StatusConnected})

	go c.readLoop(gen, conn)
	return nil
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := gen == c.gen && c.conn == conn
			if current {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			if current {
				c.logger.Info("websocket closed", zap.Error(err))
				c.dropped(gen, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		c.dispatch(data)
	}
}

// dropped schedules the next reconnect attempt, or enters Failed when the
// attempts are used up.
func (c *Client) dropped(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.status = StatusFailed
		attempts := c.attempts
		if c.runCancel != nil {
			c.runCancel()
			c.runCancel = nil
		}
		c.mu.Unlock()

		c.logger.Error("websocket reconnect attempts exhausted",
			zap.Int("attempts", attempts), zap.Error(cause))
		c.publish(StatusEvent{Status: StatusFailed, Attempt: attempts, Err: cause})
		return
	}

	c.attempts++
	attempt := c.attempts
	delay := c.baseDelay << attempt
	c.status = StatusReconnecting
	c.mu.Unlock()

	c.logger.Info("websocket reconnect scheduled",
		zap.Int("attempt", attempt), zap.Duration("delay", delay))
	c.publish(StatusEvent{Status: StatusReconnecting, Attempt: attempt, Delay: delay, Err: cause})

	// Armed after publishing so listeners see Reconnecting before the attempt.
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.status != StatusReconnecting {
		return
	}
	c.timer = time.AfterFunc(delay, func() { c.reconnect(gen, attempt) })
}

func (c *Client) reconnect(gen uint64, attempt int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.status = StatusConnecting
	runCtx := c.runCtx
	sessionID := c.sessionID
	c.mu.Unlock()

	endpoint, err := c.endpoint(sessionID)
	if err != nil {
		c.dropped(gen, err)
		return
	}

	c.publish(StatusEvent{Status: StatusConnecting, Attempt: attempt})
	if err := c.dial(runCtx, gen, endpoint); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn("websocket reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		c.dropped(gen, err)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg models.WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("malformed websocket message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	for _, s := range c.subs.snapshot(msg.Type) {
		if !s.active() {
			continue
		}
		s.fn(msg)
	}
}

func (c *Client) endpoint(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("realtime: invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime: unsupported url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(sessionID)
	return u.String(), nil
}

// mergeCancel returns a context that ends when either parent does.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
