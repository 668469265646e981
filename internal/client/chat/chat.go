// Package chat holds the client-side transcript and drives it through the
// REST client: optimistic sends, retry of failed sends, clear and reload.
package chat

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/client/api"
	"github.com/a3tai/pdf-assistant/internal/client/realtime"
	"github.com/a3tai/pdf-assistant/internal/models"
)

// Backend is the subset of the REST client the transcript needs.
type Backend interface {
	SendChat(ctx context.Context, sessionID, content string) (*models.ChatMessage, error)
	ChatHistory(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	ClearChatHistory(ctx context.Context, sessionID string) error
}

// Sessions supplies the current session id.
type Sessions interface {
	ID() (string, error)
}

// Subscriber delivers push envelopes; *realtime.Client satisfies it.
type Subscriber interface {
	Subscribe(msgType string, fn realtime.Handler) func()
}

// Chat is the transcript of the current session.
type Chat struct {
	backend  Backend
	sessions Sessions
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	messages  []models.ChatMessage
	lastID    int64
	// tail is closed when the most recently queued request finishes. Send
	// and Retry deliver one at a time, in the order they were issued.
	tail      chan struct{}
	observers map[int]func([]models.ChatMessage)
	nextObs   int
}

// Option configures a Chat.
type Option func(*Chat)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Chat) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the clock used for local ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Chat) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty transcript.
func New(backend Backend, sessions Sessions, opts ...Option) *Chat {
	c := &Chat{
		backend:   backend,
		sessions:  sessions,
		logger:    zap.NewNop(),
		now:       time.Now,
		observers: make(map[int]func([]models.ChatMessage)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send appends content as a user message right away, then the assistant's
// reply. When the request fails a retryable error message is appended
// instead and the error is returned. Blank input or a missing session is a
// no-op.
func (c *Chat) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	sessionID, ok := c.session()
	if !ok {
		return nil
	}

	// The user message shows up at once, even while an earlier request is
	// still waiting for its reply.
	c.mu.Lock()
	c.messages = append(c.messages, models.ChatMessage{
		ID:          c.localIDLocked(),
		Content:     content,
		MessageType: models.MessageUser,
		Timestamp:   c.now(),
		SessionID:   sessionID,
	})
	prev, done := c.queueLocked()
	c.mu.Unlock()
	c.notify()

	if err := waitTurn(ctx, prev, done); err != nil {
		c.appendError(sessionID, err)
		return err
	}
	defer close(done)
	return c.deliver(ctx, sessionID, content)
}

// Retry drops every error message and re-sends the latest user message
// without adding it again.
func (c *Chat) Retry(ctx context.Context) error {
	sessionID, ok := c.session()
	if !ok {
		return nil
	}

	c.mu.Lock()
	prev, done := c.queueLocked()
	c.mu.Unlock()
	if err := waitTurn(ctx, prev, done); err != nil {
		return err
	}
	defer close(done)

	c.mu.Lock()
	content := ""
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].MessageType == models.MessageUser {
			content = c.messages[i].Content
			break
		}
	}
	if content == "" {
		c.mu.Unlock()
		return nil
	}
	kept := make([]models.ChatMessage, 0, len(c.messages))
	for _, m := range c.messages {
		if m.MessageType != models.MessageError {
			kept = append(kept, m)
		}
	}
	c.messages = kept
	c.mu.Unlock()
	c.notify()

	return c.deliver(ctx, sessionID, content)
}

// Clear empties the transcript on the server, then locally.
func (c *Chat) Clear(ctx context.Context) error {
	sessionID, ok := c.session()
	if !ok {
		return nil
	}
	if err := c.backend.ClearChatHistory(ctx, sessionID); err != nil {
		c.logger.Warn("failed to clear chat history", zap.Error(err))
		return err
	}
	c.replace(nil)
	return nil
}

// Load replaces the local transcript with the server's.
func (c *Chat) Load(ctx context.Context) error {
	sessionID, ok := c.session()
	if !ok {
		return nil
	}
	history, err := c.backend.ChatHistory(ctx, sessionID)
	if err != nil {
		c.logger.Warn("failed to load chat history", zap.Error(err))
		return err
	}
	c.replace(history)
	return nil
}

// Reset discards the local transcript, e.g. after switching sessions.
func (c *Chat) Reset() {
	c.replace(nil)
}

// Messages returns a copy of the transcript.
func (c *Chat) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnChange registers fn to receive the transcript after every change and
// returns its disposer.
func (c *Chat) OnChange(fn func([]models.ChatMessage)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// AttachRealtime appends pushed chat messages that are not in the transcript
// yet. The returned function detaches it.
func (c *Chat) AttachRealtime(sub Subscriber) func() {
	return sub.Subscribe(models.WSChatMessage, func(env models.WebSocketMessage) {
		var msg models.ChatMessage
		if err := env.DecodeData(&msg); err != nil || msg.ID == "" {
			c.logger.Warn("ignoring malformed chat push", zap.Error(err))
			return
		}
		if current, ok := c.session(); ok && msg.SessionID != "" && msg.SessionID != current {
			return
		}
		c.appendIfMissing(msg)
	})
}

func (c *Chat) deliver(ctx context.Context, sessionID, content string) error {
	reply, err := c.backend.SendChat(ctx, sessionID, content)
	if err != nil {
		c.logger.Debug("chat send failed", zap.Error(err))
		c.appendError(sessionID, err)
		return err
	}
	c.appendIfMissing(*reply)
	return nil
}

func (c *Chat) appendError(sessionID string, err error) {
	c.append(models.ChatMessage{
		ID:          c.localID(),
		Content:     api.ErrorMessage(err),
		MessageType: models.MessageError,
		Timestamp:   c.now(),
		SessionID:   sessionID,
		Retryable:   true,
	})
}

// queueLocked reserves the next delivery turn. prev is closed once every
// earlier turn is over; the caller must close done when its own turn ends.
func (c *Chat) queueLocked() (prev <-chan struct{}, done chan struct{}) {
	if c.tail == nil {
		c.tail = make(chan struct{})
		close(c.tail)
	}
	prev, done = c.tail, make(chan struct{})
	c.tail = done
	return prev, done
}

// waitTurn blocks until prev is closed. When ctx ends first, the turn is
// handed on as soon as prev closes so later requests keep their order.
func waitTurn(ctx context.Context, prev <-chan struct{}, done chan struct{}) error {
	select {
	case <-prev:
		return nil
	case <-ctx.Done():
		go func() {
			<-prev
			close(done)
		}()
		return ctx.Err()
	}
}

func (c *Chat) session() (string, bool) {
	if c.sessions == nil {
		return "", false
	}
	id, err := c.sessions.ID()
	if err != nil {
		c.logger.Warn("no session id", zap.Error(err))
		return "", false
	}
	return id, id != ""
}

// localID is the Unix-millis timestamp, bumped when two ids share a millisecond.
func (c *Chat) localID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localIDLocked()
}

func (c *Chat) localIDLocked() string {
	id := c.now().UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id
	return strconv.FormatInt(id, 10)
}

func (c *Chat) append(msg models.ChatMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.notify()
}

func (c *Chat) appendIfMissing(msg models.ChatMessage) {
	c.mu.Lock()
	for _, m := range c.messages {
		if m.ID == msg.ID {
			c.mu.Unlock()
			return
		}
	}
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.notify()
}

func (c *Chat) replace(msgs []models.ChatMessage) {
	c.mu.Lock()
	c.messages = append([]models.ChatMessage(nil), msgs...)
	c.mu.Unlock()
	c.notify()
}

func (c *Chat) notify() {
	c.mu.Lock()
	snapshot := c.snapshotLocked()
	observers := make([]func([]models.ChatMessage), 0, len(c.observers))
	for i := 0; i < c.nextObs; i++ {
		if fn, ok := c.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

func (c *Chat) snapshotLocked() []models.ChatMessage {
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}
