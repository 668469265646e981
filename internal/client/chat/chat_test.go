package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-assistant/internal/client/api"
	"github.com/a3tai/pdf-assistant/internal/client/realtime"
	"github.com/a3tai/pdf-assistant/internal/models"
)

type fakeBackend struct {
	mu       sync.Mutex
	sent     []string
	send     func(content string) (*models.ChatMessage, error)
	history  []models.ChatMessage
	histErr  error
	cleared  int
	clearErr error
}

func (f *fakeBackend) SendChat(_ context.Context, sessionID, content string) (*models.ChatMessage, error) {
	f.mu.Lock()
	f.sent = append(f.sent, content)
	n := len(f.sent)
	send := f.send
	f.mu.Unlock()

	if send != nil {
		return send(content)
	}
	return &models.ChatMessage{
		ID:          fmt.Sprintf("reply-%d", n),
		Content:     "ok: " + content,
		MessageType: models.MessageAssistant,
		SessionID:   sessionID,
	}, nil
}

func (f *fakeBackend) ChatHistory(context.Context, string) ([]models.ChatMessage, error) {
	return f.history, f.histErr
}

func (f *fakeBackend) ClearChatHistory(context.Context, string) error {
	f.cleared++
	return f.clearErr
}

func (f *fakeBackend) contents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type staticSession string

func (s staticSession) ID() (string, error) { return string(s), nil }

type fakeSubscriber struct {
	handlers map[string]realtime.Handler
}

func (f *fakeSubscriber) Subscribe(msgType string, fn realtime.Handler) func() {
	if f.handlers == nil {
		f.handlers = make(map[string]realtime.Handler)
	}
	f.handlers[msgType] = fn
	return func() { delete(f.handlers, msgType) }
}

func (f *fakeSubscriber) push(t *testing.T, msgType string, data any) {
	t.Helper()
	env, err := models.NewWebSocketMessage(msgType, data)
	require.NoError(t, err)
	if fn, ok := f.handlers[msgType]; ok {
		fn(env)
	}
}

func fixedClock() func() time.Time {
	at := time.UnixMilli(1_700_000_000_000)
	return func() time.Time { return at }
}

func types(msgs []models.ChatMessage) []models.MessageType {
	out := make([]models.MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageType
	}
	return out
}

func TestSendAppendsOptimisticMessage(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, staticSession("s1"), WithClock(fixedClock()))

	backend.send = func(content string) (*models.ChatMessage, error) {
		msgs := c.Messages()
		require.Len(t, msgs, 1, "user message must be visible before the reply")
		assert.Equal(t, models.MessageUser, msgs[0].MessageType)
		assert.Equal(t, "merge everything", msgs[0].Content)
		return &models.ChatMessage{ID: "a1", Content: "done", MessageType: models.MessageAssistant}, nil
	}

	require.NoError(t, c.Send(context.Background(), "  merge everything  "))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, strconv.FormatInt(1_700_000_000_000, 10), msgs[0].ID)
	assert.Equal(t, "s1", msgs[0].SessionID)
	assert.Equal(t, "done", msgs[1].Content)
}

func TestSendIgnoresBlankInputAndMissingSession(t *testing.T) {
	backend := &fakeBackend{}

	c := New(backend, staticSession("s1"))
	require.NoError(t, c.Send(context.Background(), "   \n\t"))
	assert.Empty(t, c.Messages())

	c = New(backend, staticSession(""))
	require.NoError(t, c.Send(context.Background(), "hello"))
	assert.Empty(t, c.Messages())

	c = New(backend, nil)
	require.NoError(t, c.Send(context.Background(), "hello"))
	assert.Empty(t, c.Messages())

	assert.Empty(t, backend.contents(), "no request should be made")
}

func TestSendFailureAppendsRetryableError(t *testing.T) {
	backend := &fakeBackend{
		send: func(string) (*models.ChatMessage, error) {
			return nil, &api.APIError{StatusCode: 422, Body: []byte(`{"detail":[{"msg":"a"},{"msg":"b"}]}`)}
		},
	}
	c := New(backend, staticSession("s1"))

	err := c.Send(context.Background(), "hello")
	require.Error(t, err)

	msgs := c.Messages()
	assert.Equal(t, []models.MessageType{models.MessageUser, models.MessageError}, types(msgs))
	assert.Equal(t, "a, b", msgs[1].Content)
	assert.True(t, msgs[1].Retryable)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestRetry(t *testing.T) {
	fail := true
	backend := &fakeBackend{}
	backend.send = func(content string) (*models.ChatMessage, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return &models.ChatMessage{ID: "r-" + content, Content: "ok", MessageType: models.MessageAssistant}, nil
	}
	c := New(backend, staticSession("s1"))
	ctx := context.Background()

	require.Error(t, c.Send(ctx, "one"))
	require.Error(t, c.Send(ctx, "two"))
	assert.Equal(t, []models.MessageType{
		models.MessageUser, models.MessageError, models.MessageUser, models.MessageError,
	}, types(c.Messages()))

	fail = false
	require.NoError(t, c.Retry(ctx))

	msgs := c.Messages()
	assert.Equal(t, []models.MessageType{
		models.MessageUser, models.MessageUser, models.MessageAssistant,
	}, types(msgs))
	assert.Equal(t, "r-two", msgs[2].ID)
	assert.Equal(t, []string{"one", "two", "two"}, backend.contents())
}

func TestRetryWithoutUserMessage(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, staticSession("s1"))
	require.NoError(t, c.Retry(context.Background()))
	assert.Empty(t, backend.contents())
}

func TestClearAndLoad(t *testing.T) {
	backend := &fakeBackend{
		history: []models.ChatMessage{
			{ID: "1", Content: "hi", MessageType: models.MessageUser},
			{ID: "2", Content: "hello", MessageType: models.MessageAssistant},
		},
	}
	c := New(backend, staticSession("s1"))
	ctx := context.Background()

	require.NoError(t, c.Load(ctx))
	assert.Len(t, c.Messages(), 2)

	require.NoError(t, c.Clear(ctx))
	assert.Empty(t, c.Messages())
	assert.Equal(t, 1, backend.cleared)

	// Failures leave the transcript untouched.
	require.NoError(t, c.Load(ctx))
	backend.clearErr = errors.New("down")
	assert.Error(t, c.Clear(ctx))
	assert.Len(t, c.Messages(), 2)

	backend.histErr = errors.New("down")
	c.Reset()
	assert.Error(t, c.Load(ctx))
	assert.Empty(t, c.Messages())
}

func TestOnChange(t *testing.T) {
	c := New(&fakeBackend{}, staticSession("s1"))

	var lengths []int
	dispose := c.OnChange(func(msgs []models.ChatMessage) { lengths = append(lengths, len(msgs)) })

	require.NoError(t, c.Send(context.Background(), "hi"))
	assert.Equal(t, []int{1, 2}, lengths)

	dispose()
	c.Reset()
	assert.Equal(t, []int{1, 2}, lengths)
}

func TestAttachRealtime(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, staticSession("s1"))
	sub := &fakeSubscriber{}
	detach := c.AttachRealtime(sub)

	require.NoError(t, c.Send(context.Background(), "hi"))
	require.Len(t, c.Messages(), 2)

	// The reply already arrived over HTTP.
	sub.push(t, models.WSChatMessage, models.ChatMessage{ID: "reply-1", SessionID: "s1", MessageType: models.MessageAssistant})
	assert.Len(t, c.Messages(), 2)

	sub.push(t, models.WSChatMessage, models.ChatMessage{ID: "pushed", Content: "done", SessionID: "s1", MessageType: models.MessageAssistant})
	assert.Len(t, c.Messages(), 3)

	sub.push(t, models.WSChatMessage, models.ChatMessage{ID: "elsewhere", SessionID: "s2"})
	sub.push(t, models.WSChatMessage, nil)
	assert.Len(t, c.Messages(), 3)

	detach()
	sub.push(t, models.WSChatMessage, models.ChatMessage{ID: "late", SessionID: "s1"})
	assert.Len(t, c.Messages(), 3)
}

func TestPushBeforeReplyIsNotDuplicated(t *testing.T) {
	sub := &fakeSubscriber{}
	backend := &fakeBackend{}
	backend.send = func(string) (*models.ChatMessage, error) {
		reply := models.ChatMessage{ID: "r1", Content: "done", MessageType: models.MessageAssistant, SessionID: "s1"}
		sub.push(t, models.WSChatMessage, reply)
		return &reply, nil
	}
	c := New(backend, staticSession("s1"))
	c.AttachRealtime(sub)

	require.NoError(t, c.Send(context.Background(), "hi"))
	assert.Len(t, c.Messages(), 2)
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	var inFlight, peak atomic.Int32
	backend := &fakeBackend{}
	backend.send = func(content string) (*models.ChatMessage, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return &models.ChatMessage{ID: "r-" + content, MessageType: models.MessageAssistant}, nil
	}
	c := New(backend, staticSession("s1"), WithClock(fixedClock()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Send(context.Background(), fmt.Sprintf("msg %d", i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	msgs := c.Messages()
	require.Len(t, msgs, 10)

	var users []string
	ids := make(map[string]bool)
	for i, m := range msgs {
		if m.MessageType != models.MessageUser {
			continue
		}
		users = append(users, m.Content)
		assert.False(t, ids[m.ID], "local ids must be unique")
		ids[m.ID] = true

		replied := false
		for _, later := range msgs[i+1:] {
			if later.ID == "r-"+m.Content {
				replied = true
			}
		}
		assert.True(t, replied, "reply to %q follows it", m.Content)
	}

	assert.Equal(t, users, backend.contents(), "requests go out in transcript order")
}

func TestQueuedSendShowsUserMessageImmediately(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	backend := &fakeBackend{}
	backend.send = func(content string) (*models.ChatMessage, error) {
		started <- struct{}{}
		if content == "first" {
			<-release
		}
		return &models.ChatMessage{ID: "r-" + content, MessageType: models.MessageAssistant}, nil
	}
	c := New(backend, staticSession("s1"), WithClock(fixedClock()))

	errs := make(chan error, 2)
	go func() { errs <- c.Send(context.Background(), "first") }()
	<-started

	go func() { errs <- c.Send(context.Background(), "second") }()
	require.Eventually(t, func() bool {
		return len(c.Messages()) == 2
	}, time.Second, time.Millisecond)

	msgs := c.Messages()
	assert.Equal(t, []models.MessageType{models.MessageUser, models.MessageUser}, types(msgs))
	assert.Equal(t, "second", msgs[1].Content)

	assert.Equal(t, []string{"first"}, backend.contents(), "second request waits for the first reply")

	close(release)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	msgs = c.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"first", "second", "", ""}, []string{
		msgs[0].Content, msgs[1].Content, msgs[2].Content, msgs[3].Content,
	})
	assert.Equal(t, "r-first", msgs[2].ID)
	assert.Equal(t, "r-second", msgs[3].ID)
}

func TestQueuedSendCanceled(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	backend := &fakeBackend{}
	backend.send = func(content string) (*models.ChatMessage, error) {
		if content == "first" {
			started <- struct{}{}
			<-release
		}
		return &models.ChatMessage{ID: "r-" + content, MessageType: models.MessageAssistant}, nil
	}
	c := New(backend, staticSession("s1"), WithClock(fixedClock()))

	first := make(chan error, 1)
	go func() { first <- c.Send(context.Background(), "first") }()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Send(ctx, "second")
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-first)

	// The queue keeps moving after a canceled request.
	require.NoError(t, c.Send(context.Background(), "third"))

	assert.Equal(t, []string{"first", "third"}, backend.contents())

	msgs := c.Messages()
	require.Len(t, msgs, 6)
	assert.Equal(t, models.MessageError, msgs[2].MessageType)
	assert.True(t, msgs[2].Retryable)
}
