package realtime

import (
	"sync"
	"sync/atomic"
)

type subscription struct {
	fn      Handler
	removed atomic.Bool
}

func (s *subscription) active() bool {
	return !s.removed.Load()
}

// subscribers keeps general handlers and per-type handlers in subscription
// order. Dispatch works on a snapshot so callbacks may (un)subscribe.
type subscribers struct {
	mu      sync.RWMutex
	general []*subscription
	typed   map[string][]*subscription
}

func newSubscribers() *subscribers {
	return &subscribers{typed: make(map[string][]*subscription)}
}

func (s *subscribers) add(msgType string, fn Handler, general bool) func() {
	sub := &subscription{fn: fn}

	s.mu.Lock()
	if general {
		s.general = append(s.general, sub)
	} else {
		s.typed[msgType] = append(s.typed[msgType], sub)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.removed.Store(true)
			s.mu.Lock()
			defer s.mu.Unlock()
			if general {
				s.general = without(s.general, sub)
				return
			}
			s.typed[msgType] = without(s.typed[msgType], sub)
			if len(s.typed[msgType]) == 0 {
				delete(s.typed, msgType)
			}
		})
	}
}

func (s *subscribers) snapshot(msgType string) []*subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*subscription, 0, len(s.general)+len(s.typed[msgType]))
	out = append(out, s.general...)
	return append(out, s.typed[msgType]...)
}

func (s *subscribers) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.general {
		sub.removed.Store(true)
	}
	for _, list := range s.typed {
		for _, sub := range list {
			sub.removed.Store(true)
		}
	}
	s.general = nil
	s.typed = make(map[string][]*subscription)
}

func without(list []*subscription, sub *subscription) []*subscription {
	out := make([]*subscription, 0, len(list))
	for _, s := range list {
		if s != sub {
			out = append(out, s)
		}
	}
	return out
}

// Subscribe registers fn for envelopes of msgType and returns its disposer.
func (c *Client) Subscribe(msgType string, fn Handler) func() {
	return c.subs.add(msgType, fn, false)
}

// SubscribeAll registers fn for every envelope. General handlers run before
// typed ones.
func (c *Client) SubscribeAll(fn Handler) func() {
	return c.subs.add("", fn, true)
}

// RemoveAllListeners drops every envelope subscription.
func (c *Client) RemoveAllListeners() {
	c.subs.clear()
}

type statusWatcher struct {
	fn      func(StatusEvent)
	removed atomic.Bool
}

// OnStatus registers fn for state transitions and returns its disposer.
// Events are delivered in order from a single publisher at a time.
func (c *Client) OnStatus(fn func(StatusEvent)) func() {
	w := &statusWatcher{fn: fn}
	c.statusMu.Lock()
	c.watchers = append(c.watchers, w)
	c.statusMu.Unlock()

	return func() {
		w.removed.Store(true)
		c.statusMu.Lock()
		defer c.statusMu.Unlock()
		kept := c.watchers[:0]
		for _, x := range c.watchers {
			if x != w {
				kept = append(kept, x)
			}
		}
		c.watchers = kept
	}
}

func (c *Client) publish(ev StatusEvent) {
	c.statusMu.Lock()
	watchers := make([]*statusWatcher, len(c.watchers))
	copy(watchers, c.watchers)
	c.statusMu.Unlock()

	for _, w := range watchers {
		if !w.removed.Load() {
			w.fn(ev)
		}
	}
}
