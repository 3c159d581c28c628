package presence

import "sync"

// Counter is a single-slot latest-value publish point. Publish overwrites
// the slot and wakes current subscribers only when the value actually
// changed; a new subscriber immediately observes the current value. There
// is no backlog: a slow subscriber sees coalesced updates, never history.
type Counter struct {
	mu   sync.Mutex
	val  int
	subs map[chan int]struct{}
}

func NewCounter() *Counter {
	return &Counter{subs: make(map[chan int]struct{})}
}

// Get returns the current slot value.
func (c *Counter) Get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

// Publish stores v and notifies subscribers. Publishing an unchanged
// value is a no-op.
func (c *Counter) Publish(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == c.val {
		return
	}
	c.val = v
	for ch := range c.subs {
		// Replace any pending value instead of queueing behind it.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribe registers a new subscriber whose channel is pre-loaded with
// the current value, so a late joiner never waits for the next change.
func (c *Counter) Subscribe() *CountSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan int, 1)
	ch <- c.val
	c.subs[ch] = struct{}{}
	return &CountSub{c: c, ch: ch}
}

func (c *Counter) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

type CountSub struct {
	c         *Counter
	ch        chan int
	closeOnce sync.Once
}

// C yields the latest published value; at most one value is ever pending.
func (s *CountSub) C() <-chan int { return s.ch }

// Close detaches the subscriber from its Counter.
func (s *CountSub) Close() {
	s.closeOnce.Do(func() {
		s.c.mu.Lock()
		delete(s.c.subs, s.ch)
		s.c.mu.Unlock()
	})
}
