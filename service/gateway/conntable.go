package gateway

import "sync"

// connTable indexes live connections by room and by connection id.
// Global-channel connections live under the empty room name.
type connTable struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]*Client // room -> conn_id -> client
	byID   map[string]*Client
}

func newConnTable() *connTable {
	return &connTable{
		byRoom: make(map[string]map[string]*Client),
		byID:   make(map[string]*Client),
	}
}

func (t *connTable) add(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.byRoom[c.Room]
	if m == nil {
		m = make(map[string]*Client)
		t.byRoom[c.Room] = m
	}
	m[c.ConnID] = c
	t.byID[c.ConnID] = c
}

func (t *connTable) remove(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m := t.byRoom[c.Room]; m != nil {
		delete(m, c.ConnID)
		if len(m) == 0 {
			delete(t.byRoom, c.Room)
		}
	}
	delete(t.byID, c.ConnID)
}

func (t *connTable) listRoom(room string) []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.byRoom[room]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (t *connTable) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
