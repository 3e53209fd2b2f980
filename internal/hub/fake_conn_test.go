package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// fakeConn records every frame enqueued on it. Setting fail makes every
// TrySend return an error, like a dead socket.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.fail {
		return errors.New("write failed")
	}
	cp := make(Frame, len(f))
	copy(cp, f)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// events decodes every recorded frame into a generic map.
func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("decode frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

// eventTypes lists the "type" discriminator of every recorded frame.
func (c *fakeConn) eventTypes(t *testing.T) []string {
	t.Helper()
	evs := c.events(t)
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		typ, _ := ev["type"].(string)
		out = append(out, typ)
	}
	return out
}
