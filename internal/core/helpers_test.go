package core_test

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/groupcall/internal/core"
)

var errSendFailed = errors.New("send failed")

// recordingConn keeps every frame sent to it, decoded.
type recordingConn struct {
	mu     sync.Mutex
	msgs   []map[string]any
	closed bool
	fail   bool
}

func (c *recordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errSendFailed
	}
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *recordingConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recordingConn) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *recordingConn) all() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.msgs...)
}

func (c *recordingConn) byID(id string) []map[string]any {
	var out []map[string]any
	for _, m := range c.all() {
		if m["id"] == id {
			out = append(out, m)
		}
	}
	return out
}
