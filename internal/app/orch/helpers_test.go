package orch_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/groupcall/internal/adapters/memory"
	"github.com/dkeye/groupcall/internal/app"
	"github.com/dkeye/groupcall/internal/app/orch"
	"github.com/dkeye/groupcall/internal/core"
)

type recordingConn struct {
	mu     sync.Mutex
	msgs   []map[string]any
	closed bool
}

func (c *recordingConn) TrySend(f core.Frame) error {
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
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

func (c *recordingConn) byID(id string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, m := range c.msgs {
		if m["id"] == id {
			out = append(out, m)
		}
	}
	return out
}

func newOrchestrator(t *testing.T, hooks orch.Hooks) (*orch.Orchestrator, *memory.Engine) {
	t.Helper()
	engine := memory.NewEngine()
	return &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(engine),
		Hooks:    hooks,
	}, engine
}
