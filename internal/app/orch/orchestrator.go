package orch

import (
	"github.com/dkeye/groupcall/internal/app"
	"github.com/dkeye/groupcall/internal/core"
	"github.com/rs/zerolog/log"
)

// TestDisableText is the chat text that triggers the media sink release hook.
const TestDisableText = "testdisable"

type Hooks struct {
	// TestDisable makes a "testdisable" chat release a media sink of the
	// sender instead of being relayed.
	TestDisable bool
}

// Orchestrator resolves the participant behind a connection and applies
// signaling requests to rooms and sessions.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Hooks    Hooks
}

// OnDisconnect forgets the connection and takes its participant out of its
// room, destroying the room if it became empty.
func (o *Orchestrator) OnDisconnect(cid core.ConnID) {
	p, ok := o.Registry.RemoveByConn(cid)
	if !ok {
		return
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("participant", p.Key().String()).Msg("connection closed")
	o.leaveRoom(p)
}

func (o *Orchestrator) leaveRoom(p *core.Participant) {
	room, ok := o.Rooms.Get(p.RoomName())
	if !ok {
		p.Close()
		return
	}
	room.Leave(p)
	o.Rooms.RemoveRoom(room)
}
