package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// A room can be destroyed between lookup and join; retry on a fresh one.
const joinAttempts = 3

func (o *Orchestrator) Join(
	ctx context.Context,
	cid core.ConnID,
	conn core.SignalConnection,
	roomName domain.RoomName,
	name domain.ParticipantName,
) (*core.Participant, error) {
	if cur, ok := o.Registry.RemoveByConn(cid); ok {
		log.Info().Str("module", "orch").Str("conn", string(cid)).Str("from_room", string(cur.RoomName())).Msg("leaving current room before join")
		o.leaveRoom(cur)
	}

	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("room", string(roomName)).Str("participant", string(name)).Msg("trying to join room")
	for attempt := 0; attempt < joinAttempts; attempt++ {
		room, err := o.Rooms.GetOrCreate(ctx, roomName)
		if err != nil {
			return nil, err
		}
		p, err := room.Join(ctx, name, conn)
		if errors.Is(err, domain.ErrRoomClosed) {
			continue
		}
		if err != nil {
			o.Rooms.RemoveRoom(room)
			return nil, err
		}
		o.Registry.Register(cid, p)
		return p, nil
	}
	return nil, fmt.Errorf("join room %s: %w", roomName, domain.ErrRoomClosed)
}

// Leave takes the connection's participant out of its room. The connection
// itself stays open and may join again.
func (o *Orchestrator) Leave(cid core.ConnID) error {
	p, ok := o.Registry.RemoveByConn(cid)
	if !ok {
		return domain.ErrNotJoined
	}
	o.leaveRoom(p)
	return nil
}

func (o *Orchestrator) ChangeVisibility(cid core.ConnID) (bool, error) {
	p, room, err := o.resolve(cid)
	if err != nil {
		return false, err
	}
	return room.UpdateVisibilityFor(p), nil
}

// Chat relays text to roomName, which defaults to the sender's room and must
// be it.
func (o *Orchestrator) Chat(cid core.ConnID, text string, roomName domain.RoomName) error {
	p, room, err := o.resolve(cid)
	if err != nil {
		return err
	}
	if roomName != "" && roomName != p.RoomName() {
		return fmt.Errorf("chat to %s: %w", roomName, domain.ErrNotInRoom)
	}

	if o.Hooks.TestDisable && text == TestDisableText {
		if _, ok := room.ReleaseFirstSinkOf(p); !ok {
			log.Debug().Str("module", "orch").Str("participant", p.Key().String()).Msg("no media sink to release")
		}
		return nil
	}
	room.DistributeChatMessage(p, text)
	return nil
}

func (o *Orchestrator) resolve(cid core.ConnID) (*core.Participant, *core.Room, error) {
	p, ok := o.Registry.GetByConn(cid)
	if !ok {
		return nil, nil, domain.ErrNotJoined
	}
	room, ok := o.Rooms.Get(p.RoomName())
	if !ok {
		return nil, nil, domain.ErrNotJoined
	}
	return p, room, nil
}
