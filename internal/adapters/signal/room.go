package signal

import (
	"context"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog/log"
)

type joinRoomPayload struct {
	Name string `json:"name" validate:"required,max=36"`
	Room string `json:"room" validate:"required,max=64"`
}

func (ctl *SignalWSController) handleJoinRoom(ctx context.Context, c *WsSignalConn, data []byte) {
	if !ctl.Limiter.Allow(c.id) {
		ctl.replyError(c, msgJoinRoom, CodeRateLimited, "too many requests")
		return
	}
	var p joinRoomPayload
	if !ctl.decode(c, msgJoinRoom, data, &p) {
		return
	}
	name, err := domain.NewParticipantName(p.Name)
	if err != nil {
		ctl.replyFailure(c, msgJoinRoom, err, CodeBadPayload)
		return
	}
	room, err := domain.NewRoomName(p.Room)
	if err != nil {
		ctl.replyFailure(c, msgJoinRoom, err, CodeBadPayload)
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("room", string(room)).Str("name", string(name)).Msg("join")
	if _, err := ctl.Orch.Join(ctx, c.id, c, room, name); err != nil {
		ctl.replyFailure(c, msgJoinRoom, err, CodeRoomUnavailable)
	}
}

// handleLeaveRoom leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeaveRoom(c *WsSignalConn) {
	log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("leave")
	if err := ctl.Orch.Leave(c.id); err != nil {
		ctl.replyFailure(c, msgLeaveRoom, err, CodeNotJoined)
	}
}
