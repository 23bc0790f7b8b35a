package signal

import (
	"github.com/dkeye/groupcall/internal/domain"
)

type chatPayload struct {
	Name string `json:"name"`
	Room string `json:"room" validate:"max=64"`
	Text string `json:"text" validate:"max=4096"`
}

func (ctl *SignalWSController) handleChangeVisibility(c *WsSignalConn) {
	if _, err := ctl.Orch.ChangeVisibility(c.id); err != nil {
		ctl.replyFailure(c, msgChangeVisibility, err, CodeNotJoined)
	}
}

// handleChat relays a chat line. The payload name is informational; the
// sender is always the connection's participant.
func (ctl *SignalWSController) handleChat(c *WsSignalConn, data []byte) {
	if !ctl.Limiter.Allow(c.id) {
		ctl.replyError(c, msgChat, CodeRateLimited, "too many requests")
		return
	}
	var p chatPayload
	if !ctl.decode(c, msgChat, data, &p) {
		return
	}
	if err := ctl.Orch.Chat(c.id, p.Text, domain.RoomName(p.Room)); err != nil {
		ctl.replyFailure(c, msgChat, err, CodeNotJoined)
	}
}
