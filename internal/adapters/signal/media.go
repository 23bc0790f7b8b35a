package signal

import (
	"context"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog/log"
)

type receiveVideoPayload struct {
	Sender   string `json:"sender" validate:"required,max=36"`
	SdpOffer string `json:"sdpOffer" validate:"required"`
}

func (ctl *SignalWSController) handleReceiveVideoFrom(ctx context.Context, c *WsSignalConn, data []byte) {
	var p receiveVideoPayload
	if !ctl.decode(c, msgReceiveVideoFrom, data, &p) {
		return
	}
	var offer sdp.SessionDescription
	if err := offer.Unmarshal([]byte(p.SdpOffer)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad sdp offer")
		ctl.replyError(c, msgReceiveVideoFrom, CodeBadSDP, err.Error())
		return
	}

	err := ctl.Orch.ReceiveVideoFrom(ctx, c.id, domain.ParticipantName(p.Sender), p.SdpOffer)
	if err != nil {
		ctl.replyFailure(c, msgReceiveVideoFrom, err, CodeNegotiationFailed)
	}
}
