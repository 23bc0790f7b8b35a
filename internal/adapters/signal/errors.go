package signal

import (
	"errors"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Error codes sent in the "error" field of an error reply.
const (
	CodeBadJSON           = "bad_json"
	CodeBadPayload        = "bad_payload"
	CodeBadSDP            = "bad_sdp"
	CodeUnsupported       = "unsupported_message"
	CodeNotJoined         = "not_joined"
	CodeSenderNotFound    = "sender_not_found"
	CodeNegotiationFailed = "negotiation_failed"
	CodeNameTaken         = "name_taken"
	CodeNotInRoom         = "not_in_room"
	CodeRateLimited       = "rate_limited"
	CodeRoomUnavailable   = "room_unavailable"
)

// errorCode maps err to a wire code, or fallback when err is not a known
// domain error.
func errorCode(err error, fallback string) string {
	switch {
	case errors.Is(err, domain.ErrNameEmpty), errors.Is(err, domain.ErrNameTooLong):
		return CodeBadPayload
	case errors.Is(err, domain.ErrNameTaken):
		return CodeNameTaken
	case errors.Is(err, domain.ErrNotJoined), errors.Is(err, domain.ErrParticipantClosed):
		return CodeNotJoined
	case errors.Is(err, domain.ErrSenderNotFound):
		return CodeSenderNotFound
	case errors.Is(err, domain.ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, domain.ErrRoomClosed):
		return CodeRoomUnavailable
	default:
		return fallback
	}
}

func (ctl *SignalWSController) replyError(c *WsSignalConn, request, code, message string) {
	ctl.sendJSON(c, core.ErrorReply{
		ID:      core.MsgError,
		Request: request,
		Error:   code,
		Message: message,
	})
}

func (ctl *SignalWSController) replyFailure(c *WsSignalConn, request string, err error, fallback string) {
	code := errorCode(err, fallback)
	log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Str("id", request).Str("code", code).Msg("request failed")
	ctl.replyError(c, request, code, err.Error())
}
