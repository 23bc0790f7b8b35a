package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Inbound message ids.
const (
	msgJoinRoom         = "joinRoom"
	msgReceiveVideoFrom = "receiveVideoFrom"
	msgLeaveRoom        = "leaveRoom"
	msgChangeVisibility = "changeVisibility"
	msgChat             = "chat"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	done := ctx.Done()
	for {
		select {
		case <-done:
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			// Flush what is queued, then stop on the closed channel.
			c.Close()
			done = nil
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(ctl.cfg.WriteWait),
				)
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(c.id)
		ctl.Limiter.Forget(c.id)
		c.Close()
		cancel()
	}()

	pongWait := ctl.cfg.PongWait()
	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	var env struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad json")
		ctl.replyError(c, "", CodeBadJSON, err.Error())
		return
	}
	log.Debug().Str("module", "signal").Str("conn", string(c.id)).Str("id", env.ID).Msg("incoming message")

	switch env.ID {
	case msgJoinRoom:
		ctl.handleJoinRoom(ctx, c, data)
	case msgReceiveVideoFrom:
		ctl.handleReceiveVideoFrom(ctx, c, data)
	case msgLeaveRoom:
		ctl.handleLeaveRoom(c)
	case msgChangeVisibility:
		ctl.handleChangeVisibility(c)
	case msgChat:
		ctl.handleChat(c, data)
	default:
		log.Warn().Str("module", "signal").Str("id", env.ID).Msg("unknown signal")
		ctl.replyError(c, env.ID, CodeUnsupported, "unsupported message id")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("sendJSON dropped")
	}
}

// decode unmarshals and validates a payload, replying bad_payload on failure.
func (ctl *SignalWSController) decode(c *WsSignalConn, request string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("id", request).Msg("bad payload")
		ctl.replyError(c, request, CodeBadPayload, err.Error())
		return false
	}
	if err := ctl.validate.Struct(v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("id", request).Msg("invalid payload")
		ctl.replyError(c, request, CodeBadPayload, err.Error())
		return false
	}
	return true
}
