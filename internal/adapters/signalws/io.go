package signalws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signalws").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signalws").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drives the session. Exit for any reason, read error or context
// cancel alike, counts as disconnect and triggers the same cleanup as an
// explicit leave.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signalws").Str("conn", string(id)).Msg("readPump closing")
		cancel()
		ctl.Reg.Disconnect(id)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signalws").Str("conn", string(id)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(id, c, data)
		}
	}
}

func (ctl *Controller) handleSignal(id domain.ConnID, c *wsConn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signalws").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch {
	case env.Type == protocol.TypeJoinRoom:
		ctl.handleJoin(id, c, env)
	case env.Type == protocol.TypeSetMuted:
		ctl.handleSetMuted(id, env)
	case protocol.IsRelay(env.Type):
		ctl.handleRelay(id, env)
	case env.Type == protocol.TypePing:
		ctl.handlePing(c, env)
	default:
		log.Warn().Str("module", "signalws").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, "unknown_type")
	}
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	data, err := json.Marshal(protocol.Envelope{Type: protocol.TypeError, Message: msg})
	if err != nil {
		return
	}
	ctl.sendJSON(c, data)
}
