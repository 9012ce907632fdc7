package signalws

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/protocol"
	"github.com/cagricesur/noobz-voice/internal/registry"
)

func (ctl *Controller) handleJoin(id domain.ConnID, c *wsConn, env protocol.Envelope) {
	roomID, roster, err := ctl.Reg.Join(id, env.Room, env.Name)
	switch {
	case errors.Is(err, registry.ErrNameTaken):
		data, merr := json.Marshal(protocol.Envelope{Type: protocol.TypeNameTaken})
		if merr == nil {
			ctl.sendJSON(c, data)
		}
		return
	case err != nil:
		log.Warn().Err(err).Str("module", "signalws").Str("conn", string(id)).Msg("join rejected")
		ctl.sendError(c, err.Error())
		return
	}

	resp := protocol.Envelope{
		Type:  protocol.TypeJoinedRoom,
		Room:  string(roomID),
		Conn:  id,
		Peers: roster,
	}
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("module", "signalws").Msg("marshal joined-room")
		return
	}
	ctl.sendJSON(c, data)
}

func (ctl *Controller) handleSetMuted(id domain.ConnID, env protocol.Envelope) {
	if env.Muted == nil {
		log.Warn().Str("module", "signalws").Str("conn", string(id)).Msg("set-muted without flag")
		return
	}
	ctl.Reg.SetMuted(id, *env.Muted)
}
