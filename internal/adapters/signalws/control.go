package signalws

import (
	"encoding/json"

	"github.com/cagricesur/noobz-voice/internal/protocol"
)

// handlePing echoes the client's timestamp unchanged so the client can
// measure signaling round-trip latency.
func (ctl *Controller) handlePing(c *wsConn, env protocol.Envelope) {
	data, err := json.Marshal(protocol.Envelope{
		Type:      protocol.TypePong,
		Timestamp: env.Timestamp,
	})
	if err != nil {
		return
	}
	ctl.sendJSON(c, data)
}
