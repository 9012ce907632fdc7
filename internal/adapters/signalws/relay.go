package signalws

import (
	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/protocol"
)

// handleRelay forwards offer, answer and ice-candidate payloads to the
// addressed peer. The payload is never inspected here; all negotiation
// semantics live client-side.
func (ctl *Controller) handleRelay(id domain.ConnID, env protocol.Envelope) {
	if env.To == "" {
		log.Warn().Str("module", "signalws").Str("conn", string(id)).
			Str("type", env.Type).Msg("relay without target")
		return
	}
	ctl.Reg.Relay(id, env.To, env.Type, env.Payload)
}
