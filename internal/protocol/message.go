// Package protocol defines the JSON envelopes exchanged over the signaling
// websocket. Both the server and the headless client depend on it; the
// server never interprets the negotiation payloads it relays.
package protocol

import (
	"encoding/json"

	"github.com/cagricesur/noobz-voice/internal/domain"
)

// Event types. Dispatch is on the envelope's "type" field.
const (
	TypeJoinRoom   = "join-room"
	TypeJoinedRoom = "joined-room"
	TypeNameTaken  = "name-taken"
	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
	TypeSetMuted   = "set-muted"
	TypeUserMuted  = "user-muted"
	TypeOffer      = "offer"
	TypeAnswer     = "answer"
	TypeICE        = "ice-candidate"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeError      = "error"
)

// Envelope carries every signaling event. Unused fields stay empty on the
// wire; Payload holds the opaque SDP or candidate JSON for relay events.
type Envelope struct {
	Type string `json:"type"`

	Room string `json:"roomId,omitempty"`
	Name string `json:"displayName,omitempty"`

	From  domain.ConnID `json:"from,omitempty"`
	To    domain.ConnID `json:"to,omitempty"`
	Conn  domain.ConnID `json:"connectionId,omitempty"`
	Muted *bool         `json:"muted,omitempty"`

	Peers []PeerInfo `json:"peers,omitempty"`

	// Payload is relayed verbatim: SDP for offer/answer, candidate JSON
	// for ice-candidate.
	Payload json.RawMessage `json:"payload,omitempty"`

	Timestamp int64  `json:"timestamp,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PeerInfo is one roster entry in a joined-room response.
type PeerInfo struct {
	ConnID      domain.ConnID `json:"connectionId"`
	DisplayName string        `json:"displayName"`
	Muted       bool          `json:"muted"`
}

// IsRelay reports whether the event is forwarded peer-to-peer through the
// server without interpretation.
func IsRelay(typ string) bool {
	return typ == TypeOffer || typ == TypeAnswer || typ == TypeICE
}
