package peer

import (
	"encoding/json"

	"github.com/cagricesur/noobz-voice/internal/domain"
)

// LocalTrack is the shared outgoing audio handle, read by every negotiation
// and owned by none of them. The concrete type is a pion local track; tests
// use a stub.
type LocalTrack interface {
	ID() string
}

// AudioSource produces the live local audio handle and controls whether it
// is actually transmitting (mute keeps the track attached and sends
// silence instead of tearing anything down).
type AudioSource interface {
	Track() LocalTrack
	SetEnabled(bool)
}

// Connectivity is the transport-level connection state signal.
type Connectivity int

const (
	ConnectivityConnected Connectivity = iota
	ConnectivityDisconnected
	ConnectivityFailed
)

// TransportEvents are callbacks a transport fires asynchronously.
type TransportEvents struct {
	// OnCandidate delivers a locally gathered ICE candidate to be relayed
	// to the remote peer.
	OnCandidate func(payload json.RawMessage)
	// OnConnectivity reports transport-level connection state changes.
	OnConnectivity func(Connectivity)
}

// MediaTransport is the per-peer WebRTC primitive set. Descriptions and
// candidates are opaque JSON payloads, exactly as they travel over the
// signaling channel.
type MediaTransport interface {
	// CreateOffer creates and commits the local description, returning the
	// payload to relay.
	CreateOffer() (json.RawMessage, error)
	// CreateAnswer does the same for the answering side; the remote offer
	// must already be applied.
	CreateAnswer() (json.RawMessage, error)
	SetRemoteDescription(payload json.RawMessage) error
	AddICECandidate(payload json.RawMessage) error

	// AttachTrack adds the shared local audio handle to the outgoing side.
	AttachTrack(LocalTrack) error
	// ReplaceTrack swaps the outgoing track in place, without renegotiation.
	ReplaceTrack(LocalTrack) error

	Close()
}

// TransportFactory builds one MediaTransport per remote peer.
type TransportFactory interface {
	NewTransport(remote domain.ConnID, ev TransportEvents) (MediaTransport, error)
}

// Sender relays a negotiation message to a remote peer through the
// signaling channel.
type Sender interface {
	SendSignal(to domain.ConnID, typ string, payload json.RawMessage) error
}
