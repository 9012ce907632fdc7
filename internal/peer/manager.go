package peer

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/protocol"
)

// Manager owns one Negotiation per remote peer known to the local client,
// plus the shared local audio source. It is driven by signaling events and
// local intent; negotiations with different peers proceed independently.
type Manager struct {
	factory TransportFactory
	sender  Sender

	mu     sync.Mutex
	peers  map[domain.ConnID]*Negotiation
	source AudioSource
	muted  bool
}

// NewManager builds a manager around the given transport factory and
// signaling sender. source may be nil when local audio could not be
// acquired; the client then stays joined for presence but negotiates
// without an outgoing track.
func NewManager(factory TransportFactory, sender Sender, source AudioSource) *Manager {
	return &Manager{
		factory: factory,
		sender:  sender,
		peers:   make(map[domain.ConnID]*Negotiation),
		source:  source,
	}
}

// HandlePeerJoined reacts to a user-joined announcement: we were already
// in the room when the peer arrived, so we call first. The joining side
// receives the roster and waits to be called; exactly one side of every
// pair offers, with no extra round trip to agree on who.
func (m *Manager) HandlePeerJoined(remote domain.ConnID) {
	n, created := m.getOrCreate(remote, RoleOfferer)
	if n == nil || !created {
		return
	}
	payload, err := n.sendOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("create offer")
		return
	}
	if payload == nil {
		return
	}
	m.relay(remote, protocol.TypeOffer, payload)
}

// HandleOffer reacts to an inbound offer. A peer we have never seen makes
// us the answerer; an offer for an already-tracked peer is ignored, since
// re-initiation after failure arrives on a fresh connection id.
func (m *Manager) HandleOffer(remote domain.ConnID, offer json.RawMessage) {
	n, created := m.getOrCreate(remote, RoleAnswerer)
	if n == nil {
		return
	}
	if !created {
		log.Debug().Str("module", "peer").Str("remote", string(remote)).Msg("offer for known peer ignored")
		return
	}
	payload, err := n.acceptOffer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("accept offer")
		return
	}
	if payload == nil {
		return
	}
	m.relay(remote, protocol.TypeAnswer, payload)
}

// HandleAnswer completes a handshake we initiated.
func (m *Manager) HandleAnswer(remote domain.ConnID, answer json.RawMessage) {
	n, ok := m.get(remote)
	if !ok {
		log.Debug().Str("module", "peer").Str("remote", string(remote)).Msg("answer for unknown peer dropped")
		return
	}
	if err := n.acceptAnswer(answer); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("apply answer")
	}
}

// HandleCandidate applies or buffers a remote candidate. Candidates for
// unknown peers are dropped; the signaling channel is ordered per
// connection, so their offer either never existed or the peer is gone.
func (m *Manager) HandleCandidate(remote domain.ConnID, candidate json.RawMessage) {
	n, ok := m.get(remote)
	if !ok {
		log.Debug().Str("module", "peer").Str("remote", string(remote)).Msg("candidate for unknown peer dropped")
		return
	}
	if err := n.addCandidate(candidate); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("add candidate")
	}
}

// HandlePeerLeft tears the peer's negotiation down immediately, no grace
// period.
func (m *Manager) HandlePeerLeft(remote domain.ConnID) {
	m.mu.Lock()
	n, ok := m.peers[remote]
	delete(m.peers, remote)
	m.mu.Unlock()
	if ok {
		n.close()
		log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("negotiation closed, peer left")
	}
}

// SetMuted disables the locally captured audio without touching any
// negotiation; senders keep transmitting silence. Purely local, mirrored
// to the server by the caller for presence display.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
	if m.source != nil {
		m.source.SetEnabled(!muted)
	}
}

func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// ReplaceSource swaps the local audio handle, propagating the new outgoing
// track to every live negotiation in place. Established connections are
// not renegotiated.
func (m *Manager) ReplaceSource(source AudioSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = source
	if source == nil {
		return
	}
	source.SetEnabled(!m.muted)
	track := source.Track()
	for remote, n := range m.peers {
		if err := n.transport.ReplaceTrack(track); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("replace track")
		}
	}
}

// PeerState reports the lifecycle state and role for one remote peer.
func (m *Manager) PeerState(remote domain.ConnID) (State, Role, bool) {
	n, ok := m.get(remote)
	if !ok {
		return StateClosed, RoleOfferer, false
	}
	return n.State(), n.role, true
}

// Peers lists remote peers with live negotiations.
func (m *Manager) Peers() []domain.ConnID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ConnID, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// Close tears down every negotiation, e.g. on leave or shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[domain.ConnID]*Negotiation)
	m.mu.Unlock()
	for _, n := range peers {
		n.close()
	}
}

func (m *Manager) get(remote domain.ConnID) (*Negotiation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.peers[remote]
	return n, ok
}

// getOrCreate builds the negotiation and its transport on first discovery.
// The role is fixed here and never revisited.
func (m *Manager) getOrCreate(remote domain.ConnID, role Role) (*Negotiation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.peers[remote]; ok {
		return n, false
	}

	var n *Negotiation
	transport, err := m.factory.NewTransport(remote, TransportEvents{
		OnCandidate: func(payload json.RawMessage) {
			m.relay(remote, protocol.TypeICE, payload)
		},
		OnConnectivity: func(c Connectivity) {
			if n != nil {
				n.onConnectivity(c)
			}
		},
	})
	if err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("new transport")
		return nil, false
	}

	n = newNegotiation(remote, role, transport)
	if m.source != nil {
		if err := transport.AttachTrack(m.source.Track()); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("attach local track")
		}
	}
	m.peers[remote] = n
	log.Info().Str("module", "peer").Str("remote", string(remote)).Str("role", role.String()).Msg("negotiation created")
	return n, true
}

func (m *Manager) relay(remote domain.ConnID, typ string, payload json.RawMessage) {
	if err := m.sender.SendSignal(remote, typ, payload); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(remote)).Str("type", typ).Msg("send signal")
	}
}
