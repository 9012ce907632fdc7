// Package peer drives the client side of connection negotiation: one state
// machine per remote peer, with the candidate buffering needed to tolerate
// out-of-order delivery.
package peer

import (
	"encoding/json"
	"sync"

	"github.com/cagricesur/noobz-voice/internal/domain"
)

// State is the per-peer negotiation lifecycle.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateAwaitingRemoteDescription
	StateConnecting
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateAwaitingRemoteDescription:
		return "awaiting-remote-description"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role is decided once at creation from the discovery path and never
// revisited: a peer learned from the roster or a user-joined event is
// called by us (offerer); a peer that reaches us with an offer first is
// answered (answerer). Both sides derive this deterministically, so the
// rule must not be swapped.
type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

func (r Role) String() string {
	if r == RoleOfferer {
		return "offerer"
	}
	return "answerer"
}

// Negotiation is the state machine for one remote peer. All mutation
// happens under mu; in particular "apply remote description then flush
// buffered candidates" is a single critical section, so a candidate cannot
// slip between commit and flush and get buffered forever.
type Negotiation struct {
	remote domain.ConnID
	role   Role

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []json.RawMessage
	transport MediaTransport
}

func newNegotiation(remote domain.ConnID, role Role, t MediaTransport) *Negotiation {
	return &Negotiation{
		remote:    remote,
		role:      role,
		state:     StateIdle,
		transport: t,
	}
}

func (n *Negotiation) Remote() domain.ConnID { return n.remote }
func (n *Negotiation) Role() Role            { return n.role }

func (n *Negotiation) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// sendOffer runs the offerer half of the handshake: local description
// committed and sent, then wait for the answer.
func (n *Negotiation) sendOffer() (json.RawMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateIdle {
		return nil, nil
	}
	n.state = StateNegotiating
	payload, err := n.transport.CreateOffer()
	if err != nil {
		// Halt in place: no retry, no message to the remote side.
		return nil, err
	}
	n.state = StateAwaitingRemoteDescription
	return payload, nil
}

// acceptOffer runs the answerer half: apply the remote offer, flush any
// candidates that raced ahead of it, then create and commit the answer.
// The remote description is already set when the answer goes out, so the
// peer moves straight on to Connecting.
func (n *Negotiation) acceptOffer(offer json.RawMessage) (json.RawMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return nil, nil
	}
	n.state = StateNegotiating
	if err := n.transport.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	n.commitRemoteLocked()
	payload, err := n.transport.CreateAnswer()
	if err != nil {
		return nil, err
	}
	n.state = StateConnecting
	return payload, nil
}

// acceptAnswer completes the offerer's handshake.
func (n *Negotiation) acceptAnswer(answer json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateAwaitingRemoteDescription {
		return nil
	}
	if err := n.transport.SetRemoteDescription(answer); err != nil {
		return err
	}
	n.commitRemoteLocked()
	n.state = StateConnecting
	return nil
}

// addCandidate applies a remote candidate immediately once the remote
// description is committed, and buffers it otherwise. Buffered candidates
// are flushed in arrival order exactly once by commitRemoteLocked.
func (n *Negotiation) addCandidate(candidate json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return nil
	}
	if !n.remoteSet {
		n.pending = append(n.pending, candidate)
		return nil
	}
	return n.transport.AddICECandidate(candidate)
}

// commitRemoteLocked marks the remote description applied and flushes the
// pending buffer FIFO. Caller holds n.mu, making commit-plus-flush atomic
// with respect to addCandidate.
func (n *Negotiation) commitRemoteLocked() {
	n.remoteSet = true
	for _, c := range n.pending {
		// Individual candidate failures are not fatal to the negotiation.
		_ = n.transport.AddICECandidate(c)
	}
	n.pending = nil
}

// onConnectivity folds the transport's connection signal into the
// lifecycle. Failures are observed, not acted upon: no reconnection.
func (n *Negotiation) onConnectivity(c Connectivity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StateConnecting, StateConnected:
	default:
		return
	}
	switch c {
	case ConnectivityConnected:
		n.state = StateConnected
	case ConnectivityDisconnected, ConnectivityFailed:
		n.state = StateFailed
	}
}

// close tears the negotiation down: transport released, buffered
// candidates discarded. Terminal.
func (n *Negotiation) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return
	}
	n.state = StateClosed
	n.pending = nil
	n.transport.Close()
}
