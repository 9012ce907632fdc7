// Package client runs the headless voice participant: it joins a room over
// the signaling channel and feeds every event into the peer negotiation
// manager.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/peer"
	"github.com/cagricesur/noobz-voice/internal/protocol"
)

var (
	ErrNameTaken    = errors.New("display name already taken in this room")
	ErrDisconnected = errors.New("signaling connection lost")
)

const latencyProbePeriod = 15 * time.Second

// Peer is one other room member as the client currently sees them.
type Peer struct {
	DisplayName string
	Muted       bool
}

// Voice coordinates one joined participant.
type Voice struct {
	sig  Signaler
	mgr  *peer.Manager
	room string
	name string

	mu     sync.Mutex
	self   domain.ConnID
	roster map[domain.ConnID]Peer
}

// New wires a Voice client. The manager is built here so that locally
// gathered candidates flow back through the same signaler.
func New(sig Signaler, factory peer.TransportFactory, source peer.AudioSource, room, name string) *Voice {
	return &Voice{
		sig:    sig,
		mgr:    peer.NewManager(factory, signalSender{sig: sig}, source),
		room:   room,
		name:   domain.NormalizeDisplayName(name),
		roster: make(map[domain.ConnID]Peer),
	}
}

// Manager exposes the negotiation manager for inspection.
func (v *Voice) Manager() *peer.Manager { return v.mgr }

// Self returns the server-assigned connection id, empty before the join
// is accepted.
func (v *Voice) Self() domain.ConnID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.self
}

// Roster snapshots the other room members as last announced by the server.
func (v *Voice) Roster() map[domain.ConnID]Peer {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[domain.ConnID]Peer, len(v.roster))
	for id, p := range v.roster {
		out[id] = p
	}
	return out
}

// SetMuted flips the local track and mirrors the state to the server for
// presence display. It never renegotiates.
func (v *Voice) SetMuted(muted bool) {
	v.mgr.SetMuted(muted)
	if err := v.sig.Send(protocol.Envelope{Type: protocol.TypeSetMuted, Muted: &muted}); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("mirror mute state")
	}
}

// Run joins the room and processes events until ctx is done or the
// connection drops. A name conflict surfaces as ErrNameTaken.
func (v *Voice) Run(ctx context.Context) error {
	defer v.mgr.Close()
	defer v.sig.Close()

	if err := v.sig.Send(protocol.Envelope{
		Type: protocol.TypeJoinRoom,
		Room: v.room,
		Name: v.name,
	}); err != nil {
		return err
	}

	probe := time.NewTicker(latencyProbePeriod)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-probe.C:
			_ = v.sig.Send(protocol.Envelope{Type: protocol.TypePing, Timestamp: time.Now().UnixMilli()})
		case env, ok := <-v.sig.Incoming():
			if !ok {
				return ErrDisconnected
			}
			if err := v.handle(env); err != nil {
				return err
			}
		}
	}
}

func (v *Voice) handle(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeJoinedRoom:
		// The roster is presence only. Members already in the room offer to
		// us when they see our user-joined announcement; offering back here
		// would put both sides in the offerer role.
		v.mu.Lock()
		v.self = env.Conn
		for _, p := range env.Peers {
			v.roster[p.ConnID] = Peer{DisplayName: p.DisplayName, Muted: p.Muted}
		}
		v.mu.Unlock()
		log.Info().Str("module", "client").Str("room", env.Room).
			Str("self", string(env.Conn)).Int("peers", len(env.Peers)).Msg("joined room")
		// A mute set before the join could not reach the server; mirror it
		// now that the session is in a room.
		if v.mgr.Muted() {
			v.SetMuted(true)
		}
	case protocol.TypeNameTaken:
		return ErrNameTaken
	case protocol.TypeUserJoined:
		v.mu.Lock()
		v.roster[env.Conn] = Peer{DisplayName: env.Name}
		v.mu.Unlock()
		log.Info().Str("module", "client").Str("conn", string(env.Conn)).Str("name", env.Name).Msg("user joined")
		v.mgr.HandlePeerJoined(env.Conn)
	case protocol.TypeUserLeft:
		v.mu.Lock()
		delete(v.roster, env.Conn)
		v.mu.Unlock()
		log.Info().Str("module", "client").Str("conn", string(env.Conn)).Msg("user left")
		v.mgr.HandlePeerLeft(env.Conn)
	case protocol.TypeUserMuted:
		if env.Muted != nil {
			v.mu.Lock()
			if p, ok := v.roster[env.Conn]; ok {
				p.Muted = *env.Muted
				v.roster[env.Conn] = p
			}
			v.mu.Unlock()
			log.Info().Str("module", "client").Str("conn", string(env.Conn)).Bool("muted", *env.Muted).Msg("user muted")
		}
	case protocol.TypeOffer:
		v.mgr.HandleOffer(env.From, env.Payload)
	case protocol.TypeAnswer:
		v.mgr.HandleAnswer(env.From, env.Payload)
	case protocol.TypeICE:
		v.mgr.HandleCandidate(env.From, env.Payload)
	case protocol.TypePong:
		rtt := time.Now().UnixMilli() - env.Timestamp
		log.Debug().Str("module", "client").Int64("rtt_ms", rtt).Msg("latency probe")
	case protocol.TypeError:
		log.Warn().Str("module", "client").Str("message", env.Message).Msg("server error")
	default:
		log.Debug().Str("module", "client").Str("type", env.Type).Msg("unhandled event")
	}
	return nil
}
