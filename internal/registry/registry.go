// Package registry owns the room and session state of the signaling server.
// It is a pure router keyed by connection id: negotiation payloads pass
// through unread, and all state lives in memory and is rebuilt from scratch
// on every join.
package registry

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/protocol"
)

var (
	ErrNameTaken     = errors.New("display name taken")
	ErrAlreadyJoined = errors.New("session already joined a room")
	ErrNotConnected  = errors.New("unknown connection")
)

type member struct {
	sess domain.Session
	conn SignalConnection
}

// Registry is a single injected instance, never a package global; tests
// instantiate independent registries. One mutex keeps the name-uniqueness
// check-then-insert atomic across handler goroutines.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.ConnID]*member
	rooms    map[domain.RoomID]map[domain.ConnID]struct{}
}

func New() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnID]*member),
		rooms:    make(map[domain.RoomID]map[domain.ConnID]struct{}),
	}
}

// Connect records a fresh session for a newly established connection.
func (r *Registry) Connect(id domain.ConnID, conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &member{sess: domain.Session{ConnID: id}, conn: conn}
	log.Info().Str("module", "registry").Str("conn", string(id)).Msg("session created")
}

// Disconnect is the implicit leave: same cleanup as an explicit leave, then
// the session record is removed. The server never distinguishes voluntary
// leave from connection loss.
func (r *Registry) Disconnect(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(id)
	delete(r.sessions, id)
	log.Info().Str("module", "registry").Str("conn", string(id)).Msg("session removed")
}

// Join adds the session to a room and returns the normalized room id plus
// the roster of other members. The requested name is normalized here
// authoritatively; a case-insensitive conflict returns ErrNameTaken and
// leaves the session unjoined.
func (r *Registry) Join(id domain.ConnID, rawRoom, requestedName string) (domain.RoomID, []protocol.PeerInfo, error) {
	roomID, err := domain.NormalizeRoomID(rawRoom)
	if err != nil {
		return "", nil, err
	}
	name := domain.NormalizeDisplayName(requestedName)
	key := domain.NameKey(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.sessions[id]
	if !ok {
		return "", nil, ErrNotConnected
	}
	if m.sess.Joined() {
		return "", nil, ErrAlreadyJoined
	}

	room := r.rooms[roomID]
	for peer := range room {
		if domain.NameKey(r.sessions[peer].sess.DisplayName) == key {
			log.Info().Str("module", "registry").Str("conn", string(id)).
				Str("room", string(roomID)).Str("name", name).Msg("join rejected, name taken")
			return "", nil, ErrNameTaken
		}
	}

	if room == nil {
		room = make(map[domain.ConnID]struct{})
		r.rooms[roomID] = room
	}

	roster := make([]protocol.PeerInfo, 0, len(room))
	for peer := range room {
		ps := r.sessions[peer].sess
		roster = append(roster, protocol.PeerInfo{
			ConnID:      peer,
			DisplayName: ps.DisplayName,
			Muted:       ps.Muted,
		})
	}

	r.broadcastLocked(roomID, id, protocol.Envelope{
		Type: protocol.TypeUserJoined,
		Conn: id,
		Name: name,
	})

	room[id] = struct{}{}
	m.sess.RoomID = roomID
	m.sess.DisplayName = name
	m.sess.Muted = false

	log.Info().Str("module", "registry").Str("conn", string(id)).
		Str("room", string(roomID)).Str("name", name).Int("peers", len(roster)).Msg("joined")
	return roomID, roster, nil
}

// SetMuted updates the client-reported mute flag, last writer wins. A write
// that does not change the flag is a no-op with no broadcast; an effective
// change is announced to the whole room, sender included.
func (r *Registry) SetMuted(id domain.ConnID, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.sessions[id]
	if !ok || !m.sess.Joined() || m.sess.Muted == muted {
		return
	}
	m.sess.Muted = muted
	r.broadcastLocked(m.sess.RoomID, "", protocol.Envelope{
		Type:  protocol.TypeUserMuted,
		Conn:  id,
		Muted: &muted,
	})
	log.Debug().Str("module", "registry").Str("conn", string(id)).Bool("muted", muted).Msg("mute updated")
}

// Leave removes the session from its room, if any. Idempotent.
func (r *Registry) Leave(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(id)
}

func (r *Registry) leaveLocked(id domain.ConnID) {
	m, ok := r.sessions[id]
	if !ok || !m.sess.Joined() {
		return
	}
	roomID := m.sess.RoomID
	delete(r.rooms[roomID], id)
	if len(r.rooms[roomID]) == 0 {
		delete(r.rooms, roomID)
	} else {
		r.broadcastLocked(roomID, id, protocol.Envelope{
			Type: protocol.TypeUserLeft,
			Conn: id,
		})
	}
	m.sess = domain.Session{ConnID: id}
	log.Info().Str("module", "registry").Str("conn", string(id)).Str("room", string(roomID)).Msg("left room")
}

// Relay forwards a negotiation payload unchanged, tagged with the sender.
// Delivery is best effort: a missing target is dropped silently, the sender
// learns of departure separately via user-left.
func (r *Registry) Relay(from, to domain.ConnID, typ string, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.sessions[to]
	if !ok {
		log.Debug().Str("module", "registry").Str("from", string(from)).
			Str("to", string(to)).Str("type", typ).Msg("relay target gone, dropped")
		return
	}
	r.send(target, protocol.Envelope{
		Type:    typ,
		From:    from,
		Payload: payload,
	})
}

// RoomInfo is a read-only room summary for the HTTP API.
type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	MemberCount int           `json:"memberCount"`
}

func (r *Registry) List() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(room)})
	}
	return out
}

// RoomSize reports current membership, zero for an unknown room.
func (r *Registry) RoomSize(id domain.RoomID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[id])
}

// broadcastLocked fans an event out to every room member except skip.
// Callers hold r.mu; TrySend never blocks so this is safe under the lock.
func (r *Registry) broadcastLocked(roomID domain.RoomID, skip domain.ConnID, env protocol.Envelope) {
	for peer := range r.rooms[roomID] {
		if peer == skip {
			continue
		}
		r.send(r.sessions[peer], env)
	}
}

func (r *Registry) send(m *member, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "registry").Msg("marshal event")
		return
	}
	if err := m.conn.TrySend(data); err != nil {
		log.Warn().Str("module", "registry").Str("conn", string(m.sess.ConnID)).
			Str("type", env.Type).Msg("send dropped, slow consumer")
	}
}
