package registry

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/protocol"
)

// fakeConn records every frame delivered to one session.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) events(t *testing.T) []protocol.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) eventsOfType(t *testing.T, typ string) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, env := range c.events(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func connect(r *Registry, id domain.ConnID) *fakeConn {
	c := &fakeConn{}
	r.Connect(id, c)
	return c
}

func TestJoinReturnsOtherMembers(t *testing.T) {
	r := New()
	connect(r, "a")
	connect(r, "b")

	_, roster, err := r.Join("a", "r1", "alice")
	require.NoError(t, err)
	require.Empty(t, roster)

	r.SetMuted("a", true)

	_, roster, err = r.Join("b", "r1", "bob")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, domain.ConnID("a"), roster[0].ConnID)
	require.Equal(t, "alice", roster[0].DisplayName)
	require.True(t, roster[0].Muted)
}

func TestJoinNameConflictIsCaseInsensitive(t *testing.T) {
	r := New()
	connect(r, "a")
	connect(r, "b")

	_, _, err := r.Join("a", "r1", "Alice")
	require.NoError(t, err)

	_, _, err = r.Join("b", "r1", "aLiCe")
	require.ErrorIs(t, err, ErrNameTaken)
	require.Equal(t, 1, r.RoomSize("r1"))

	// The rejected session is left unjoined and may retry under another name.
	_, roster, err := r.Join("b", "r1", "bob")
	require.NoError(t, err)
	require.Len(t, roster, 1)
}

func TestJoinNormalizesNameBeforeConflictCheck(t *testing.T) {
	r := New()
	connect(r, "a")
	connect(r, "b")

	_, _, err := r.Join("a", "r1", "bob")
	require.NoError(t, err)

	// Stripped punctuation collapses to the same normalized name.
	_, _, err = r.Join("b", "r1", "  b.o.b!  ")
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestSameNameInDifferentRoomsAllowed(t *testing.T) {
	r := New()
	connect(r, "a")
	connect(r, "b")

	_, _, err := r.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, _, err = r.Join("b", "r2", "alice")
	require.NoError(t, err)
}

func TestJoinRejectsEmptyRoomID(t *testing.T) {
	r := New()
	connect(r, "a")

	_, _, err := r.Join("a", "   ", "alice")
	require.ErrorIs(t, err, domain.ErrRoomIDEmpty)
}

func TestSecondJoinRejected(t *testing.T) {
	r := New()
	connect(r, "a")

	_, _, err := r.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, _, err = r.Join("a", "r2", "alice")
	require.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestJoinBroadcastsUserJoinedToOthers(t *testing.T) {
	r := New()
	ca := connect(r, "a")
	connect(r, "b")

	_, _, err := r.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, _, err = r.Join("b", "r1", "bob")
	require.NoError(t, err)

	joined := ca.eventsOfType(t, protocol.TypeUserJoined)
	require.Len(t, joined, 1)
	require.Equal(t, domain.ConnID("b"), joined[0].Conn)
	require.Equal(t, "bob", joined[0].Name)
}

func TestRoomDeletedWhenEmpty(t *testing.T) {
	r := New()
	connect(r, "a")
	connect(r, "b")

	_, _, err := r.Join("a", "r1", "alice")
	require.NoError(t, err)
	r.Leave("a")
	require.Zero(t, r.RoomSize("r1"))
	require.Empty(t, r.List())

	// Rejoining the same id behaves like a brand-new room: empty roster and
	// no stale name conflicts.
	_, roster, err := r.Join("b", "r1", "alice")
	require.NoError(t, err)
	require.Empty(t, roster)
}

func TestDisconnectActsAsLeave(t *testing.T) {
	r := New()
	connect(r, "a")
	cb := connect(r, "b")

	_, _, err := r.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, _, err = r.Join("b", "r1", "bob")
	require.NoError(t, err)

	r.Disconnect("a")
	require.Equal(t, 1, r.RoomSize("r1"))

	left := cb.eventsOfType(t, protocol.TypeUserLeft)
	require.Len(t, left, 1)
	require.Equal(t, domain.ConnID("a"), left[0].Conn)
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := New()
	connect(r, "a")

	_, _, err := r.Join("a", "r1", "alice")
	require.NoError(t, err)
	r.Leave("a")
	r.Leave("a")
	r.Leave("unknown")
	require.Empty(t, r.List())
}

func TestMuteBroadcastIncludesSenderAndDedupes(t *testing.T) {
	r := New()
	ca := connect(r, "a")
	cb := connect(r, "b")

	_, _, err := r.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, _, err = r.Join("b", "r1", "bob")
	require.NoError(t, err)

	r.SetMuted("a", true)
	r.SetMuted("a", true)

	for _, c := range []*fakeConn{ca, cb} {
		muted := c.eventsOfType(t, protocol.TypeUserMuted)
		require.Len(t, muted, 1)
		require.Equal(t, domain.ConnID("a"), muted[0].Conn)
		require.NotNil(t, muted[0].Muted)
		require.True(t, *muted[0].Muted)
	}

	r.SetMuted("a", false)
	require.Len(t, ca.eventsOfType(t, protocol.TypeUserMuted), 2)
}

func TestMuteBeforeJoinIsNoop(t *testing.T) {
	r := New()
	ca := connect(r, "a")
	r.SetMuted("a", true)
	require.Empty(t, ca.events(t))
}

func TestRelayTagsSenderAndPreservesPayload(t *testing.T) {
	r := New()
	connect(r, "a")
	cb := connect(r, "b")

	payload := json.RawMessage(`{"sdp":"v=0...","type":"offer"}`)
	r.Relay("a", "b", protocol.TypeOffer, payload)

	offers := cb.eventsOfType(t, protocol.TypeOffer)
	require.Len(t, offers, 1)
	require.Equal(t, domain.ConnID("a"), offers[0].From)
	require.JSONEq(t, string(payload), string(offers[0].Payload))
}

func TestRelayToMissingTargetIsDropped(t *testing.T) {
	r := New()
	connect(r, "a")

	// Must not panic or error; the sender learns of departure via user-left.
	r.Relay("a", "gone", protocol.TypeICE, json.RawMessage(`{}`))
}

func TestConcurrentJoinsKeepNamesUnique(t *testing.T) {
	r := New()
	const n = 32
	for i := 0; i < n; i++ {
		connect(r, domain.ConnID(rune('a'+i)))
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = r.Join(domain.ConnID(rune('a'+i)), "r1", "alice")
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrNameTaken)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, r.RoomSize("r1"))
}
