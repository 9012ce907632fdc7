package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/protocol"
)

type fakeTrack struct{ id string }

func (t *fakeTrack) ID() string { return t.id }

type fakeSource struct {
	track   *fakeTrack
	enabled bool
}

func newFakeSource(id string) *fakeSource {
	return &fakeSource{track: &fakeTrack{id: id}, enabled: true}
}

func (s *fakeSource) Track() LocalTrack  { return s.track }
func (s *fakeSource) SetEnabled(on bool) { s.enabled = on }

// fakeTransport records every call in order and can be told to fail a step.
type fakeTransport struct {
	mu       sync.Mutex
	remote   domain.ConnID
	ev       TransportEvents
	applied  []string // ordered log: setRemote:<sdp>, candidate:<c>, attach:<id>, replace:<id>
	closed   bool
	offerErr error
	remErr   error
}

func (t *fakeTransport) log(entry string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = append(t.applied, entry)
}

func (t *fakeTransport) calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.applied...)
}

func (t *fakeTransport) CreateOffer() (json.RawMessage, error) {
	if t.offerErr != nil {
		return nil, t.offerErr
	}
	t.log("createOffer")
	return json.RawMessage(`{"type":"offer"}`), nil
}

func (t *fakeTransport) CreateAnswer() (json.RawMessage, error) {
	t.log("createAnswer")
	return json.RawMessage(`{"type":"answer"}`), nil
}

func (t *fakeTransport) SetRemoteDescription(p json.RawMessage) error {
	if t.remErr != nil {
		return t.remErr
	}
	t.log("setRemote:" + string(p))
	return nil
}

func (t *fakeTransport) AddICECandidate(p json.RawMessage) error {
	t.log("candidate:" + string(p))
	return nil
}

func (t *fakeTransport) AttachTrack(tr LocalTrack) error {
	t.log("attach:" + tr.ID())
	return nil
}

func (t *fakeTransport) ReplaceTrack(tr LocalTrack) error {
	t.log("replace:" + tr.ID())
	return nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

type fakeFactory struct {
	mu         sync.Mutex
	transports map[domain.ConnID]*fakeTransport
	nextOffer  error
	nextRemote error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transports: make(map[domain.ConnID]*fakeTransport)}
}

func (f *fakeFactory) NewTransport(remote domain.ConnID, ev TransportEvents) (MediaTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTransport{remote: remote, ev: ev, offerErr: f.nextOffer, remErr: f.nextRemote}
	f.transports[remote] = t
	return t, nil
}

func (f *fakeFactory) transport(remote domain.ConnID) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[remote]
}

type sentSignal struct {
	To      domain.ConnID
	Type    string
	Payload json.RawMessage
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentSignal
}

func (s *fakeSender) SendSignal(to domain.ConnID, typ string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentSignal{To: to, Type: typ, Payload: payload})
	return nil
}

func (s *fakeSender) ofType(typ string) []sentSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentSignal
	for _, sig := range s.sent {
		if sig.Type == typ {
			out = append(out, sig)
		}
	}
	return out
}

func newTestManager() (*Manager, *fakeFactory, *fakeSender, *fakeSource) {
	f := newFakeFactory()
	s := &fakeSender{}
	src := newFakeSource("mic0")
	return NewManager(f, s, src), f, s, src
}

func TestUserJoinedMakesUsOfferer(t *testing.T) {
	m, f, s, _ := newTestManager()

	m.HandlePeerJoined("bob")

	state, role, ok := m.PeerState("bob")
	require.True(t, ok)
	require.Equal(t, RoleOfferer, role)
	require.Equal(t, StateAwaitingRemoteDescription, state)

	offers := s.ofType(protocol.TypeOffer)
	require.Len(t, offers, 1)
	require.Equal(t, domain.ConnID("bob"), offers[0].To)

	tr := f.transport("bob")
	require.Equal(t, []string{"attach:mic0", "createOffer"}, tr.calls())
}

func TestInboundOfferMakesUsAnswerer(t *testing.T) {
	m, f, s, _ := newTestManager()

	m.HandleOffer("alice", json.RawMessage(`{"sdp":"o"}`))

	state, role, ok := m.PeerState("alice")
	require.True(t, ok)
	require.Equal(t, RoleAnswerer, role)
	require.Equal(t, StateConnecting, state)

	answers := s.ofType(protocol.TypeAnswer)
	require.Len(t, answers, 1)
	require.Equal(t, domain.ConnID("alice"), answers[0].To)

	tr := f.transport("alice")
	require.Equal(t, []string{"attach:mic0", `setRemote:{"sdp":"o"}`, "createAnswer"}, tr.calls())
}

func TestRoleIsFixedAtCreation(t *testing.T) {
	m, _, s, _ := newTestManager()

	m.HandlePeerJoined("bob")
	_, role, _ := m.PeerState("bob")
	require.Equal(t, RoleOfferer, role)

	// A later inbound offer from the same peer does not flip the role or
	// restart the handshake.
	m.HandleOffer("bob", json.RawMessage(`{"sdp":"glare"}`))
	_, role, _ = m.PeerState("bob")
	require.Equal(t, RoleOfferer, role)
	require.Len(t, s.ofType(protocol.TypeAnswer), 0)

	// Nor does a duplicate join announcement re-offer.
	m.HandlePeerJoined("bob")
	require.Len(t, s.ofType(protocol.TypeOffer), 1)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	m, f, _, _ := newTestManager()

	m.HandlePeerJoined("bob")

	c1 := json.RawMessage(`{"candidate":"c1"}`)
	c2 := json.RawMessage(`{"candidate":"c2"}`)
	c3 := json.RawMessage(`{"candidate":"c3"}`)
	m.HandleCandidate("bob", c1)
	m.HandleCandidate("bob", c2)
	m.HandleCandidate("bob", c3)

	tr := f.transport("bob")
	require.Equal(t, []string{"attach:mic0", "createOffer"}, tr.calls(),
		"no candidate may be applied before the remote description")

	m.HandleAnswer("bob", json.RawMessage(`{"sdp":"a"}`))

	require.Equal(t, []string{
		"attach:mic0",
		"createOffer",
		`setRemote:{"sdp":"a"}`,
		`candidate:{"candidate":"c1"}`,
		`candidate:{"candidate":"c2"}`,
		`candidate:{"candidate":"c3"}`,
	}, tr.calls(), "buffered candidates flush FIFO exactly once")

	// After the flush, candidates apply immediately and the buffer stays
	// empty.
	c4 := json.RawMessage(`{"candidate":"c4"}`)
	m.HandleCandidate("bob", c4)
	calls := tr.calls()
	require.Equal(t, `candidate:{"candidate":"c4"}`, calls[len(calls)-1])
	require.Len(t, calls, 7)
}

func TestAnswererFlushesCandidatesThatRacedTheOffer(t *testing.T) {
	m, f, _, _ := newTestManager()

	// Candidates for a peer we have never seen are dropped, not buffered.
	m.HandleCandidate("alice", json.RawMessage(`{"candidate":"early"}`))
	require.Nil(t, f.transport("alice"))

	m.HandleOffer("alice", json.RawMessage(`{"sdp":"o"}`))
	m.HandleCandidate("alice", json.RawMessage(`{"candidate":"c1"}`))

	tr := f.transport("alice")
	calls := tr.calls()
	require.Equal(t, `candidate:{"candidate":"c1"}`, calls[len(calls)-1])
}

func TestConnectivityTransitions(t *testing.T) {
	m, f, _, _ := newTestManager()

	m.HandlePeerJoined("bob")
	m.HandleAnswer("bob", json.RawMessage(`{"sdp":"a"}`))

	state, _, _ := m.PeerState("bob")
	require.Equal(t, StateConnecting, state)

	f.transport("bob").ev.OnConnectivity(ConnectivityConnected)
	state, _, _ = m.PeerState("bob")
	require.Equal(t, StateConnected, state)

	f.transport("bob").ev.OnConnectivity(ConnectivityDisconnected)
	state, _, _ = m.PeerState("bob")
	require.Equal(t, StateFailed, state)

	// Failure is observed, not acted upon: the transport stays open and no
	// new offer goes out.
	require.False(t, f.transport("bob").closed)
}

func TestConnectivityIgnoredBeforeConnecting(t *testing.T) {
	m, f, _, _ := newTestManager()

	m.HandlePeerJoined("bob")
	f.transport("bob").ev.OnConnectivity(ConnectivityFailed)

	state, _, _ := m.PeerState("bob")
	require.Equal(t, StateAwaitingRemoteDescription, state)
}

func TestPeerLeftTearsDownImmediately(t *testing.T) {
	m, f, _, _ := newTestManager()

	m.HandlePeerJoined("bob")
	m.HandleCandidate("bob", json.RawMessage(`{"candidate":"c1"}`))
	m.HandlePeerLeft("bob")

	require.True(t, f.transport("bob").closed)
	_, _, ok := m.PeerState("bob")
	require.False(t, ok)

	// Buffered candidates died with the negotiation: a late answer for the
	// departed peer is dropped.
	m.HandleAnswer("bob", json.RawMessage(`{"sdp":"late"}`))
	for _, call := range f.transport("bob").calls() {
		require.NotContains(t, call, "setRemote")
	}
}

func TestOfferFailureHaltsPeerInPlace(t *testing.T) {
	f := newFakeFactory()
	f.nextOffer = errors.New("boom")
	s := &fakeSender{}
	m := NewManager(f, s, newFakeSource("mic0"))

	m.HandlePeerJoined("bob")

	state, _, ok := m.PeerState("bob")
	require.True(t, ok)
	require.Equal(t, StateNegotiating, state, "stuck peer stays where the step failed")
	require.Empty(t, s.ofType(protocol.TypeOffer), "no message goes to the remote side")
}

func TestRemoteDescriptionFailureSendsNothing(t *testing.T) {
	f := newFakeFactory()
	f.nextRemote = errors.New("bad sdp")
	s := &fakeSender{}
	m := NewManager(f, s, newFakeSource("mic0"))

	m.HandleOffer("alice", json.RawMessage(`{"sdp":"o"}`))
	require.Empty(t, s.ofType(protocol.TypeAnswer))
}

func TestMuteTogglesSourceWithoutTouchingTransports(t *testing.T) {
	m, f, _, src := newTestManager()

	m.HandlePeerJoined("bob")
	before := len(f.transport("bob").calls())

	m.SetMuted(true)
	require.True(t, m.Muted())
	require.False(t, src.enabled)

	m.SetMuted(false)
	require.True(t, src.enabled)

	require.Len(t, f.transport("bob").calls(), before, "mute never renegotiates")
}

func TestReplaceSourcePropagatesToAllNegotiations(t *testing.T) {
	m, f, _, _ := newTestManager()

	m.HandlePeerJoined("bob")
	m.HandleOffer("alice", json.RawMessage(`{"sdp":"o"}`))

	next := newFakeSource("mic1")
	m.SetMuted(true)
	m.ReplaceSource(next)

	for _, remote := range []domain.ConnID{"bob", "alice"} {
		calls := f.transport(remote).calls()
		require.Equal(t, "replace:mic1", calls[len(calls)-1])
	}
	require.False(t, next.enabled, "replacement source inherits the mute state")
}

func TestLocalCandidatesAreRelayedToTheRightPeer(t *testing.T) {
	m, f, s, _ := newTestManager()

	m.HandlePeerJoined("bob")
	m.HandleOffer("alice", json.RawMessage(`{"sdp":"o"}`))

	f.transport("bob").ev.OnCandidate(json.RawMessage(`{"candidate":"for-bob"}`))
	f.transport("alice").ev.OnCandidate(json.RawMessage(`{"candidate":"for-alice"}`))

	ice := s.ofType(protocol.TypeICE)
	require.Len(t, ice, 2)
	require.Equal(t, domain.ConnID("bob"), ice[0].To)
	require.Equal(t, domain.ConnID("alice"), ice[1].To)
}

func TestIndependentPeersProgressIndependently(t *testing.T) {
	m, _, _, _ := newTestManager()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			remote := domain.ConnID(fmt.Sprintf("peer-%d", i))
			m.HandlePeerJoined(remote)
			m.HandleCandidate(remote, json.RawMessage(`{"candidate":"c"}`))
			m.HandleAnswer(remote, json.RawMessage(`{"sdp":"a"}`))
		}(i)
	}
	wg.Wait()

	require.Len(t, m.Peers(), n)
	for i := 0; i < n; i++ {
		state, _, ok := m.PeerState(domain.ConnID(fmt.Sprintf("peer-%d", i)))
		require.True(t, ok)
		require.Equal(t, StateConnecting, state)
	}
}

func TestCloseTearsDownEverything(t *testing.T) {
	m, f, _, _ := newTestManager()

	m.HandlePeerJoined("bob")
	m.HandleOffer("alice", json.RawMessage(`{"sdp":"o"}`))
	m.Close()

	require.Empty(t, m.Peers())
	require.True(t, f.transport("bob").closed)
	require.True(t, f.transport("alice").closed)
}
