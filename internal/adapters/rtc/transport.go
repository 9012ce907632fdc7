// Package rtc implements peer.MediaTransport on top of pion/webrtc. One
// PeerConnection per remote peer; descriptions and candidates cross the
// package boundary as the same opaque JSON that travels the signaling
// channel.
package rtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/peer"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Factory builds one Transport per remote peer. OnRemoteTrack, when set,
// receives every inbound audio track so the application can meter or play
// it.
type Factory struct {
	Config        webrtc.Configuration
	OnRemoteTrack func(remote domain.ConnID, track *webrtc.TrackRemote)
}

func NewFactory() *Factory {
	return &Factory{Config: DefaultWebRTCConfig()}
}

func (f *Factory) NewTransport(remote domain.ConnID, ev peer.TransportEvents) (peer.MediaTransport, error) {
	pc, err := webrtc.NewPeerConnection(f.Config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	t := &Transport{pc: pc, remote: remote}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || ev.OnCandidate == nil {
			return
		}
		payload, err := json.Marshal(cand.ToJSON())
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("remote", string(remote)).Msg("marshal candidate")
			return
		}
		ev.OnCandidate(payload)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).Str("state", s.String()).Msg("peer state")
		if ev.OnConnectivity == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			ev.OnConnectivity(peer.ConnectivityConnected)
		case webrtc.PeerConnectionStateDisconnected:
			ev.OnConnectivity(peer.ConnectivityDisconnected)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			ev.OnConnectivity(peer.ConnectivityFailed)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).
			Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		if f.OnRemoteTrack != nil {
			f.OnRemoteTrack(remote, track)
		}
	})

	return t, nil
}

// Transport wraps one pion PeerConnection.
type Transport struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnID

	mu     sync.Mutex
	sender *webrtc.RTPSender
}

func (t *Transport) CreateOffer() (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (t *Transport) CreateAnswer() (json.RawMessage, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

func (t *Transport) SetRemoteDescription(payload json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("decode description: %w", err)
	}
	return t.pc.SetRemoteDescription(desc)
}

func (t *Transport) AddICECandidate(payload json.RawMessage) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &cand); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return t.pc.AddICECandidate(cand)
}

func (t *Transport) AttachTrack(track peer.LocalTrack) error {
	local, ok := track.(webrtc.TrackLocal)
	if !ok {
		return fmt.Errorf("unsupported local track %T", track)
	}
	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	t.mu.Lock()
	t.sender = sender
	t.mu.Unlock()
	return nil
}

// ReplaceTrack swaps the outgoing track on the existing sender. The
// replacement is substitutive: no new offer/answer cycle.
func (t *Transport) ReplaceTrack(track peer.LocalTrack) error {
	local, ok := track.(webrtc.TrackLocal)
	if !ok {
		return fmt.Errorf("unsupported local track %T", track)
	}
	t.mu.Lock()
	sender := t.sender
	t.mu.Unlock()
	if sender == nil {
		return t.AttachTrack(track)
	}
	return sender.ReplaceTrack(local)
}

func (t *Transport) Close() {
	if err := t.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("remote", string(t.remote)).Msg("close error")
		return
	}
	log.Info().Str("module", "rtc").Str("remote", string(t.remote)).Msg("closed")
}
