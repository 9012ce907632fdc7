package media

import (
	"context"
	"math"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/domain"
)

// LevelMeter consumes inbound audio tracks and reports a scalar loudness
// sample per peer, scaled 0-100 the way the web client's analyser does.
type LevelMeter struct {
	mu     sync.RWMutex
	levels map[domain.ConnID]int
}

func NewLevelMeter() *LevelMeter {
	return &LevelMeter{levels: make(map[domain.ConnID]int)}
}

// Watch drains one remote track until it ends or ctx is done. Intended to
// run as a goroutine per inbound track.
func (m *LevelMeter) Watch(ctx context.Context, remote domain.ConnID, track *webrtc.TrackRemote) {
	defer m.Forget(remote)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "media").Str("remote", string(remote)).Msg("track read done")
			return
		}
		m.set(remote, packetLevel(pkt))
	}
}

// Level returns the latest loudness sample for a peer, zero when unknown.
func (m *LevelMeter) Level(remote domain.ConnID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levels[remote]
}

func (m *LevelMeter) Forget(remote domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.levels, remote)
}

func (m *LevelMeter) set(remote domain.ConnID, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[remote] = level
}

// packetLevel computes the RMS loudness of one PCMU packet, scaled to
// 0-100 with the same 1.2x boost and cap the browser client applies so
// normal speech does not max the meter out.
func packetLevel(pkt *rtp.Packet) int {
	if len(pkt.Payload) == 0 {
		return 0
	}
	var sum float64
	for _, b := range pkt.Payload {
		s := float64(mulawToLinear(b))
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(pkt.Payload)))
	level := int(math.Round(rms / math.MaxInt16 * 120))
	if level > 100 {
		level = 100
	}
	return level
}
