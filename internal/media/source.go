// Package media provides the headless client's local audio source and the
// inbound loudness meter. The rest of the system treats audio as opaque:
// this package is the only place samples are produced or inspected.
package media

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/peer"
)

const (
	sampleRate    = 8000
	frameDuration = 20 * time.Millisecond
	frameSamples  = sampleRate / 50
)

// ToneSource is a synthetic microphone: a PCMU sine tone written to a
// shared local track. Disabling it keeps the track attached and writes
// silence, which is exactly what mute means.
type ToneSource struct {
	track   *webrtc.TrackLocalStaticSample
	freq    float64
	enabled atomic.Bool
}

func NewToneSource(freq float64) (*ToneSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: sampleRate, Channels: 1},
		"audio", "noobz-voice",
	)
	if err != nil {
		return nil, err
	}
	s := &ToneSource{track: track, freq: freq}
	s.enabled.Store(true)
	return s, nil
}

func (s *ToneSource) Track() peer.LocalTrack { return s.track }

func (s *ToneSource) SetEnabled(on bool) { s.enabled.Store(on) }

// Start writes one 20ms frame per tick until ctx is done. Write errors are
// logged and skipped; the track keeps its pacing either way.
func (s *ToneSource) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()

		var phase float64
		step := 2 * math.Pi * s.freq / sampleRate
		frame := make([]byte, frameSamples)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.enabled.Load() {
					for i := range frame {
						amp := int16(math.Sin(phase) * 0.25 * math.MaxInt16)
						frame[i] = linearToMulaw(amp)
						phase += step
					}
				} else {
					for i := range frame {
						frame[i] = mulawSilence
					}
				}
				sample := media.Sample{Data: append([]byte(nil), frame...), Duration: frameDuration}
				if err := s.track.WriteSample(sample); err != nil {
					log.Debug().Err(err).Str("module", "media").Msg("write sample")
				}
			}
		}
	}()
}
