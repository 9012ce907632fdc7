package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cagricesur/noobz-voice/internal/adapters/rtc"
	"github.com/cagricesur/noobz-voice/internal/client"
	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/media"
	"github.com/cagricesur/noobz-voice/internal/peer"
)

var (
	flagServer string
	flagRoom   string
	flagName   string
	flagTone   float64
	flagMuted  bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a voice room and stay connected until interrupted",
	Long: `Connects to the signaling server, joins the room and negotiates audio
with every member. A sine tone stands in for the microphone.

Examples:
  noobz-voice join --room lobby --name alice
  noobz-voice join --server wss://voice.example.com/api/ws/signal --room ops --muted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRoom == "" {
			return errors.New("--room is required")
		}
		return runJoin(cmd.Context())
	},
}

func runJoin(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sock, err := client.Dial(flagServer)
	if err != nil {
		return err
	}

	var source peer.AudioSource
	meter := media.NewLevelMeter()
	tone, err := media.NewToneSource(flagTone)
	if err != nil {
		// Presence-only: stay in the room without an outgoing track.
		log.Warn().Err(err).Str("module", "cli").Msg("no local audio, joining muted")
	} else {
		tone.Start(ctx)
		source = tone
	}

	factory := rtc.NewFactory()
	factory.OnRemoteTrack = func(remote domain.ConnID, track *webrtc.TrackRemote) {
		go meter.Watch(ctx, remote, track)
	}

	voice := client.New(sock, factory, source, flagRoom, flagName)
	if flagMuted {
		voice.SetMuted(true)
	}

	go reportLevels(ctx, voice, meter)

	err = voice.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Str("module", "cli").Msg("left room")
		return nil
	}
	return err
}

// reportLevels prints who is talking, the terminal stand-in for the web
// client's level bars.
func reportLevels(ctx context.Context, voice *client.Voice, meter *media.LevelMeter) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for id, p := range voice.Roster() {
				ev := log.Info().Str("module", "cli").Str("name", p.DisplayName).
					Int("level", meter.Level(id))
				if p.Muted {
					ev = ev.Bool("muted", true)
				}
				ev.Msg("peer")
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
	joinCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "room id")
	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "display name, guest name when empty")
	joinCmd.Flags().Float64VarP(&flagTone, "tone", "t", 440, "tone frequency in Hz")
	joinCmd.Flags().BoolVarP(&flagMuted, "muted", "m", false, "join muted")
}
