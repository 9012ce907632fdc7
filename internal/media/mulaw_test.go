package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulawRoundTripIsMonotonicAndBounded(t *testing.T) {
	// Companding is lossy, so check sign, rough magnitude and extremes
	// rather than exact values.
	for _, s := range []int16{0, 1, -1, 100, -100, 1000, -1000, 16000, -16000, 32000, -32000, 32767, -32768} {
		got := mulawToLinear(linearToMulaw(s))
		if s > 64 {
			require.Positive(t, got, "sample %d", s)
		}
		if s < -64 {
			require.Negative(t, got, "sample %d", s)
		}
		diff := int32(got) - int32(s)
		if diff < 0 {
			diff = -diff
		}
		// Worst-case quantization error for mu-law is under 1024 at full
		// scale.
		require.LessOrEqual(t, diff, int32(1024), "sample %d", s)
	}
}

func TestMulawSilenceDecodesNearZero(t *testing.T) {
	got := mulawToLinear(mulawSilence)
	require.LessOrEqual(t, got, int16(8))
	require.GreaterOrEqual(t, got, int16(-8))
}
