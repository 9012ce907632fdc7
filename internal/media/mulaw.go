package media

// G.711 mu-law companding. PCMU keeps the client dependency-free: the
// codec is trivial to implement and every WebRTC stack negotiates it.

const (
	ulawBias = 0x84
	ulawClip = 32635
)

func linearToMulaw(sample int16) byte {
	s := int32(sample)
	var sign byte
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exponent := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	s := ((int32(mantissa)<<3 + ulawBias) << exponent) - ulawBias
	if sign != 0 {
		s = -s
	}
	return int16(s)
}

// mulawSilence is the mu-law code for a zero sample.
var mulawSilence = linearToMulaw(0)
