package audio

// G.711 mu-law expansion, used by telephony media streams carrying 8 kHz
// single-channel audio.

const mulawBias = 0x84

// DecodeMuLaw expands mu-law bytes into float32 samples in [-1, 1).
func DecodeMuLaw(p []byte) []float32 {
	out := make([]float32, len(p))
	for i, b := range p {
		out[i] = float32(muLawToLinear(b)) / 32768.0
	}
	return out
}

func muLawToLinear(u byte) int16 {
	u = ^u
	t := int16(((uint16(u) & 0x0F) << 3) + mulawBias)
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return mulawBias - t
	}
	return t - mulawBias
}
