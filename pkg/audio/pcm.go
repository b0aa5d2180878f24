package audio

import (
	"encoding/binary"
	"math"
)

// PCMDecoder converts little-endian 16-bit PCM byte streams into float32
// samples in [-1, 1). Byte payloads may split a sample across writes, so
// the decoder carries a dangling odd byte between calls.
type PCMDecoder struct {
	carry    byte
	hasCarry bool
}

// Write decodes as many complete samples as the input allows. A trailing
// odd byte is held back and joined with the next call.
func (d *PCMDecoder) Write(p []byte) []float32 {
	if len(p) == 0 {
		return nil
	}
	if d.hasCarry {
		joined := make([]byte, 0, len(p)+1)
		joined = append(joined, d.carry)
		joined = append(joined, p...)
		p = joined
		d.hasCarry = false
	}
	if len(p)%2 == 1 {
		d.carry = p[len(p)-1]
		d.hasCarry = true
		p = p[:len(p)-1]
	}
	if len(p) == 0 {
		return nil
	}
	out := make([]float32, len(p)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(p[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Pending reports whether a dangling byte is waiting for its pair.
func (d *PCMDecoder) Pending() bool {
	return d.hasCarry
}

// Reset discards any carried byte.
func (d *PCMDecoder) Reset() {
	d.hasCarry = false
	d.carry = 0
}

// DecodePCM16 converts a complete PCM16LE payload. A trailing odd byte
// is ignored.
func DecodePCM16(p []byte) []float32 {
	var d PCMDecoder
	return d.Write(p)
}

// EncodePCM16 converts float32 samples back to PCM16LE, clamping out-of-range
// values.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// RMS returns the root mean square energy of the samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
