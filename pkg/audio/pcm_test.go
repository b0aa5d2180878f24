package audio

import (
	"math"
	"testing"
)

func TestDecodePCM16KnownValues(t *testing.T) {
	// 0x0000 -> 0, 0x7FFF -> ~1, 0x8000 -> -1
	in := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	out := DecodePCM16(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(out))
	}
	if out[0] != 0 {
		t.Fatalf("expected 0, got %f", out[0])
	}
	if math.Abs(float64(out[1])-32767.0/32768.0) > 1e-6 {
		t.Fatalf("expected max positive, got %f", out[1])
	}
	if out[2] != -1.0 {
		t.Fatalf("expected -1, got %f", out[2])
	}
}

func TestDecoderCarriesOddByte(t *testing.T) {
	var d PCMDecoder
	first := d.Write([]byte{0x00, 0x00, 0xFF})
	if len(first) != 1 {
		t.Fatalf("expected 1 sample from first write, got %d", len(first))
	}
	if !d.Pending() {
		t.Fatalf("decoder should be holding an odd byte")
	}
	second := d.Write([]byte{0x7F})
	if len(second) != 1 {
		t.Fatalf("expected 1 sample from joined bytes, got %d", len(second))
	}
	if math.Abs(float64(second[0])-32767.0/32768.0) > 1e-6 {
		t.Fatalf("carried byte joined wrong: %f", second[0])
	}
	if d.Pending() {
		t.Fatalf("decoder should have consumed the carry")
	}
}

func TestEncodePCM16RoundTripAndClamp(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1.5, -1.5}
	out := DecodePCM16(EncodePCM16(samples))
	if len(out) != len(samples) {
		t.Fatalf("length mismatch: %d", len(out))
	}
	if math.Abs(float64(out[1])-0.5) > 1e-3 || math.Abs(float64(out[2])+0.5) > 1e-3 {
		t.Fatalf("round trip drifted: %v", out)
	}
	if math.Abs(float64(out[3])-32767.0/32768.0) > 1e-6 {
		t.Fatalf("positive overflow not clamped: %f", out[3])
	}
	if out[4] != -1.0 {
		t.Fatalf("negative overflow not clamped: %f", out[4])
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Fatalf("empty RMS should be 0")
	}
	got := RMS([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %f", got)
	}
}

func TestDecodeMuLaw(t *testing.T) {
	// 0xFF encodes zero in mu-law.
	out := DecodeMuLaw([]byte{0xFF})
	if math.Abs(float64(out[0])) > 1e-4 {
		t.Fatalf("0xFF should decode near zero, got %f", out[0])
	}
	// Sign bit separates positive and negative codes of equal magnitude.
	pair := DecodeMuLaw([]byte{0x3F, 0xBF})
	if pair[0] != -pair[1] {
		t.Fatalf("mirror codes should be symmetric: %f vs %f", pair[0], pair[1])
	}
	// Smaller code value means larger magnitude.
	loud := DecodeMuLaw([]byte{0x80})
	if math.Abs(float64(loud[0])) < 0.9 {
		t.Fatalf("0x80 should decode near full scale, got %f", loud[0])
	}
}
