package asr

import "context"

// Transcriber defines the contract for any speech-to-text engine
// implementation. Engines are batch-oriented: one call transcribes one
// audio chunk. Callers bound each call with a context timeout; engines
// that block internally must honor cancellation.
type Transcriber interface {
	// Name returns the engine name for logging/metrics.
	Name() string
	// Ready reports whether the engine can accept work. A non-nil
	// error carries the unavailability detail.
	Ready() error
	// Transcribe converts one chunk of audio into text.
	Transcribe(ctx context.Context, req Request) (Result, error)
	// Close releases engine resources.
	Close() error
}

// Request carries one chunk of mono audio for transcription.
type Request struct {
	Samples        []float32
	SampleRate     int
	Language       string
	MedicalContext bool
}

// Segment is a timed span of transcribed text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the raw engine output before enrichment.
type Result struct {
	Text             string
	DetectedLanguage string
	Confidence       float64
	Segments         []Segment
}
