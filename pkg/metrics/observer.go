package metrics

import "time"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

// Event names recorded by the session engine.
const (
	EventSessionCreated = "session_created"
	EventSessionClosed  = "session_closed"
	EventAudioIn        = "audio_in"
	EventChunkDrained   = "chunk_drained"
	EventChunkSkipped   = "chunk_skipped_low_rms"
	EventTranscribeOK   = "transcribe_ok"
	EventTranscribeErr  = "transcribe_error"
	EventBreakerOpen    = "breaker_open"
	EventBreakerClose   = "breaker_close"
	EventBreakerDenied  = "breaker_denied"
)

// Tag keys shared across observers.
const (
	TagSessionID = "session_id"
	TagComponent = "component"
	TagProvider  = "provider"
	TagReason    = "reason_code"
)

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
