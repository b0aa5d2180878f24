package session

import (
	"github.com/cortexmed/scriba/pkg/adapters/asr"
	"github.com/cortexmed/scriba/pkg/errorsx"
)

// EventType discriminates outbound session events.
type EventType string

const (
	EventHeartbeat     EventType = "heartbeat"
	EventConfigUpdated EventType = "config_updated"
	EventTranscription EventType = "transcription"
	EventSessionEnded  EventType = "session_ended"
	EventError         EventType = "error"
)

// Event is one outbound message on a session's event stream.
type Event struct {
	Type      EventType
	SessionID string
	Timestamp int64
	Result    *Result
	Message   string
	Reason    errorsx.ReasonCode
}

// Result bundles raw backend output with enrichment output for one
// chunk. SignalQuality is the chunk's RMS energy; QualityScore is the
// enrichment score. They measure different things and stay separate.
type Result struct {
	Text           string
	Language       string
	Confidence     float64
	ProcessingTime float64
	MedicalTerms   []string
	QualityScore   float64
	SignalQuality  float64
	Segments       []asr.Segment
}
