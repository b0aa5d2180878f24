package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/session"
)

// ClientMessage is the inbound JSON envelope. Unknown fields and
// unknown types are protocol errors; they never terminate the session.
type ClientMessage struct {
	Type   string         `json:"type"`
	Config *ConfigPayload `json:"config,omitempty"`
	Data   string         `json:"data,omitempty"`
}

// ConfigPayload carries the client-settable session options. Pointer
// fields distinguish "absent" from zero values.
type ConfigPayload struct {
	Language         *string  `json:"language,omitempty"`
	MedicalContext   *bool    `json:"medical_context,omitempty"`
	QualityThreshold *float64 `json:"quality_threshold,omitempty"`
}

func (p *ConfigPayload) patch() session.Patch {
	if p == nil {
		return session.Patch{}
	}
	return session.Patch{
		Language:         p.Language,
		MedicalContext:   p.MedicalContext,
		QualityThreshold: p.QualityThreshold,
	}
}

// ParseClientMessage decodes one inbound envelope, rejecting unknown
// keys.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return ClientMessage{}, errorsx.Wrap(err, errorsx.ReasonProtocol)
	}
	return msg, nil
}

type serverMessage struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      *resultPayload `json:"data,omitempty"`
}

type resultPayload struct {
	Text           string        `json:"text"`
	Language       string        `json:"language"`
	Confidence     float64       `json:"confidence"`
	ProcessingTime float64       `json:"processing_time"`
	MedicalTerms   []string      `json:"medical_terms"`
	QualityScore   float64       `json:"quality_score"`
	SignalQuality  float64       `json:"signal_quality"`
	Segments       []segmentJSON `json:"segments"`
}

type segmentJSON struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// encodeEvent maps a session event to its wire form.
func encodeEvent(ev session.Event) ([]byte, error) {
	msg := serverMessage{Type: string(ev.Type)}
	switch ev.Type {
	case session.EventHeartbeat:
		msg.Timestamp = ev.Timestamp
	case session.EventConfigUpdated, session.EventSessionEnded:
		msg.SessionID = ev.SessionID
	case session.EventError:
		msg.Message = ev.Message
	case session.EventTranscription:
		if ev.Result != nil {
			payload := &resultPayload{
				Text:           ev.Result.Text,
				Language:       ev.Result.Language,
				Confidence:     ev.Result.Confidence,
				ProcessingTime: ev.Result.ProcessingTime,
				MedicalTerms:   ev.Result.MedicalTerms,
				QualityScore:   ev.Result.QualityScore,
				SignalQuality:  ev.Result.SignalQuality,
			}
			if payload.MedicalTerms == nil {
				payload.MedicalTerms = []string{}
			}
			payload.Segments = make([]segmentJSON, 0, len(ev.Result.Segments))
			for _, seg := range ev.Result.Segments {
				payload.Segments = append(payload.Segments, segmentJSON{Start: seg.Start, End: seg.End, Text: seg.Text})
			}
			msg.Data = payload
		}
	}
	return json.Marshal(msg)
}

func encodeError(message string) []byte {
	b, _ := json.Marshal(serverMessage{Type: string(session.EventError), Message: message})
	return b
}
