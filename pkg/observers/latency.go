package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cortexmed/scriba/pkg/metrics"
)

// LatencyObserver tracks per-session dictation latency: time from the first
// audio byte to the first transcription, plus chunk and error counts. One
// summary line is logged when the session closes.
type LatencyObserver struct {
	mu       sync.Mutex
	sessions map[string]*sessionTrace
	log      *slog.Logger
}

type sessionTrace struct {
	firstAudio  time.Time
	firstResult time.Time
	chunks      int
	skipped     int
	errors      int
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		sessions: make(map[string]*sessionTrace),
		log:      log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ""
	if ev.Tags != nil {
		id = ev.Tags[metrics.TagSessionID]
	}
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.sessions[id]
	if t == nil {
		t = &sessionTrace{}
		o.sessions[id] = t
	}
	switch ev.Name {
	case metrics.EventAudioIn:
		if t.firstAudio.IsZero() {
			t.firstAudio = ev.Time
		}
	case metrics.EventChunkDrained:
		t.chunks++
	case metrics.EventChunkSkipped:
		t.skipped++
	case metrics.EventTranscribeOK:
		if t.firstResult.IsZero() {
			t.firstResult = ev.Time
		}
	case metrics.EventTranscribeErr:
		t.errors++
	case metrics.EventSessionClosed:
		o.logSummaryLocked(id, t)
		delete(o.sessions, id)
	}
}

func (o *LatencyObserver) logSummaryLocked(id string, t *sessionTrace) {
	o.log.Info("session_latency",
		"session_id", id,
		"first_result_ms", durationMs(t.firstAudio, t.firstResult),
		"chunks", t.chunks,
		"chunks_skipped", t.skipped,
		"errors", t.errors,
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
