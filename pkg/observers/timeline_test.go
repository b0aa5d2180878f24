package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cortexmed/scriba/pkg/metrics"
	"github.com/cortexmed/scriba/pkg/redact"
)

func TestTimelineWritesPerSessionFile(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	defer obs.Close()

	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventTranscribeOK,
		Time: time.Now(),
		Tags: map[string]string{metrics.TagSessionID: "sess-1"},
		Fields: map[string]any{
			"text": "no acute findings",
		},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventSessionClosed,
		Time: time.Now(),
		Tags: map[string]string{metrics.TagSessionID: "sess-1"},
	})

	data, err := os.ReadFile(filepath.Join(dir, "session_sess-1.jsonl"))
	if err != nil {
		t.Fatalf("read timeline: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(lines))
	}
	var entry timelineEvent
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.Event != metrics.EventTranscribeOK || entry.SessionID != "sess-1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestTimelineRedactsTranscriptField(t *testing.T) {
	redact.SetEnabled(true)
	defer redact.SetEnabled(false)

	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	defer obs.Close()

	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventTranscribeOK,
		Time:   time.Now(),
		Tags:   map[string]string{metrics.TagSessionID: "sess-2"},
		Fields: map[string]any{"text": "patient MRN: 12345 stable"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventSessionClosed,
		Time: time.Now(),
		Tags: map[string]string{metrics.TagSessionID: "sess-2"},
	})

	data, err := os.ReadFile(filepath.Join(dir, "session_sess-2.jsonl"))
	if err != nil {
		t.Fatalf("read timeline: %v", err)
	}
	if strings.Contains(string(data), "12345") {
		t.Fatalf("expected MRN redacted in %s", data)
	}
}

func TestTimelineIgnoresEventsWithoutSession(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	defer obs.Close()

	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventAudioIn, Time: time.Now()})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}
