package session

import (
	"errors"
	"testing"
	"time"

	"github.com/cortexmed/scriba/pkg/enrich"
	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/lexicon"
	"github.com/cortexmed/scriba/pkg/metrics"
	"github.com/cortexmed/scriba/pkg/providers/fake"
)

func testManager(t *testing.T, backend *fake.Transcriber, opts Options) (*Manager, *metrics.MemoryObserver) {
	t.Helper()
	if backend == nil {
		backend = fake.New()
	}
	obs := metrics.NewMemoryObserver()
	m := NewManager(backend, enrich.NewEnricher(lexicon.Default()), obs, opts)
	return m, obs
}

func loudSamples(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5
	}
	return out
}

// drainEvents reads events until session_ended or the deadline.
func drainEvents(t *testing.T, s *Session, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
			if ev.Type == EventSessionEnded {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for session_ended, got %d events", len(events))
		}
	}
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestCreateEmitsHeartbeat(t *testing.T) {
	m, _ := testManager(t, nil, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	select {
	case ev := <-s.Events():
		if ev.Type != EventHeartbeat {
			t.Fatalf("expected heartbeat first, got %s", ev.Type)
		}
		if ev.Timestamp == 0 {
			t.Fatalf("heartbeat carries no timestamp")
		}
	case <-time.After(time.Second):
		t.Fatalf("no heartbeat")
	}
	s.End()
	drainEvents(t, s, time.Second)
}

func TestEndBeforeAnyChunk(t *testing.T) {
	m, _ := testManager(t, nil, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Below one chunk of audio.
	if err := s.PushSamples(loudSamples(1000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	s.End()
	events := drainEvents(t, s, 2*time.Second)
	if n := len(eventsOfType(events, EventTranscription)); n != 0 {
		t.Fatalf("expected 0 transcriptions, got %d", n)
	}
	if n := len(eventsOfType(events, EventSessionEnded)); n != 1 {
		t.Fatalf("expected exactly 1 session_ended, got %d", n)
	}
	if m.Count() != 0 {
		t.Fatalf("session not removed from registry")
	}
}

func TestChunkScenario16kPlus32k(t *testing.T) {
	backend := fake.New(fake.WithTranscript("no acute findings"))
	m, obs := testManager(t, backend, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PushSamples(loudSamples(16000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := s.PushSamples(loudSamples(32000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return backend.Calls() == 1 })
	s.End()
	events := drainEvents(t, s, 2*time.Second)
	trs := eventsOfType(events, EventTranscription)
	if len(trs) != 1 {
		t.Fatalf("expected exactly 1 transcription, got %d", len(trs))
	}
	if obs.CountByName(metrics.EventChunkDrained) != 1 {
		t.Fatalf("expected exactly 1 drained chunk")
	}
	res := trs[0].Result
	if res == nil || res.Text != "No acute findings" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.SignalQuality < 0.49 || res.SignalQuality > 0.51 {
		t.Fatalf("signal quality should be chunk RMS, got %f", res.SignalQuality)
	}
}

func TestSilentChunksProduceNoTranscription(t *testing.T) {
	backend := fake.New()
	m, obs := testManager(t, backend, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Two full chunks of silence.
	if err := s.PushSamples(make([]float32, 64000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return obs.CountByName(metrics.EventChunkSkipped) == 2 })
	s.End()
	events := drainEvents(t, s, 2*time.Second)
	if n := len(eventsOfType(events, EventTranscription)); n != 0 {
		t.Fatalf("silent chunks produced %d transcriptions", n)
	}
	if backend.Calls() != 0 {
		t.Fatalf("backend called for silent audio")
	}
}

func TestQuietSpeechPassesDefaultGate(t *testing.T) {
	backend := fake.New()
	m, obs := testManager(t, backend, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// One full chunk well below normal speech level but audible.
	quiet := make([]float32, 32000)
	for i := range quiet {
		quiet[i] = 0.005
	}
	if err := s.PushSamples(quiet); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return backend.Calls() == 1 })
	if n := obs.CountByName(metrics.EventChunkSkipped); n != 0 {
		t.Fatalf("quiet chunk skipped %d times", n)
	}
	s.End()
	events := drainEvents(t, s, 2*time.Second)
	if n := len(eventsOfType(events, EventTranscription)); n != 1 {
		t.Fatalf("expected 1 transcription, got %d", n)
	}
}

func TestResultsArriveInChunkOrder(t *testing.T) {
	backend := fake.New(fake.WithScript("first", "second", "third"))
	m, _ := testManager(t, backend, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PushSamples(loudSamples(96000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return backend.Calls() == 3 })
	s.End()
	events := drainEvents(t, s, 2*time.Second)
	trs := eventsOfType(events, EventTranscription)
	if len(trs) != 3 {
		t.Fatalf("expected 3 transcriptions, got %d", len(trs))
	}
	want := []string{"First", "Second", "Third"}
	for i, ev := range trs {
		if ev.Result.Text != want[i] {
			t.Fatalf("result %d out of order: got %q want %q", i, ev.Result.Text, want[i])
		}
	}
}

func TestTimeoutYieldsErrorEventAndSessionContinues(t *testing.T) {
	backend := fake.New(fake.WithDelay(200 * time.Millisecond))
	m, _ := testManager(t, backend, Options{CallTimeout: 20 * time.Millisecond})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PushSamples(loudSamples(32000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return backend.Calls() == 1 })

	// Session must accept the next chunk without restart.
	backend.SetFailure(nil)
	time.Sleep(50 * time.Millisecond)
	if err := s.PushSamples(loudSamples(32000)); err != nil {
		t.Fatalf("second push rejected: %v", err)
	}
	waitFor(t, func() bool { return backend.Calls() == 2 })
	s.End()
	events := drainEvents(t, s, 2*time.Second)

	errs := eventsOfType(events, EventError)
	timeouts := 0
	for _, ev := range errs {
		if ev.Reason == errorsx.ReasonTranscribeTimeout {
			timeouts++
		}
	}
	if timeouts != 2 {
		t.Fatalf("expected 2 timeout errors (one per slow chunk), got %d", timeouts)
	}
}

func TestBackendFailureIsLocalToChunk(t *testing.T) {
	backend := fake.New(fake.WithFailure(errors.New("model exploded")))
	m, _ := testManager(t, backend, Options{BreakerThreshold: 100})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PushSamples(loudSamples(32000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return backend.Calls() == 1 })

	backend.SetFailure(nil)
	if err := s.PushSamples(loudSamples(32000)); err != nil {
		t.Fatalf("push after failure: %v", err)
	}
	waitFor(t, func() bool { return backend.Calls() == 2 })
	s.End()
	events := drainEvents(t, s, 2*time.Second)

	if n := len(eventsOfType(events, EventError)); n != 1 {
		t.Fatalf("expected 1 error event, got %d", n)
	}
	if n := len(eventsOfType(events, EventTranscription)); n != 1 {
		t.Fatalf("expected 1 transcription after recovery, got %d", n)
	}
}

func TestInvalidConfigRetainsPrior(t *testing.T) {
	m, _ := testManager(t, nil, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	lang := "de"
	if err := s.UpdateConfig(Patch{Language: &lang}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	bad := 7.0
	if err := s.UpdateConfig(Patch{QualityThreshold: &bad}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	waitFor(t, func() bool { return s.Config().Language == "de" })
	s.End()
	events := drainEvents(t, s, 2*time.Second)

	if n := len(eventsOfType(events, EventConfigUpdated)); n != 1 {
		t.Fatalf("expected 1 config_updated, got %d", n)
	}
	errs := eventsOfType(events, EventError)
	if len(errs) != 1 || errs[0].Reason != errorsx.ReasonConfig {
		t.Fatalf("expected 1 config error, got %+v", errs)
	}
	cfg := s.Config()
	if cfg.Language != "de" || cfg.QualityThreshold != 0.001 {
		t.Fatalf("prior config not retained: %+v", cfg)
	}
}

func TestUnsupportedLanguageRejected(t *testing.T) {
	cfg := DefaultConfig()
	lang := "xx"
	if _, err := cfg.Apply(Patch{Language: &lang}); !errorsx.HasReason(err, errorsx.ReasonConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestCapacityRejectsBeforeSessionExists(t *testing.T) {
	m, _ := testManager(t, nil, Options{MaxSessions: 1})
	s1, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Create(DefaultConfig()); !errorsx.HasReason(err, errorsx.ReasonCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("rejected connection leaked session state")
	}
	s1.End()
	drainEvents(t, s1, time.Second)
}

func TestDropIsIdempotent(t *testing.T) {
	m, _ := testManager(t, nil, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Drop()
	s.Drop()
	events := drainEvents(t, s, 2*time.Second)
	if n := len(eventsOfType(events, EventSessionEnded)); n != 1 {
		t.Fatalf("expected exactly 1 session_ended, got %d", n)
	}
	if m.Count() != 0 {
		t.Fatalf("session not removed after drop")
	}
}

func TestRemainderDiscardedByDefault(t *testing.T) {
	backend := fake.New()
	m, _ := testManager(t, backend, Options{})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PushSamples(loudSamples(16000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	s.End()
	events := drainEvents(t, s, 2*time.Second)
	if n := len(eventsOfType(events, EventTranscription)); n != 0 {
		t.Fatalf("remainder should be discarded, got %d transcriptions", n)
	}
	if backend.Calls() != 0 {
		t.Fatalf("backend called for discarded remainder")
	}
}

func TestRemainderFlushedWhenConfigured(t *testing.T) {
	backend := fake.New(fake.WithTranscript("final fragment"))
	m, obs := testManager(t, backend, Options{})
	cfg := DefaultConfig()
	cfg.FlushRemainder = true
	s, err := m.Create(cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PushSamples(loudSamples(16000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	// The worker must buffer the audio before the end signal arrives.
	waitFor(t, func() bool { return obs.CountByName(metrics.EventAudioIn) == 1 })
	s.End()
	events := drainEvents(t, s, 2*time.Second)
	trs := eventsOfType(events, EventTranscription)
	if len(trs) != 1 {
		t.Fatalf("expected flushed remainder transcription, got %d", len(trs))
	}
	if trs[0].Result.Text != "Final fragment" {
		t.Fatalf("unexpected text %q", trs[0].Result.Text)
	}
}

func TestDrainEndsAllSessions(t *testing.T) {
	m, _ := testManager(t, nil, Options{})
	s1, _ := m.Create(DefaultConfig())
	s2, _ := m.Create(DefaultConfig())
	go func() {
		for range s1.Events() {
		}
	}()
	go func() {
		for range s2.Events() {
		}
	}()
	if err := m.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if m.Count() != 0 {
		t.Fatalf("sessions survived drain")
	}
	if _, err := m.Create(DefaultConfig()); !errorsx.HasReason(err, errorsx.ReasonCapacity) {
		t.Fatalf("draining manager accepted a session: %v", err)
	}
}

func TestBreakerShortCircuitsRepeatedFailures(t *testing.T) {
	backend := fake.New(fake.WithFailure(errors.New("engine down")))
	m, obs := testManager(t, backend, Options{
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PushSamples(loudSamples(96000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return obs.CountByName(metrics.EventBreakerDenied) == 1 })
	if backend.Calls() != 2 {
		t.Fatalf("open breaker should stop backend calls, saw %d", backend.Calls())
	}
	s.End()
	events := drainEvents(t, s, 2*time.Second)
	errs := eventsOfType(events, EventError)
	if len(errs) != 3 {
		t.Fatalf("expected 3 error events, got %d", len(errs))
	}
	if errs[2].Reason != errorsx.ReasonBackendUnavailable {
		t.Fatalf("short-circuited chunk should report backend_unavailable, got %s", errs[2].Reason)
	}
	if obs.CountByName(metrics.EventBreakerOpen) != 1 {
		t.Fatalf("breaker open transition not recorded")
	}
}

func TestBreakerClosesAfterRecovery(t *testing.T) {
	backend := fake.New(fake.WithFailure(errors.New("engine down")))
	m, obs := testManager(t, backend, Options{
		BreakerThreshold: 1,
		BreakerCooldown:  10 * time.Millisecond,
	})
	s, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PushSamples(loudSamples(32000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return obs.CountByName(metrics.EventBreakerOpen) == 1 })

	backend.SetFailure(nil)
	time.Sleep(20 * time.Millisecond)
	if err := s.PushSamples(loudSamples(32000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, func() bool { return obs.CountByName(metrics.EventBreakerClose) == 1 })

	s.End()
	events := drainEvents(t, s, 2*time.Second)
	if n := len(eventsOfType(events, EventTranscription)); n != 1 {
		t.Fatalf("expected 1 transcription after recovery, got %d", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met")
}
