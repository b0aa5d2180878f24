package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cortexmed/scriba/pkg/audio"
	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/logging"
	"github.com/cortexmed/scriba/pkg/metrics"
)

type inboundKind int

const (
	inboundAudio inboundKind = iota
	inboundSamples
	inboundConfig
)

type inbound struct {
	kind    inboundKind
	data    []byte
	samples []float32
	patch   Patch
}

// Session is the stateful unit for one client connection. Its audio
// buffer, decoder and in-flight chunk state are owned exclusively by
// the worker goroutine; other goroutines interact only through the
// inbound queue, the end signal, and the events channel.
type Session struct {
	ID        string
	CreatedAt time.Time

	mgr    *Manager
	logger *slog.Logger

	cfgMu sync.RWMutex
	cfg   Config

	decoder audio.PCMDecoder
	buffer  *audio.Buffer

	ctx     context.Context
	cancel  context.CancelFunc
	inbound chan inbound
	events  chan Event
	endCh   chan struct{}
	endOnce sync.Once
	done    chan struct{}

	cleanupOnce sync.Once
}

func newSession(id string, m *Manager, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	chunkSize := int(m.opts.ChunkSeconds * float64(cfg.SampleRate))
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		mgr:       m,
		logger:    logging.NewComponentLogger(slog.Default(), "session").With(slog.String("session_id", id)),
		cfg:       cfg,
		buffer:    audio.NewBuffer(cfg.SampleRate, chunkSize),
		ctx:       ctx,
		cancel:    cancel,
		inbound:   make(chan inbound, m.opts.InboundBuffer),
		events:    make(chan Event, m.opts.EventBuffer),
		endCh:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Events returns the outbound event stream. The channel closes after
// the session_ended event is delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Config returns the session's current effective configuration.
func (s *Session) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// PushAudio enqueues a PCM16LE payload for processing.
func (s *Session) PushAudio(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return s.enqueue(inbound{kind: inboundAudio, data: data})
}

// PushSamples enqueues already-decoded samples, used by ingress paths
// that do their own codec work.
func (s *Session) PushSamples(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	return s.enqueue(inbound{kind: inboundSamples, samples: samples})
}

// UpdateConfig enqueues a configuration patch. The patch is applied in
// arrival order relative to audio; an invalid patch produces an error
// event and leaves the prior configuration in place.
func (s *Session) UpdateConfig(patch Patch) error {
	return s.enqueue(inbound{kind: inboundConfig, patch: patch})
}

// End requests a graceful stop. An in-flight backend call gets up to
// the configured grace period to finish; buffered audio that never
// reached a full chunk is discarded unless flushing is configured.
// Safe to call more than once.
func (s *Session) End() {
	s.endOnce.Do(func() { close(s.endCh) })
}

// Drop tears the session down immediately, aborting any in-flight
// backend call. Used on connection loss. Idempotent.
func (s *Session) Drop() {
	s.cancel()
}

// Done is closed once the worker has finished cleanup.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) enqueue(msg inbound) error {
	select {
	case <-s.ctx.Done():
		return errorsx.New(errorsx.ReasonConnectionLost, "session closed")
	case <-s.endCh:
		return errorsx.New(errorsx.ReasonConnectionLost, "session ending")
	default:
	}
	select {
	case s.inbound <- msg:
		return nil
	case <-s.ctx.Done():
		return errorsx.New(errorsx.ReasonConnectionLost, "session closed")
	case <-s.endCh:
		return errorsx.New(errorsx.ReasonConnectionLost, "session ending")
	}
}

// emit delivers an event without ever blocking the worker. A full
// events channel drops the event and records the drop.
func (s *Session) emit(ev Event) {
	ev.SessionID = s.ID
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event dropped, slow consumer", slog.String("event_type", string(ev.Type)))
		s.mgr.obs.RecordEvent(metrics.MetricsEvent{
			Name: "event_dropped",
			Time: time.Now(),
			Tags: map[string]string{metrics.TagSessionID: s.ID, "event_type": string(ev.Type)},
		})
	}
}

func (s *Session) emitError(err error) {
	s.emit(Event{
		Type:    EventError,
		Message: err.Error(),
		Reason:  errorsx.Reason(err),
	})
}

func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		s.cancel()
		s.mgr.remove(s.ID)
		s.emit(Event{Type: EventSessionEnded})
		close(s.events)
		s.mgr.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventSessionClosed,
			Time: time.Now(),
			Tags: map[string]string{metrics.TagSessionID: s.ID},
		})
		s.logger.Info("session closed",
			slog.Duration("lifetime", time.Since(s.CreatedAt)),
			slog.Int("pending_samples", s.buffer.Len()),
		)
		close(s.done)
	})
}
