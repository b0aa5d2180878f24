package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
	"github.com/cortexmed/scriba/pkg/audio"
	"github.com/cortexmed/scriba/pkg/enrich"
	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/metrics"
)

// run is the session worker. All buffer and chunk state is touched only
// here, so chunk processing is strictly serialized per session and
// results are emitted in drain order.
func (s *Session) run() {
	defer s.cleanup()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.endCh:
			s.finish()
			return
		case msg := <-s.inbound:
			switch msg.kind {
			case inboundAudio:
				s.handleSamples(s.decoder.Write(msg.data))
			case inboundSamples:
				s.handleSamples(msg.samples)
			case inboundConfig:
				s.handleConfig(msg.patch)
			}
		}
	}
}

func (s *Session) handleSamples(samples []float32) {
	if len(samples) == 0 {
		return
	}
	s.buffer.Append(samples)
	s.mgr.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventAudioIn,
		Time:  time.Now(),
		Value: float64(len(samples)),
		Tags:  map[string]string{metrics.TagSessionID: s.ID},
	})
	for _, chunk := range s.buffer.Drain() {
		s.mgr.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventChunkDrained,
			Time:  time.Now(),
			Value: chunk.Seconds(),
			Tags:  map[string]string{metrics.TagSessionID: s.ID},
		})
		if !s.processChunk(chunk, false) {
			return
		}
	}
}

func (s *Session) handleConfig(patch Patch) {
	next, err := s.Config().Apply(patch)
	if err != nil {
		s.logger.Warn("config rejected", slog.String("error", err.Error()))
		s.emitError(err)
		return
	}
	s.cfgMu.Lock()
	s.cfg = next
	s.cfgMu.Unlock()
	s.emit(Event{Type: EventConfigUpdated})
	s.logger.Info("config updated",
		slog.String("language", next.Language),
		slog.Float64("quality_threshold", next.QualityThreshold),
	)
}

// finish runs the end-of-session path. The buffered sub-chunk remainder
// is discarded unless the session opted into flushing.
func (s *Session) finish() {
	if !s.Config().FlushRemainder {
		return
	}
	rest, ok := s.buffer.Remainder()
	if !ok {
		return
	}
	s.processChunk(rest, true)
}

// processChunk runs Quality Gate, backend call and enrichment for one
// chunk. The return value is false when the session should stop
// processing further chunks (drop or end observed mid-call). The final
// flush chunk runs with end preemption disabled.
func (s *Session) processChunk(chunk audio.Chunk, final bool) bool {
	cfg := s.Config()

	endCh := s.endCh
	if final {
		endCh = nil
	}

	rms := audio.RMS(chunk.Samples)
	if rms < cfg.QualityThreshold {
		s.mgr.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventChunkSkipped,
			Time:  time.Now(),
			Value: rms,
			Tags:  map[string]string{metrics.TagSessionID: s.ID},
		})
		return true
	}

	if !s.mgr.breaker.Allow() {
		s.mgr.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventBreakerDenied,
			Time: time.Now(),
			Tags: map[string]string{metrics.TagSessionID: s.ID},
		})
		s.emitError(errorsx.New(errorsx.ReasonBackendUnavailable, "transcription backend temporarily unavailable"))
		return true
	}
	if err := s.mgr.backend.Ready(); err != nil {
		s.recordBackendError(errorsx.Wrap(err, errorsx.ReasonBackendUnavailable))
		return true
	}

	// Global cap on simultaneous backend calls.
	select {
	case s.mgr.sem <- struct{}{}:
	case <-s.ctx.Done():
		return false
	case <-endCh:
		return false
	}

	callCtx, cancel := context.WithTimeout(s.ctx, s.mgr.opts.CallTimeout)
	started := time.Now()
	type callResult struct {
		res asr.Result
		err error
	}
	resCh := make(chan callResult, 1)
	go func() {
		defer func() { <-s.mgr.sem }()
		defer cancel()
		res, err := s.mgr.backend.Transcribe(callCtx, asr.Request{
			Samples:        chunk.Samples,
			SampleRate:     chunk.SampleRate,
			Language:       cfg.Language,
			MedicalContext: cfg.MedicalContext,
		})
		resCh <- callResult{res: res, err: err}
	}()

	var out callResult
	ended := false
	select {
	case out = <-resCh:
	case <-endCh:
		// Bounded grace for the in-flight call, then the result is
		// discarded.
		ended = true
		select {
		case out = <-resCh:
		case <-time.After(s.mgr.opts.EndGrace):
			cancel()
			return false
		case <-s.ctx.Done():
			return false
		}
	case <-s.ctx.Done():
		return false
	}

	if out.err != nil {
		if s.ctx.Err() != nil {
			return false
		}
		s.recordBackendError(s.classifyCallError(out.err, callCtx))
		return !ended
	}

	if s.mgr.breaker.OnSuccess() {
		s.mgr.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventBreakerClose,
			Time: time.Now(),
			Tags: map[string]string{metrics.TagProvider: s.mgr.backend.Name()},
		})
		s.logger.Info("backend circuit closed", slog.String("provider", s.mgr.backend.Name()))
	}
	s.emitResult(out.res, rms, time.Since(started))
	return !ended
}

func (s *Session) classifyCallError(err error, callCtx context.Context) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return errorsx.Wrap(err, errorsx.ReasonTranscribeTimeout)
	}
	return errorsx.Wrap(err, errorsx.ReasonTranscribeFailed)
}

func (s *Session) recordBackendError(err error) {
	reason := errorsx.Reason(err)
	s.mgr.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventTranscribeErr,
		Time: time.Now(),
		Tags: map[string]string{
			metrics.TagSessionID: s.ID,
			metrics.TagReason:    string(reason),
		},
	})
	// Timeouts are a per-chunk condition, not backend health signal.
	if reason != errorsx.ReasonTranscribeTimeout {
		if s.mgr.breaker.OnError(err) {
			s.mgr.obs.RecordEvent(metrics.MetricsEvent{
				Name: metrics.EventBreakerOpen,
				Time: time.Now(),
				Tags: map[string]string{metrics.TagProvider: s.mgr.backend.Name()},
			})
			s.logger.Warn("backend circuit opened", slog.String("provider", s.mgr.backend.Name()))
		}
	}
	s.logger.Warn("chunk failed",
		slog.String("reason", string(reason)),
		slog.String("error", err.Error()),
	)
	s.emitError(err)
}

func (s *Session) emitResult(raw asr.Result, rms float64, elapsed time.Duration) {
	corrected := s.mgr.enricher.Correct(raw.Text)
	terms := s.mgr.enricher.ExtractTerms(corrected)

	confidence := raw.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	language := raw.DetectedLanguage
	if language == "" {
		language = s.Config().Language
	}

	result := &Result{
		Text:           corrected,
		Language:       language,
		Confidence:     confidence,
		ProcessingTime: elapsed.Seconds(),
		MedicalTerms:   terms,
		QualityScore:   enrich.QualityScore(corrected, len(terms)),
		SignalQuality:  rms,
		Segments:       raw.Segments,
	}
	s.mgr.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventTranscribeOK,
		Time:  time.Now(),
		Value: elapsed.Seconds(),
		Tags: map[string]string{
			metrics.TagSessionID: s.ID,
			metrics.TagProvider:  s.mgr.backend.Name(),
		},
		Fields: map[string]any{"text": corrected},
	})
	s.emit(Event{Type: EventTranscription, Result: result})
}
