package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
	"github.com/cortexmed/scriba/pkg/errorsx"
)

// Transcriber is a deterministic in-memory engine for tests and local
// runs. It can replay a scripted transcript sequence, inject failures,
// and simulate slow calls.
type Transcriber struct {
	mu         sync.Mutex
	transcript string
	script     []string
	cursor     int
	delay      time.Duration
	failWith   error
	notReady   error
	calls      int
	closed     bool
}

type Option func(*Transcriber)

// WithTranscript fixes the text returned on every call.
func WithTranscript(text string) Option {
	return func(t *Transcriber) { t.transcript = text }
}

// WithScript replays the given transcripts in order, then repeats the
// last one.
func WithScript(lines ...string) Option {
	return func(t *Transcriber) { t.script = lines }
}

// WithDelay makes each call block for d or until the context expires.
func WithDelay(d time.Duration) Option {
	return func(t *Transcriber) { t.delay = d }
}

// WithFailure makes every call fail with err.
func WithFailure(err error) Option {
	return func(t *Transcriber) { t.failWith = err }
}

// WithNotReady makes Ready report err.
func WithNotReady(err error) Option {
	return func(t *Transcriber) { t.notReady = err }
}

func New(opts ...Option) *Transcriber {
	t := &Transcriber{transcript: "dictated text"}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transcriber) Name() string { return "fake" }

func (t *Transcriber) Ready() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errorsx.New(errorsx.ReasonBackendUnavailable, "fake engine closed")
	}
	return t.notReady
}

func (t *Transcriber) Transcribe(ctx context.Context, req asr.Request) (asr.Result, error) {
	t.mu.Lock()
	t.calls++
	delay := t.delay
	failWith := t.failWith
	text := t.transcript
	if len(t.script) > 0 {
		idx := t.cursor
		if idx >= len(t.script) {
			idx = len(t.script) - 1
		}
		text = t.script[idx]
		t.cursor++
	}
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return asr.Result{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return asr.Result{}, err
	}
	if failWith != nil {
		return asr.Result{}, failWith
	}

	seconds := 0.0
	if req.SampleRate > 0 {
		seconds = float64(len(req.Samples)) / float64(req.SampleRate)
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}
	return asr.Result{
		Text:             text,
		DetectedLanguage: lang,
		Confidence:       0.95,
		Segments: []asr.Segment{
			{Start: 0, End: seconds, Text: text},
		},
	}, nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Calls returns how many Transcribe invocations the engine has seen.
func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// SetFailure swaps the injected failure at runtime.
func (t *Transcriber) SetFailure(err error) {
	t.mu.Lock()
	t.failWith = err
	t.mu.Unlock()
}

var _ asr.Transcriber = (*Transcriber)(nil)

// String aids test failure output.
func (t *Transcriber) String() string {
	return fmt.Sprintf("fake(calls=%d)", t.Calls())
}
