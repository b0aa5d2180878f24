package deepgram

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
	"github.com/cortexmed/scriba/pkg/audio"
	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/logging"
)

type Config struct {
	APIKey      string
	Model       string
	Language    string
	SmartFormat bool
	// Keywords are boosted in recognition when a session asks for
	// medical context.
	Keywords []string
}

// Transcriber sends audio chunks to Deepgram's prerecorded REST API.
// Chunks are wrapped in an in-memory WAV container so the service can
// detect the sample rate itself.
type Transcriber struct {
	cfg    Config
	rest   *api.Client
	logger *slog.Logger
}

func New(cfg Config) (*Transcriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errorsx.New(errorsx.ReasonConfig, "deepgram: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2-medical"
	}
	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	return &Transcriber{
		cfg:    cfg,
		rest:   api.New(c),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_asr"),
	}, nil
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Ready() error {
	if t.rest == nil {
		return errorsx.New(errorsx.ReasonBackendUnavailable, "deepgram: client not initialized")
	}
	return nil
}

func (t *Transcriber) Transcribe(ctx context.Context, req asr.Request) (asr.Result, error) {
	wav := audio.EncodeWAV(req.Samples, req.SampleRate)

	opts := t.options(req)

	resp, err := t.rest.FromStream(ctx, bytes.NewReader(wav), opts)
	if err != nil {
		if ctx.Err() != nil {
			return asr.Result{}, ctx.Err()
		}
		return asr.Result{}, errorsx.Wrap(err, errorsx.ReasonTranscribeFailed)
	}
	if resp == nil || len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return asr.Result{}, errorsx.New(errorsx.ReasonTranscribeFailed, "deepgram: empty response")
	}

	ch := resp.Results.Channels[0]
	alt := ch.Alternatives[0]

	detected := ch.DetectedLanguage
	if detected == "" {
		detected = t.language(req)
	}
	out := asr.Result{
		Text:             alt.Transcript,
		DetectedLanguage: detected,
		Confidence:       alt.Confidence,
	}
	for _, w := range alt.Words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		out.Segments = append(out.Segments, asr.Segment{
			Start: w.Start,
			End:   w.End,
			Text:  text,
		})
	}
	t.logger.Debug("chunk transcribed",
		slog.Int("samples", len(req.Samples)),
		slog.String("language", detected),
	)
	return out, nil
}

func (t *Transcriber) language(req asr.Request) string {
	if req.Language != "" {
		return req.Language
	}
	return t.cfg.Language
}

func (t *Transcriber) options(req asr.Request) *interfaces.PreRecordedTranscriptionOptions {
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		SmartFormat: t.cfg.SmartFormat,
		Punctuate:   true,
	}
	if lang := t.language(req); lang == "" || lang == "auto" {
		opts.DetectLanguage = true
	} else {
		opts.Language = lang
	}
	if req.MedicalContext && len(t.cfg.Keywords) > 0 {
		opts.Keywords = t.cfg.Keywords
	}
	return opts
}

func (t *Transcriber) Close() error { return nil }

var _ asr.Transcriber = (*Transcriber)(nil)
