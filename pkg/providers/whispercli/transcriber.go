package whispercli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
	"github.com/cortexmed/scriba/pkg/audio"
	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/logging"
)

type Config struct {
	Binary string
	Model  string
	Args   []string
}

// Transcriber shells out to a local whisper binary. The binary requires
// file input, so each call writes the chunk to a temporary WAV that is
// removed on every exit path.
type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

type cliOutput struct {
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Segments []cliSegment `json:"segments"`
}

type cliSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func New(cfg Config) (*Transcriber, error) {
	if strings.TrimSpace(cfg.Binary) == "" {
		return nil, errorsx.New(errorsx.ReasonConfig, "whispercli: binary path is required")
	}
	return &Transcriber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "whisper_cli"),
	}, nil
}

func (t *Transcriber) Name() string { return "whispercli" }

func (t *Transcriber) Ready() error {
	if _, err := exec.LookPath(t.cfg.Binary); err != nil {
		return errorsx.Wrap(fmt.Errorf("whispercli: binary not found: %w", err), errorsx.ReasonBackendUnavailable)
	}
	return nil
}

func (t *Transcriber) Transcribe(ctx context.Context, req asr.Request) (asr.Result, error) {
	tmp, err := os.CreateTemp("", "scriba-chunk-*.wav")
	if err != nil {
		return asr.Result{}, errorsx.Wrap(fmt.Errorf("create temp wav: %w", err), errorsx.ReasonResource)
	}
	path := tmp.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			t.logger.Warn("temp wav not removed", slog.String("path", path), slog.String("error", rmErr.Error()))
		}
	}()

	if _, err := tmp.Write(audio.EncodeWAV(req.Samples, req.SampleRate)); err != nil {
		tmp.Close()
		return asr.Result{}, errorsx.Wrap(fmt.Errorf("write temp wav: %w", err), errorsx.ReasonResource)
	}
	if err := tmp.Close(); err != nil {
		return asr.Result{}, errorsx.Wrap(fmt.Errorf("close temp wav: %w", err), errorsx.ReasonResource)
	}

	args := []string{"--output-format", "json"}
	if t.cfg.Model != "" {
		args = append(args, "--model", t.cfg.Model)
	}
	if req.Language != "" && req.Language != "auto" {
		args = append(args, "--language", req.Language)
	}
	args = append(args, t.cfg.Args...)
	args = append(args, path)

	cmd := exec.CommandContext(ctx, t.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return asr.Result{}, ctx.Err()
		}
		return asr.Result{}, errorsx.Wrap(
			fmt.Errorf("whisper run failed: %w: %s", err, strings.TrimSpace(stderr.String())),
			errorsx.ReasonTranscribeFailed,
		)
	}

	return parseOutput(stdout.Bytes(), req.Language)
}

func (t *Transcriber) Close() error { return nil }

func parseOutput(raw []byte, languageHint string) (asr.Result, error) {
	var out cliOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return asr.Result{}, errorsx.Wrap(fmt.Errorf("parse whisper output: %w", err), errorsx.ReasonTranscribeFailed)
	}
	lang := out.Language
	if lang == "" {
		lang = languageHint
	}
	res := asr.Result{DetectedLanguage: lang}
	var parts []string
	for _, seg := range out.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		res.Segments = append(res.Segments, asr.Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	res.Text = strings.Join(parts, " ")
	return res, nil
}

var _ asr.Transcriber = (*Transcriber)(nil)
