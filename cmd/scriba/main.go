package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
	"github.com/cortexmed/scriba/pkg/configutil"
	"github.com/cortexmed/scriba/pkg/gateway/phone"
	"github.com/cortexmed/scriba/pkg/lexicon"
	"github.com/cortexmed/scriba/pkg/providers/deepgram"
	"github.com/cortexmed/scriba/pkg/providers/fake"
	"github.com/cortexmed/scriba/pkg/providers/whispercli"
	"github.com/cortexmed/scriba/pkg/scriba"
)

type deepgramSettings struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	Language    string `mapstructure:"language"`
	SmartFormat *bool  `mapstructure:"smart_format"`
}

type whisperSettings struct {
	Binary string   `mapstructure:"binary"`
	Model  string   `mapstructure:"model"`
	Args   []string `mapstructure:"args"`
}

type fakeSettings struct {
	Transcript string `mapstructure:"transcript"`
	DelayMS    *int   `mapstructure:"delay_ms"`
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	dialTo := flag.String("dial_to", "", "destination number for an outbound dictation call")
	dialFrom := flag.String("dial_from", "", "caller ID for an outbound dictation call")
	flag.Parse()

	cfg, err := scriba.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	registry := scriba.NewProviderRegistry()
	registerBackends(registry)

	engine, err := scriba.New(cfg, registry)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *dialTo != "" && *dialFrom != "" {
		if !cfg.Phone.Enabled {
			slog.Warn("outbound_dial_skipped", "reason", "phone gateway disabled")
		} else {
			go func() {
				dialer := phone.NewDialer(phone.Config{
					ServerAddr: cfg.Phone.Addr,
					PublicURL:  cfg.Phone.PublicURL,
					AuthToken:  cfg.Phone.AuthToken,
					AccountSID: cfg.Phone.AccountSID,
					VoicePath:  cfg.Phone.VoicePath,
				})
				callSID, err := dialer.Dial(context.Background(), *dialTo, *dialFrom, "")
				if err != nil {
					slog.Error("outbound_dial_failed", "error", err)
					return
				}
				slog.Info("outbound_dial_started", "call_sid", callSID)
			}()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown_signal", "signal", sig.String())
		if err := engine.Stop(); err != nil {
			slog.Error("shutdown_failed", "error", err)
		}
	}()

	if err := engine.Run(context.Background()); err != nil {
		slog.Error("engine_exited", "error", err)
		os.Exit(1)
	}
}

func registerBackends(reg *scriba.ProviderRegistry) {
	reg.Register("deepgram", func(cfg scriba.Config) (asr.Transcriber, error) {
		if err := validateSettings("backend.settings", cfg.Backend.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "smart_format"},
		}); err != nil {
			return nil, err
		}
		var settings deepgramSettings
		if err := configutil.DecodeSettings(cfg.Backend.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "backend.settings.api_key"); err != nil {
			return nil, err
		}
		lex, err := lexicon.Load(cfg.Lexicon.Path)
		if err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:      settings.APIKey,
			Model:       settings.Model,
			Language:    settings.Language,
			SmartFormat: configutil.BoolValue(settings.SmartFormat, true),
			Keywords:    lex.Terms,
		})
	})

	reg.Register("whispercli", func(cfg scriba.Config) (asr.Transcriber, error) {
		if err := validateSettings("backend.settings", cfg.Backend.Settings, configutil.Schema{
			Required: []string{"binary"},
			Optional: []string{"model", "args"},
		}); err != nil {
			return nil, err
		}
		var settings whisperSettings
		if err := configutil.DecodeSettings(cfg.Backend.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.Binary, "backend.settings.binary"); err != nil {
			return nil, err
		}
		return whispercli.New(whispercli.Config{
			Binary: settings.Binary,
			Model:  settings.Model,
			Args:   settings.Args,
		})
	})

	reg.Register("fake", func(cfg scriba.Config) (asr.Transcriber, error) {
		if err := validateSettings("backend.settings", cfg.Backend.Settings, configutil.Schema{
			Optional: []string{"transcript", "delay_ms"},
		}); err != nil {
			return nil, err
		}
		var settings fakeSettings
		if err := configutil.DecodeSettings(cfg.Backend.Settings, &settings); err != nil {
			return nil, err
		}
		opts := []fake.Option{}
		if settings.Transcript != "" {
			opts = append(opts, fake.WithTranscript(settings.Transcript))
		}
		if delay := configutil.IntValue(settings.DelayMS, 0); delay > 0 {
			opts = append(opts, fake.WithDelay(time.Duration(delay)*time.Millisecond))
		}
		return fake.New(opts...), nil
	})
}

func validateSettings(path string, input map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(input, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
