package scriba

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
	"github.com/cortexmed/scriba/pkg/enrich"
	"github.com/cortexmed/scriba/pkg/gateway"
	"github.com/cortexmed/scriba/pkg/gateway/phone"
	"github.com/cortexmed/scriba/pkg/lexicon"
	"github.com/cortexmed/scriba/pkg/logging"
	"github.com/cortexmed/scriba/pkg/metrics"
	"github.com/cortexmed/scriba/pkg/observers"
	"github.com/cortexmed/scriba/pkg/redact"
	"github.com/cortexmed/scriba/pkg/resilience"
	"github.com/cortexmed/scriba/pkg/runner"
	"github.com/cortexmed/scriba/pkg/session"
)

// Engine wires the configuration, backend, session manager and
// gateways into one runnable service.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	backend  asr.Transcriber
	manager  *session.Manager
	ws       *gateway.Gateway
	phone    *phone.Gateway
	async    *metrics.AsyncObserver
	timeline *observers.TimelineObserver
	life     *runner.LifecycleRunner
}

func New(cfg Config, registry *ProviderRegistry) (*Engine, error) {
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	lx, err := lexicon.Load(cfg.Lexicon.Path)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}

	backend, err := registry.Build(cfg.Backend.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("build backend: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "engine"),
		backend: backend,
	}

	sinks := []metrics.Observer{
		observers.NewLoggerObserver(logger),
		observers.NewLatencyObserver(logger),
	}
	if dir := cfg.Observability.ArtifactsDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifacts dir: %w", err)
		}
		e.timeline = observers.NewTimelineObserver(dir)
		sinks = append(sinks, e.timeline)
		if f, err := os.OpenFile(filepath.Join(dir, "metrics.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			sinks = append(sinks, metrics.NewJSONLObserver(f))
		} else {
			e.logger.Warn("metrics file not opened", slog.String("error", err.Error()))
		}
	}
	e.async = metrics.NewAsyncObserver(observers.NewMultiObserver(sinks...), 0)

	e.manager = session.NewManager(backend, enrich.NewEnricher(lx), e.async, session.Options{
		MaxSessions:        cfg.Engine.MaxSessions,
		MaxConcurrentCalls: cfg.Engine.MaxConcurrentCalls,
		ChunkSeconds:       cfg.Engine.ChunkSeconds,
		CallTimeout:        time.Duration(cfg.Engine.CallTimeoutMS) * time.Millisecond,
		EndGrace:           time.Duration(cfg.Engine.EndGraceMS) * time.Millisecond,
		BreakerThreshold:   cfg.Engine.BreakerThreshold,
		BreakerCooldown:    time.Duration(cfg.Engine.BreakerCooldownMS) * time.Millisecond,
		DefaultSession: session.Config{
			Language:         cfg.Engine.DefaultLanguage,
			MedicalContext:   true,
			QualityThreshold: cfg.Engine.QualityThreshold,
			SampleRate:       cfg.Engine.SampleRate,
			FlushRemainder:   cfg.Engine.FlushRemainder,
		},
	})

	e.ws = gateway.New(gateway.Config{
		ServerAddr:     cfg.Server.Addr,
		WebsocketPath:  cfg.Server.WebsocketPath,
		HealthPath:     cfg.Server.HealthPath,
		AllowAnyOrigin: cfg.Server.AllowAnyOrigin,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, e.manager)

	if cfg.Phone.Enabled {
		e.phone = phone.New(phone.Config{
			ServerAddr:         cfg.Phone.Addr,
			PublicURL:          cfg.Phone.PublicURL,
			AuthToken:          cfg.Phone.AuthToken,
			AccountSID:         cfg.Phone.AccountSID,
			VoicePath:          cfg.Phone.VoicePath,
			WebsocketPath:      cfg.Phone.WebsocketPath,
			StatusCallbackPath: cfg.Phone.StatusCallbackPath,
			Greeting:           cfg.Phone.Greeting,
		}, e.manager)
	}

	e.life = runner.NewLifecycleRunner(e, runner.Hooks{
		OnStart: func() {
			e.logger.Info("engine started",
				slog.String("backend", backend.Name()),
				slog.String("addr", cfg.Server.Addr),
				slog.Bool("phone", cfg.Phone.Enabled),
			)
		},
		OnStop: func() {
			e.logger.Info("engine stopped")
		},
	}, time.Duration(cfg.Engine.EndGraceMS)*time.Millisecond+10*time.Second)

	return e, nil
}

// Run warms the backend up, starts the gateways, and blocks until the
// context is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.warmup(ctx); err != nil {
		return fmt.Errorf("backend warmup: %w", err)
	}
	if err := e.ws.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	if e.phone != nil {
		if err := e.phone.Start(ctx); err != nil {
			return fmt.Errorf("start phone gateway: %w", err)
		}
	}
	if dir := e.cfg.Observability.ArtifactsDir; dir != "" && e.cfg.Observability.RetentionDays > 0 {
		maxAge := time.Duration(e.cfg.Observability.RetentionDays) * 24 * time.Hour
		if n, err := observers.PurgeArtifacts(dir, maxAge); err != nil {
			e.logger.Warn("artifact purge failed", slog.String("error", err.Error()))
		} else if n > 0 {
			e.logger.Info("expired artifacts purged", slog.Int("count", n))
		}
	}
	return e.life.Run(ctx)
}

// Stop initiates a graceful shutdown.
func (e *Engine) Stop() error {
	return e.life.Stop()
}

// Ready reports whether the engine can accept new sessions.
func (e *Engine) Ready() error {
	return e.manager.Ready()
}

// Manager exposes the session registry, for embedding callers.
func (e *Engine) Manager() *session.Manager {
	return e.manager
}

// Drain implements runner.Drainer: stop intake, finish live sessions,
// then release the backend and observer resources.
func (e *Engine) Drain() error {
	_ = e.ws.Stop()
	if e.phone != nil {
		_ = e.phone.Stop()
	}
	err := e.manager.Drain()
	if cerr := e.backend.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if e.timeline != nil {
		_ = e.timeline.Close()
	}
	e.async.Close()
	return err
}

// warmup polls backend readiness so a cold engine (model still loading)
// does not fail the first real chunks.
func (e *Engine) warmup(ctx context.Context) error {
	policy := resilience.NewRetryPolicy(
		e.cfg.Engine.WarmupRetries,
		time.Duration(e.cfg.Engine.WarmupBackoffMS)*time.Millisecond,
	)
	return policy.DoContext(ctx, func() error {
		if err := e.backend.Ready(); err != nil {
			e.logger.Warn("backend not ready", slog.String("error", err.Error()))
			return err
		}
		return nil
	})
}
