package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
	"github.com/cortexmed/scriba/pkg/enrich"
	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/logging"
	"github.com/cortexmed/scriba/pkg/metrics"
	"github.com/cortexmed/scriba/pkg/resilience"
)

// Options bounds the manager's resource use.
type Options struct {
	MaxSessions        int
	MaxConcurrentCalls int
	ChunkSeconds       float64
	CallTimeout        time.Duration
	EndGrace           time.Duration
	EventBuffer        int
	InboundBuffer      int
	BreakerThreshold   int
	BreakerCooldown    time.Duration
	DefaultSession     Config
}

func (o Options) withDefaults() Options {
	if o.DefaultSession.SampleRate <= 0 {
		o.DefaultSession = DefaultConfig()
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = 64
	}
	if o.MaxConcurrentCalls <= 0 {
		o.MaxConcurrentCalls = 4
	}
	if o.ChunkSeconds <= 0 {
		o.ChunkSeconds = 2
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.EndGrace <= 0 {
		o.EndGrace = 5 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = 128
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 15 * time.Second
	}
	return o
}

// Manager owns the session registry and the shared backend resources.
// The registry map is the only cross-session mutable state; sessions
// own their buffers and in-flight chunk state exclusively.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	backend  asr.Transcriber
	enricher *enrich.Enricher
	obs      metrics.Observer
	breaker  *resilience.CircuitBreaker
	sem      chan struct{}
	opts     Options
	logger   *slog.Logger
	draining atomic.Bool
}

func NewManager(backend asr.Transcriber, enricher *enrich.Enricher, obs metrics.Observer, opts Options) *Manager {
	opts = opts.withDefaults()
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Manager{
		sessions: make(map[string]*Session),
		backend:  backend,
		enricher: enricher,
		obs:      obs,
		breaker:  resilience.NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		sem:      make(chan struct{}, opts.MaxConcurrentCalls),
		opts:     opts,
		logger:   logging.NewComponentLogger(slog.Default(), "session_manager"),
	}
}

// Create registers a new session and starts its worker. The connection
// is rejected before any session state exists when the registry is full
// or the manager is draining.
func (m *Manager) Create(cfg Config) (*Session, error) {
	if m.draining.Load() {
		return nil, errorsx.New(errorsx.ReasonCapacity, "server is draining")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}

	m.mu.Lock()
	if len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, errorsx.Newf(errorsx.ReasonCapacity, "session limit %d reached", m.opts.MaxSessions)
	}
	s := newSession(uuid.NewString(), m, cfg)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventSessionCreated,
		Time: time.Now(),
		Tags: map[string]string{metrics.TagSessionID: s.ID},
	})
	m.logger.Info("session created",
		slog.String("session_id", s.ID),
		slog.String("language", cfg.Language),
		slog.Int("sample_rate", cfg.SampleRate),
	)

	go s.run()
	s.emit(Event{Type: EventHeartbeat, SessionID: s.ID, Timestamp: time.Now().UnixMilli()})
	return s, nil
}

// DefaultSessionConfig returns the configuration new sessions start
// with unless the caller overrides it.
func (m *Manager) DefaultSessionConfig() Config {
	return m.opts.DefaultSession
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Ready reports whether the backend can take work. An open circuit
// breaker counts as unavailable.
func (m *Manager) Ready() error {
	if m.breaker.Open() {
		return errorsx.New(errorsx.ReasonBackendUnavailable, "backend circuit open")
	}
	if m.backend == nil {
		return errorsx.New(errorsx.ReasonBackendUnavailable, "no backend configured")
	}
	return m.backend.Ready()
}

// Drain stops accepting sessions, ends every live session, and waits
// for their workers to finish.
func (m *Manager) Drain() error {
	m.draining.Store(true)
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.End()
	}
	for _, s := range live {
		<-s.done
	}
	m.logger.Info("drain complete", slog.Int("sessions_ended", len(live)))
	return nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
