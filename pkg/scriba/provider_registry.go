package scriba

import (
	"fmt"
	"strings"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
)

// BackendFactory builds a transcription engine from the loaded config.
type BackendFactory func(cfg Config) (asr.Transcriber, error)

// ProviderRegistry maps backend provider names to factories. Which
// concrete engine runs is a deployment choice, not an engine concern.
type ProviderRegistry struct {
	backends map[string]BackendFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{backends: make(map[string]BackendFactory)}
}

func (r *ProviderRegistry) Register(name string, factory BackendFactory) {
	r.backends[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) Build(provider string, cfg Config) (asr.Transcriber, error) {
	fn := r.backends[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("backend provider not registered: %s", provider)
	}
	return fn(cfg)
}

// Providers lists the registered backend names.
func (r *ProviderRegistry) Providers() []string {
	out := make([]string, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	return out
}
