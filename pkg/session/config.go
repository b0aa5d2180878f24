package session

import (
	"fmt"

	"github.com/cortexmed/scriba/pkg/errorsx"
)

var supportedLanguages = map[string]struct{}{
	"auto": {},
	"en":   {},
	"de":   {},
	"nl":   {},
	"fr":   {},
	"es":   {},
	"it":   {},
}

// Config is a session's effective configuration.
type Config struct {
	Language         string
	MedicalContext   bool
	QualityThreshold float64
	SampleRate       int
	FlushRemainder   bool
}

// Patch carries the client-settable options. Nil fields are left
// untouched by Apply.
type Patch struct {
	Language         *string
	MedicalContext   *bool
	QualityThreshold *float64
}

// DefaultConfig returns the configuration a session starts with.
func DefaultConfig() Config {
	return Config{
		Language:         "auto",
		MedicalContext:   true,
		QualityThreshold: 0.001,
		SampleRate:       16000,
	}
}

// Apply validates the patch and returns the merged configuration. On
// any invalid value the receiver is returned unchanged alongside the
// error.
func (c Config) Apply(p Patch) (Config, error) {
	next := c
	if p.Language != nil {
		if _, ok := supportedLanguages[*p.Language]; !ok {
			return c, errorsx.Newf(errorsx.ReasonConfig, "unsupported language %q", *p.Language)
		}
		next.Language = *p.Language
	}
	if p.QualityThreshold != nil {
		v := *p.QualityThreshold
		if v < 0 || v > 1 {
			return c, errorsx.New(errorsx.ReasonConfig, fmt.Sprintf("quality_threshold %v outside [0,1]", v))
		}
		next.QualityThreshold = v
	}
	if p.MedicalContext != nil {
		next.MedicalContext = *p.MedicalContext
	}
	return next, nil
}
