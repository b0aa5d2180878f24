package lexicon

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cortexmed/scriba/pkg/errorsx"
)

// Lexicon is the static domain vocabulary the enrichment pipeline runs
// against: a correction table mapping common misrecognitions to canonical
// terms, and the canonical term list used for extraction.
type Lexicon struct {
	Corrections map[string]string
	Terms       []string
}

// Default returns the built-in clinical lexicon.
func Default() *Lexicon {
	lx := &Lexicon{Corrections: make(map[string]string, len(defaultCorrections))}
	for k, v := range defaultCorrections {
		lx.Corrections[k] = v
	}
	lx.Terms = append(lx.Terms, defaultTerms...)
	return lx
}

// Load returns the built-in lexicon overlaid with entries from a YAML
// file. The file may carry `corrections` (map) and `terms` (list);
// overlay corrections win over built-ins. An empty path returns the
// built-in lexicon unchanged.
func Load(path string) (*Lexicon, error) {
	lx := Default()
	if strings.TrimSpace(path) == "" {
		return lx, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("read lexicon file: %w", err), errorsx.ReasonConfig)
	}
	for key, val := range v.GetStringMapString("corrections") {
		key = strings.TrimSpace(strings.ToLower(key))
		val = strings.TrimSpace(val)
		if key == "" || val == "" {
			continue
		}
		lx.Corrections[key] = val
	}
	for _, term := range v.GetStringSlice("terms") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		lx.Terms = append(lx.Terms, term)
	}
	lx.Terms = dedup(lx.Terms)
	return lx, nil
}

func dedup(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
