package enrich

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/cortexmed/scriba/pkg/lexicon"
)

// Corrector applies deterministic vocabulary and punctuation fixes to raw
// backend text. Correct is idempotent: running it twice yields the same
// output as running it once.
type Corrector struct {
	rules []rule
}

type rule struct {
	re          *regexp.Regexp
	replacement string
}

var (
	multiSpaceRe   = regexp.MustCompile(`\s+`)
	vertebralRe    = regexp.MustCompile(`(?i)\b([ctls])\s+(\d{1,2})\b`)
	spaceBeforeRe  = regexp.MustCompile(`\s+([.,;:!?])`)
	missingSpaceRe = regexp.MustCompile(`([.,;:!?])([A-Za-z])`)
	sentenceRe     = regexp.MustCompile(`(^|[.!?]\s+)([a-z])`)
)

// NewCorrector compiles word-boundary rules from the lexicon correction
// table. Longer keys are applied first so multi-word fixes are not eaten
// by shorter ones. Entries whose key already equals the replacement
// (ignoring case) are skipped; they cannot converge.
func NewCorrector(lx *lexicon.Lexicon) *Corrector {
	keys := make([]string, 0, len(lx.Corrections))
	for k := range lx.Corrections {
		if strings.EqualFold(k, lx.Corrections[k]) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	c := &Corrector{rules: make([]rule, 0, len(keys))}
	for _, k := range keys {
		c.rules = append(c.rules, rule{
			re:          regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`),
			replacement: lx.Corrections[k],
		})
	}
	return c
}

// Correct normalizes whitespace, applies vocabulary rules, rejoins split
// vertebral-level codes, fixes punctuation spacing, and capitalizes
// sentence starts.
func (c *Corrector) Correct(text string) string {
	out := strings.TrimSpace(multiSpaceRe.ReplaceAllString(text, " "))
	if out == "" {
		return ""
	}
	for _, r := range c.rules {
		out = r.re.ReplaceAllString(out, r.replacement)
	}
	out = vertebralRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := vertebralRe.FindStringSubmatch(m)
		return strings.ToUpper(parts[1]) + parts[2]
	})
	out = spaceBeforeRe.ReplaceAllString(out, "$1")
	out = missingSpaceRe.ReplaceAllString(out, "$1 $2")
	out = sentenceRe.ReplaceAllStringFunc(out, func(m string) string {
		runes := []rune(m)
		runes[len(runes)-1] = unicode.ToUpper(runes[len(runes)-1])
		return string(runes)
	})
	return out
}
