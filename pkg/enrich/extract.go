package enrich

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cortexmed/scriba/pkg/lexicon"
)

const (
	lengthBonusCap = 200
	termBonusCap   = 5
)

// Enricher bundles correction, term extraction and quality scoring over
// one lexicon.
type Enricher struct {
	corrector *Corrector
	terms     []termMatcher
}

type termMatcher struct {
	canonical string
	re        *regexp.Regexp
}

func NewEnricher(lx *lexicon.Lexicon) *Enricher {
	e := &Enricher{
		corrector: NewCorrector(lx),
		terms:     make([]termMatcher, 0, len(lx.Terms)),
	}
	for _, term := range lx.Terms {
		if strings.TrimSpace(term) == "" {
			continue
		}
		e.terms = append(e.terms, termMatcher{
			canonical: term,
			re:        regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
		})
	}
	return e
}

// Correct applies the vocabulary correction pipeline.
func (e *Enricher) Correct(text string) string {
	return e.corrector.Correct(text)
}

// ExtractTerms scans corrected text for canonical lexicon terms. The
// result is a sorted, deduplicated set; repeats in the text collapse to
// one entry.
func (e *Enricher) ExtractTerms(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, tm := range e.terms {
		if _, ok := seen[tm.canonical]; ok {
			continue
		}
		if tm.re.MatchString(text) {
			seen[tm.canonical] = struct{}{}
			out = append(out, tm.canonical)
		}
	}
	sort.Strings(out)
	return out
}

// QualityScore combines a base value with length and term-count bonuses,
// clamped to [0, 1]. Longer text and more matched terms never lower the
// score; both bonuses saturate at their caps.
func QualityScore(text string, termCount int) float64 {
	length := len(strings.TrimSpace(text))
	if length > lengthBonusCap {
		length = lengthBonusCap
	}
	if termCount > termBonusCap {
		termCount = termBonusCap
	}
	if termCount < 0 {
		termCount = 0
	}
	score := 0.5 + 0.3*float64(length)/lengthBonusCap + 0.2*float64(termCount)/termBonusCap
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
