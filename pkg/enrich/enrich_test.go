package enrich

import (
	"strings"
	"testing"

	"github.com/cortexmed/scriba/pkg/lexicon"
)

func newTestEnricher(t *testing.T) *Enricher {
	t.Helper()
	return NewEnricher(lexicon.Default())
}

func TestCorrectVocabulary(t *testing.T) {
	e := newTestEnricher(t)
	got := e.Correct("patient shows signs of new monia in the left lung")
	if !strings.Contains(got, "pneumonia") {
		t.Fatalf("vocabulary not corrected: %q", got)
	}
	if strings.Contains(got, "new monia") {
		t.Fatalf("misrecognition survived: %q", got)
	}
}

func TestCorrectVertebralLevels(t *testing.T) {
	e := newTestEnricher(t)
	got := e.Correct("disc protrusion at c 5 and l 4 levels")
	if !strings.Contains(got, "C5") || !strings.Contains(got, "L4") {
		t.Fatalf("vertebral codes not rejoined: %q", got)
	}
}

func TestCorrectPunctuationSpacing(t *testing.T) {
	e := newTestEnricher(t)
	got := e.Correct("no acute findings .impression:clear lungs")
	if strings.Contains(got, " .") {
		t.Fatalf("space before period survived: %q", got)
	}
	if !strings.Contains(got, ". Impression") {
		t.Fatalf("missing space after period not inserted: %q", got)
	}
	if !strings.Contains(got, ": clear") {
		t.Fatalf("missing space after colon not inserted: %q", got)
	}
}

func TestCorrectCapitalizesSentences(t *testing.T) {
	e := newTestEnricher(t)
	got := e.Correct("heart size normal. lungs are clear")
	if !strings.HasPrefix(got, "Heart") {
		t.Fatalf("first sentence not capitalized: %q", got)
	}
	if !strings.Contains(got, ". Lungs") {
		t.Fatalf("second sentence not capitalized: %q", got)
	}
}

func TestCorrectIsIdempotent(t *testing.T) {
	e := newTestEnricher(t)
	inputs := []string{
		"",
		"   ",
		"patient shows new monia .impression:c 5 fracture",
		"heart size normal. lungs are clear",
		"Already Corrected Text. No changes needed.",
		"plural effusion with cardio megaly at l 5",
		"weird   spacing\tand\nnewlines everywhere",
	}
	for _, in := range inputs {
		once := e.Correct(in)
		twice := e.Correct(once)
		if once != twice {
			t.Fatalf("correction not idempotent for %q:\n once: %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestExtractTermsIsDeduplicatedSet(t *testing.T) {
	e := newTestEnricher(t)
	got := e.ExtractTerms("Pneumonia noted. pneumonia persists. PNEUMONIA again, with atelectasis.")
	if len(got) != 2 {
		t.Fatalf("expected 2 unique terms, got %v", got)
	}
	if got[0] != "atelectasis" || got[1] != "pneumonia" {
		t.Fatalf("unexpected set %v", got)
	}
}

func TestExtractTermsEmptyText(t *testing.T) {
	e := newTestEnricher(t)
	if got := e.ExtractTerms("   "); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestQualityScoreBounds(t *testing.T) {
	long := strings.Repeat("finding ", 100)
	cases := []struct {
		text  string
		terms int
	}{
		{"", 0},
		{"short", 0},
		{long, 10},
		{long, 0},
		{"x", -3},
	}
	for _, c := range cases {
		got := QualityScore(c.text, c.terms)
		if got < 0 || got > 1 {
			t.Fatalf("score out of range for (%d chars, %d terms): %f", len(c.text), c.terms, got)
		}
	}
	if QualityScore(long, 10) != 1.0 {
		t.Fatalf("saturated score should be 1.0")
	}
}

func TestQualityScoreMonotonicInLength(t *testing.T) {
	prev := 0.0
	for n := 0; n <= 300; n += 25 {
		got := QualityScore(strings.Repeat("a", n), 2)
		if got < prev {
			t.Fatalf("score decreased at length %d: %f < %f", n, got, prev)
		}
		prev = got
	}
}

func TestQualityScoreMonotonicInTerms(t *testing.T) {
	prev := 0.0
	for n := 0; n <= 8; n++ {
		got := QualityScore("fixed length text", n)
		if got < prev {
			t.Fatalf("score decreased at %d terms: %f < %f", n, got, prev)
		}
		prev = got
	}
}
